// Package conversation persists sessions, conversations, and messages in
// PostgreSQL.
//
// The hierarchy is session → conversations → ordered messages. Sequence
// numbers are assigned inside a transaction that locks the conversation
// row, so they are strictly increasing and gapless per conversation even
// under concurrent writers.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the store depends on. Defined here, by
// the consumer, so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// sessionCols is the standard SELECT column list for scanning sessions.
const sessionCols = `id, COALESCE(user_identifier, ''), COALESCE(context, ''), active, created_at, updated_at`

// conversationCols is the standard SELECT column list for conversations.
const conversationCols = `id, session_id, COALESCE(topic, ''), active, created_at, updated_at`

// messageCols is the standard SELECT column list for messages.
const messageCols = `id, conversation_id, message_type, content, metadata, sequence_number, created_at, updated_at`

// Store manages session, conversation, and message persistence.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a conversation Store.
func NewStore(db DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// CreateSession creates a new user session. userIdentifier and context may
// be empty; empty strings are stored as NULL.
func (s *Store) CreateSession(ctx context.Context, userIdentifier, sessionContext string) (*UserSession, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO user_sessions (user_identifier, context, active)
		 VALUES (NULLIF($1, ''), NULLIF($2, ''), TRUE)
		 RETURNING `+sessionCols,
		userIdentifier, sessionContext)

	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "user_identifier", userIdentifier)
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*UserSession, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM user_sessions WHERE id = $1`, id)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// GetSessionByUserIdentifier returns the most recently created session for
// the given external user identifier. Lookup is best-effort: uniqueness is
// not enforced, the newest match wins.
func (s *Store) GetSessionByUserIdentifier(ctx context.Context, userIdentifier string) (*UserSession, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM user_sessions
		 WHERE user_identifier = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, userIdentifier)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", userIdentifier, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("getting session for user %q: %w", userIdentifier, err)
	}
	return sess, nil
}

// ListSessions lists sessions with pagination, newest first.
func (s *Store) ListSessions(ctx context.Context, limit, offset int32) ([]*UserSession, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+sessionCols+` FROM user_sessions
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*UserSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// DeactivateSession marks a session inactive. Sessions are never hard
// deleted in the normal flow.
func (s *Store) DeactivateSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE user_sessions SET active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// DeleteSession deletes a session and, via cascade, its conversations and
// messages.
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	s.logger.Debug("deleted session", "id", id)
	return nil
}

// CreateConversation creates a new active conversation within a session.
func (s *Store) CreateConversation(ctx context.Context, sessionID uuid.UUID, topic string) (*Conversation, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO conversations (session_id, topic, active)
		 VALUES ($1, NULLIF($2, ''), TRUE)
		 RETURNING `+conversationCols,
		sessionID, topic)

	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("creating conversation in session %s: %w", sessionID, err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "session_id", sessionID)
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", id, ErrConversationNotFound)
		}
		return nil, fmt.Errorf("getting conversation %s: %w", id, err)
	}
	return conv, nil
}

// ActiveConversationBySession returns the most recently created active
// conversation in a session.
func (s *Store) ActiveConversationBySession(ctx context.Context, sessionID uuid.UUID) (*Conversation, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations
		 WHERE session_id = $1 AND active = TRUE
		 ORDER BY created_at DESC
		 LIMIT 1`, sessionID)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrConversationNotFound)
		}
		return nil, fmt.Errorf("getting active conversation for session %s: %w", sessionID, err)
	}
	return conv, nil
}

// DeactivateConversation marks a conversation inactive.
func (s *Store) DeactivateConversation(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE conversations SET active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrConversationNotFound)
	}
	return nil
}

// CreateMessages appends a batch of messages to a conversation in one
// transaction. The conversation row is locked with SELECT ... FOR UPDATE
// before sequence numbers are read, so concurrent writers to the same
// conversation serialize instead of racing on the max sequence number.
//
// Returns the created messages with assigned IDs and sequence numbers, in
// input order.
func (s *Store) CreateMessages(ctx context.Context, conversationID uuid.UUID, msgs []*NewMessage) ([]*Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	for i, m := range msgs {
		if err := validateNewMessage(m); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	var lockedID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, conversationID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrConversationNotFound)
		}
		return nil, fmt.Errorf("locking conversation %s: %w", conversationID, err)
	}

	var maxSeq int32
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE conversation_id = $1`,
		conversationID).Scan(&maxSeq)
	if err != nil {
		return nil, fmt.Errorf("reading max sequence number: %w", err)
	}

	created := make([]*Message, 0, len(msgs))
	for i, m := range msgs {
		metadata := m.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling metadata for message %d: %w", i, err)
		}

		seq := maxSeq + int32(i) + 1 // #nosec G115 -- i is a loop index bounded by slice length

		row := tx.QueryRow(ctx,
			`INSERT INTO messages (conversation_id, message_type, content, metadata, sequence_number)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+messageCols,
			conversationID, string(m.Type), m.Content, metadataJSON, seq)

		msg, err := scanMessage(row)
		if err != nil {
			return nil, fmt.Errorf("inserting message %d: %w", i, err)
		}
		created = append(created, msg)
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("created messages",
		"conversation_id", conversationID,
		"count", len(created),
		"first_sequence", maxSeq+1)
	return created, nil
}

// MessagesByConversation retrieves messages ordered by sequence number.
func (s *Store) MessagesByConversation(ctx context.Context, conversationID uuid.UUID, limit, offset int32) ([]*Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE conversation_id = $1
		 ORDER BY sequence_number
		 LIMIT $2 OFFSET $3`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing messages for conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return messages, nil
}

// LatestMessage returns the message with the highest sequence number in a
// conversation.
func (s *Store) LatestMessage(ctx context.Context, conversationID uuid.UUID) (*Message, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE conversation_id = $1
		 ORDER BY sequence_number DESC
		 LIMIT 1`, conversationID)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrMessageNotFound)
		}
		return nil, fmt.Errorf("getting latest message: %w", err)
	}
	return msg, nil
}

// NextSequenceNumber returns the sequence number the next message in the
// conversation would receive. Note this is advisory outside a transaction;
// CreateMessages assigns the authoritative numbers under lock.
func (s *Store) NextSequenceNumber(ctx context.Context, conversationID uuid.UUID) (int32, error) {
	var maxSeq int32
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE conversation_id = $1`,
		conversationID).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("reading max sequence number: %w", err)
	}
	return maxSeq + 1, nil
}

// CountMessagesByType counts messages of the given type in a conversation.
func (s *Store) CountMessagesByType(ctx context.Context, conversationID uuid.UUID, msgType MessageType) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND message_type = $2`,
		conversationID, string(msgType)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting %s messages: %w", msgType, err)
	}
	return count, nil
}

// validateNewMessage checks a message before insertion.
func validateNewMessage(m *NewMessage) error {
	if m == nil {
		return fmt.Errorf("nil message")
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMessageType, m.Type)
	}
	if m.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// scanSession scans one user_sessions row.
func scanSession(row pgx.Row) (*UserSession, error) {
	var sess UserSession
	err := row.Scan(&sess.ID, &sess.UserIdentifier, &sess.Context,
		&sess.Active, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// scanConversation scans one conversations row.
func scanConversation(row pgx.Row) (*Conversation, error) {
	var conv Conversation
	err := row.Scan(&conv.ID, &conv.SessionID, &conv.Topic,
		&conv.Active, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// scanMessage scans one messages row, decoding the JSONB metadata column.
func scanMessage(row pgx.Row) (*Message, error) {
	var msg Message
	var msgType string
	var metadataJSON []byte
	err := row.Scan(&msg.ID, &msg.ConversationID, &msgType, &msg.Content,
		&metadataJSON, &msg.SequenceNumber, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	msg.Type = MessageType(msgType)
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	return &msg, nil
}
