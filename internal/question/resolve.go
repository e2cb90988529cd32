package question

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bitgeese/sequential-questioning/internal/conversation"
)

// topicLength caps the conversation topic derived from request context.
const topicLength = 50

// resolveSession finds the session a request belongs to, creating one when
// nothing matches. A supplied session ID wins; a user identifier falls back
// to that user's most recent session. Malformed or unknown identifiers are
// treated as absent rather than rejected.
func (s *Service) resolveSession(ctx context.Context, req *Request) (*conversation.UserSession, error) {
	if req.SessionID != "" {
		if id, parseErr := uuid.Parse(req.SessionID); parseErr == nil {
			sess, err := s.store.GetSession(ctx, id)
			if err == nil {
				return sess, nil
			}
			if !errors.Is(err, conversation.ErrSessionNotFound) {
				return nil, fmt.Errorf("look up session %s: %w", id, err)
			}
		}
	}

	if req.UserID != "" {
		sess, err := s.store.GetSessionByUserIdentifier(ctx, req.UserID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, conversation.ErrSessionNotFound) {
			return nil, fmt.Errorf("look up session for user %q: %w", req.UserID, err)
		}
	}

	sess, err := s.store.CreateSession(ctx, req.UserID, req.Context)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("created user session", "session_id", sess.ID)
	return sess, nil
}

// resolveConversation finds the conversation a request belongs to within a
// session: an explicit conversation ID, then the session's active
// conversation, then a fresh one topic-named from the request context.
func (s *Service) resolveConversation(ctx context.Context, sessionID uuid.UUID, req *Request) (*conversation.Conversation, error) {
	if req.ConversationID != "" {
		if id, parseErr := uuid.Parse(req.ConversationID); parseErr == nil {
			conv, err := s.store.GetConversation(ctx, id)
			if err == nil {
				return conv, nil
			}
			if !errors.Is(err, conversation.ErrConversationNotFound) {
				return nil, fmt.Errorf("look up conversation %s: %w", id, err)
			}
		}
	}

	conv, err := s.store.ActiveConversationBySession(ctx, sessionID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, conversation.ErrConversationNotFound) {
		return nil, fmt.Errorf("look up active conversation: %w", err)
	}

	conv, err = s.store.CreateConversation(ctx, sessionID, conversationTopic(req.Context))
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Info("created conversation", "conversation_id", conv.ID, "session_id", sessionID)
	return conv, nil
}

// conversationTopic derives a short topic from request context.
func conversationTopic(contextText string) string {
	if contextText == "" {
		return "New conversation"
	}
	runes := []rune(contextText)
	if len(runes) > topicLength {
		return string(runes[:topicLength])
	}
	return contextText
}
