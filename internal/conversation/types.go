package conversation

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a message within a conversation.
type MessageType string

// Message types.
const (
	TypeQuestion MessageType = "question"
	TypeAnswer   MessageType = "answer"
	TypeSystem   MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeQuestion, TypeAnswer, TypeSystem:
		return true
	}
	return false
}

// UserSession represents a continuous interaction with one user.
// A session may contain multiple conversations.
type UserSession struct {
	ID             uuid.UUID `json:"id"`
	UserIdentifier string    `json:"user_identifier,omitempty"`
	Context        string    `json:"context,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Conversation is one topical question/answer thread within a session.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Topic     string    `json:"topic,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one question, answer, or system note, ordered by sequence
// number within its conversation. Messages are immutable once created.
type Message struct {
	ID             uuid.UUID      `json:"id"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	Type           MessageType    `json:"message_type"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	SequenceNumber int32          `json:"sequence_number"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewMessage describes a message to be created. The sequence number is
// assigned by the store at creation time.
type NewMessage struct {
	Type     MessageType
	Content  string
	Metadata map[string]any
}
