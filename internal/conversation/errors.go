package conversation

import "errors"

// Sentinel errors for store operations. These are part of the Store's
// public API and should be checked with errors.Is().
//
// Example:
//
//	sess, err := store.GetSession(ctx, id)
//	if errors.Is(err, conversation.ErrSessionNotFound) {
//	    // handle missing session
//	}
var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrConversationNotFound indicates the requested conversation does
	// not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound indicates the conversation has no messages yet.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidMessageType indicates an unknown message type was supplied.
	ErrInvalidMessageType = errors.New("invalid message type")

	// ErrEmptyContent indicates a message with empty content was supplied.
	ErrEmptyContent = errors.New("empty message content")
)
