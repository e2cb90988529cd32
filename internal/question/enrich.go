package question

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// similarContextLimit bounds how many similar entries enrich the context.
const similarContextLimit = 3

// enrichContext appends content similar to the last user message to the
// prompt context, scoped to the current conversation. Enrichment is best
// effort: when there is nothing to search with or nothing similar, the
// context is returned unchanged with enhanced=false.
func (s *Service) enrichContext(ctx context.Context, contextText string, msgs []MessageItem, conversationID uuid.UUID) (enriched string, enhanced bool) {
	if contextText == "" {
		return contextText, false
	}
	last, ok := lastUserMessage(msgs)
	if !ok {
		return contextText, false
	}

	results := s.vectors.SearchSimilar(ctx, last.Content,
		map[string]any{"conversation_id": conversationID.String()}, similarContextLimit)

	lines := make([]string, 0, len(results))
	for _, r := range results {
		if content, ok := r.Payload["content"].(string); ok && content != "" {
			lines = append(lines, fmt.Sprintf("- %s", content))
		}
	}
	if len(lines) == 0 {
		return contextText, false
	}

	return contextText + "\n\nAdditional relevant information:\n" + strings.Join(lines, "\n"), true
}

// formatPreviousMessages renders prior messages as "Role: content" lines.
// Returns "" when there is no history.
func formatPreviousMessages(msgs []MessageItem) string {
	if len(msgs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", capitalize(m.Role), m.Content))
	}
	return strings.Join(lines, "\n")
}

// lastUserMessage returns the most recent message with the user role.
func lastUserMessage(msgs []MessageItem) (MessageItem, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if strings.EqualFold(msgs[i].Role, "user") {
			return msgs[i], true
		}
	}
	return MessageItem{}, false
}

// capitalize upper-cases the first rune of s.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
