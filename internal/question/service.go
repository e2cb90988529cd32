// Package question orchestrates sequential question generation: it resolves
// the session and conversation a request belongs to, enriches the prompt
// context with similar prior content, generates a batch of questions through
// the model, and persists the batch with gapless sequence numbers.
package question

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bitgeese/sequential-questioning/internal/conversation"
	"github.com/bitgeese/sequential-questioning/internal/log"
	"github.com/bitgeese/sequential-questioning/internal/vectorstore"
)

// Store persists sessions, conversations and messages.
type Store interface {
	CreateSession(ctx context.Context, userIdentifier, sessionContext string) (*conversation.UserSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*conversation.UserSession, error)
	GetSessionByUserIdentifier(ctx context.Context, userIdentifier string) (*conversation.UserSession, error)
	CreateConversation(ctx context.Context, sessionID uuid.UUID, topic string) (*conversation.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	ActiveConversationBySession(ctx context.Context, sessionID uuid.UUID) (*conversation.Conversation, error)
	CreateMessages(ctx context.Context, conversationID uuid.UUID, msgs []*conversation.NewMessage) ([]*conversation.Message, error)
	CountMessagesByType(ctx context.Context, conversationID uuid.UUID, msgType conversation.MessageType) (int, error)
}

// VectorStore indexes question text and retrieves similar prior content.
// Both operations are best effort and never fail.
type VectorStore interface {
	StoreEmbedding(ctx context.Context, text string, metadata map[string]any, id string) string
	SearchSimilar(ctx context.Context, query string, filter map[string]any, limit int) []vectorstore.Result
}

// Model generates text from a prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service generates sequential question batches.
type Service struct {
	store   Store
	vectors VectorStore
	model   Model
	logger  *slog.Logger
}

// NewService builds a question generation service.
func NewService(store Store, vectors VectorStore, model Model, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("question: store is nil")
	}
	if vectors == nil {
		return nil, errors.New("question: vector store is nil")
	}
	if model == nil {
		return nil, errors.New("question: model is nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{
		store:   store,
		vectors: vectors,
		model:   model,
		logger:  logger,
	}, nil
}

// Generate produces the next batch of questions for the conversation a
// request resolves to. The first batch of a conversation has five
// questions; later batches have three. The batch is persisted in one
// transaction before the response is returned; vector indexing of the
// generated questions happens afterwards and never blocks the response.
func (s *Service) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("question: request is nil")
	}

	sess, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}
	conv, err := s.resolveConversation(ctx, sess.ID, req)
	if err != nil {
		return nil, err
	}

	formatted := formatPreviousMessages(req.PreviousMessages)
	hasPrevious := formatted != ""

	contextText := req.Context
	enhanced := false
	if hasPrevious {
		contextText, enhanced = s.enrichContext(ctx, contextText, req.PreviousMessages, conv.ID)
	}

	questionCount, err := s.store.CountMessagesByType(ctx, conv.ID, conversation.TypeQuestion)
	if err != nil {
		return nil, fmt.Errorf("count prior questions: %w", err)
	}
	startingNumber := questionCount + 1

	batchSize := initialBatchSize
	if hasPrevious {
		batchSize = followUpBatchSize
	}

	questions, meta := s.generateBatch(ctx, contextText, formatted, batchSize, startingNumber)

	now := time.Now().UTC()
	msgs := make([]*conversation.NewMessage, 0, len(questions))
	for _, q := range questions {
		msgs = append(msgs, &conversation.NewMessage{
			Type:    conversation.TypeQuestion,
			Content: q.Text,
			Metadata: map[string]any{
				"generated":               true,
				"timestamp":               now.Format(time.RFC3339),
				"question_number":         q.Number,
				"batch_number":            1 + (q.Number-1)/batchSize,
				"importance_explanation":  q.ImportanceExplanation,
				"information_to_look_for": q.InformationToLookFor,
			},
		})
	}
	if _, err := s.store.CreateMessages(ctx, conv.ID, msgs); err != nil {
		return nil, fmt.Errorf("persist question batch: %w", err)
	}

	items := make([]QuestionItem, 0, len(questions))
	for _, q := range questions {
		s.vectors.StoreEmbedding(ctx, q.Text, map[string]any{
			"content":         q.Text,
			"type":            "question",
			"question_number": q.Number,
			"conversation_id": conv.ID.String(),
			"session_id":      sess.ID.String(),
			"timestamp":       now.Format(time.RFC3339),
		}, "")

		items = append(items, QuestionItem{
			QuestionText:   q.Text,
			QuestionNumber: q.Number,
			Metadata: map[string]any{
				"importance":              q.ImportanceExplanation,
				"information_to_look_for": q.InformationToLookFor,
			},
		})
	}

	questionType := "initial"
	if hasPrevious {
		questionType = "follow_up"
	}

	s.logger.Info("generated question batch",
		"conversation_id", conv.ID,
		"questions", len(items),
		"starting_number", startingNumber,
		"fallback", meta.FallbackGeneration)

	return &Response{
		CurrentQuestion:         questions[0].Text,
		Questions:               items,
		ConversationID:          conv.ID.String(),
		SessionID:               sess.ID.String(),
		CurrentQuestionNumber:   startingNumber,
		TotalQuestionsInBatch:   len(items),
		TotalQuestionsEstimated: meta.TotalQuestionsEstimated,
		NextBatchNeeded:         meta.NextBatchNeeded,
		Metadata: map[string]any{
			"context_enhanced": enhanced,
			"question_type":    questionType,
			"timestamp":        now.Format(time.RFC3339),
			"batch_metadata":   meta,
		},
	}, nil
}

// RenderNumbered formats questions as a numbered list sorted by question
// number, one "{number}. {text}" entry per line.
func RenderNumbered(questions []QuestionItem) string {
	sorted := make([]QuestionItem, len(questions))
	copy(sorted, questions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].QuestionNumber < sorted[j].QuestionNumber
	})

	lines := make([]string, 0, len(sorted))
	for _, q := range sorted {
		lines = append(lines, fmt.Sprintf("%d. %s", q.QuestionNumber, q.QuestionText))
	}
	return strings.Join(lines, "\n")
}
