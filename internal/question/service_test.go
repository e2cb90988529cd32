package question

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/bitgeese/sequential-questioning/internal/conversation"
	"github.com/bitgeese/sequential-questioning/internal/log"
	"github.com/bitgeese/sequential-questioning/internal/vectorstore"
)

type stubStore struct {
	sessions      map[uuid.UUID]*conversation.UserSession
	byUser        map[string]*conversation.UserSession
	conversations map[uuid.UUID]*conversation.Conversation
	activeBySess  map[uuid.UUID]*conversation.Conversation
	messages      map[uuid.UUID][]*conversation.Message
	questionCount map[uuid.UUID]int

	createErr error
}

func newStubStore() *stubStore {
	return &stubStore{
		sessions:      make(map[uuid.UUID]*conversation.UserSession),
		byUser:        make(map[string]*conversation.UserSession),
		conversations: make(map[uuid.UUID]*conversation.Conversation),
		activeBySess:  make(map[uuid.UUID]*conversation.Conversation),
		messages:      make(map[uuid.UUID][]*conversation.Message),
		questionCount: make(map[uuid.UUID]int),
	}
}

func (s *stubStore) CreateSession(_ context.Context, userIdentifier, sessionContext string) (*conversation.UserSession, error) {
	sess := &conversation.UserSession{ID: uuid.New(), UserIdentifier: userIdentifier, Context: sessionContext, Active: true}
	s.sessions[sess.ID] = sess
	if userIdentifier != "" {
		s.byUser[userIdentifier] = sess
	}
	return sess, nil
}

func (s *stubStore) GetSession(_ context.Context, id uuid.UUID) (*conversation.UserSession, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, conversation.ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubStore) GetSessionByUserIdentifier(_ context.Context, userIdentifier string) (*conversation.UserSession, error) {
	sess, ok := s.byUser[userIdentifier]
	if !ok {
		return nil, conversation.ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubStore) CreateConversation(_ context.Context, sessionID uuid.UUID, topic string) (*conversation.Conversation, error) {
	conv := &conversation.Conversation{ID: uuid.New(), SessionID: sessionID, Topic: topic, Active: true}
	s.conversations[conv.ID] = conv
	s.activeBySess[sessionID] = conv
	return conv, nil
}

func (s *stubStore) GetConversation(_ context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return nil, conversation.ErrConversationNotFound
	}
	return conv, nil
}

func (s *stubStore) ActiveConversationBySession(_ context.Context, sessionID uuid.UUID) (*conversation.Conversation, error) {
	conv, ok := s.activeBySess[sessionID]
	if !ok {
		return nil, conversation.ErrConversationNotFound
	}
	return conv, nil
}

func (s *stubStore) CreateMessages(_ context.Context, conversationID uuid.UUID, msgs []*conversation.NewMessage) ([]*conversation.Message, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	created := make([]*conversation.Message, 0, len(msgs))
	base := int32(len(s.messages[conversationID]))
	for i, m := range msgs {
		msg := &conversation.Message{
			ID:             uuid.New(),
			ConversationID: conversationID,
			Type:           m.Type,
			Content:        m.Content,
			Metadata:       m.Metadata,
			SequenceNumber: base + int32(i) + 1,
		}
		s.messages[conversationID] = append(s.messages[conversationID], msg)
		if m.Type == conversation.TypeQuestion {
			s.questionCount[conversationID]++
		}
		created = append(created, msg)
	}
	return created, nil
}

func (s *stubStore) CountMessagesByType(_ context.Context, conversationID uuid.UUID, msgType conversation.MessageType) (int, error) {
	if msgType == conversation.TypeQuestion {
		return s.questionCount[conversationID], nil
	}
	return 0, nil
}

type stubVectors struct {
	stored  []map[string]any
	results []vectorstore.Result
	queries []string
}

func (v *stubVectors) StoreEmbedding(_ context.Context, _ string, metadata map[string]any, id string) string {
	v.stored = append(v.stored, metadata)
	if id == "" {
		id = uuid.NewString()
	}
	return id
}

func (v *stubVectors) SearchSimilar(_ context.Context, query string, _ map[string]any, _ int) []vectorstore.Result {
	v.queries = append(v.queries, query)
	return v.results
}

type stubModel struct {
	responses []string
	errs      []error
	prompts   []string
}

func (m *stubModel) Generate(_ context.Context, prompt string) (string, error) {
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

const fiveQuestionBatch = `[
	{"question_text": "Q1?", "question_number": 1, "importance_explanation": "i1", "information_to_look_for": "l1"},
	{"question_text": "Q2?", "question_number": 2},
	{"question_text": "Q3?", "question_number": 3},
	{"question_text": "Q4?", "question_number": 4},
	{"question_text": "Q5?", "question_number": 5}
]`

func newTestService(t *testing.T, store Store, vectors VectorStore, model Model) *Service {
	t.Helper()
	svc, err := NewService(store, vectors, model, log.NewNop())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestGenerateInitialBatch(t *testing.T) {
	store := newStubStore()
	vectors := &stubVectors{}
	model := &stubModel{responses: []string{
		fiveQuestionBatch,
		`{"next_batch_needed": true, "total_questions_estimated": 10}`,
	}}
	svc := newTestService(t, store, vectors, model)

	resp, err := svc.Generate(context.Background(), &Request{
		UserID:  "user-1",
		Context: "quarterly planning",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if resp.CurrentQuestion != "Q1?" {
		t.Errorf("CurrentQuestion = %q", resp.CurrentQuestion)
	}
	if resp.TotalQuestionsInBatch != 5 || len(resp.Questions) != 5 {
		t.Errorf("batch size = %d/%d, want 5", resp.TotalQuestionsInBatch, len(resp.Questions))
	}
	if resp.CurrentQuestionNumber != 1 {
		t.Errorf("CurrentQuestionNumber = %d, want 1", resp.CurrentQuestionNumber)
	}
	if !resp.NextBatchNeeded || resp.TotalQuestionsEstimated != 10 {
		t.Errorf("continuation = %v/%d, want true/10", resp.NextBatchNeeded, resp.TotalQuestionsEstimated)
	}
	if resp.SessionID == "" || resp.ConversationID == "" {
		t.Error("missing identifiers in response")
	}
	if resp.Metadata["question_type"] != "initial" {
		t.Errorf("question_type = %v", resp.Metadata["question_type"])
	}
	if resp.Metadata["context_enhanced"] != false {
		t.Errorf("context_enhanced = %v, want false", resp.Metadata["context_enhanced"])
	}

	convID := uuid.MustParse(resp.ConversationID)
	if got := len(store.messages[convID]); got != 5 {
		t.Errorf("persisted %d messages, want 5", got)
	}
	if got := len(vectors.stored); got != 5 {
		t.Errorf("indexed %d questions, want 5", got)
	}
	if vectors.stored[0]["conversation_id"] != resp.ConversationID {
		t.Errorf("indexed conversation_id = %v", vectors.stored[0]["conversation_id"])
	}

	// no history means no similarity search and no enrichment
	if len(vectors.queries) != 0 {
		t.Errorf("similarity searches = %d, want 0", len(vectors.queries))
	}
}

func TestGenerateFollowUpBatch(t *testing.T) {
	store := newStubStore()
	sess, _ := store.CreateSession(context.Background(), "user-1", "quarterly planning")
	conv, _ := store.CreateConversation(context.Background(), sess.ID, "quarterly planning")
	store.questionCount[conv.ID] = 5

	vectors := &stubVectors{results: []vectorstore.Result{
		{ID: "a", Score: 0.9, Payload: map[string]any{"content": "Budget is capped at 50k."}},
		{ID: "b", Score: 0.8, Payload: map[string]any{"type": "question"}},
	}}
	model := &stubModel{responses: []string{
		`[{"question_text": "Q6?", "question_number": 6},
		  {"question_text": "Q7?", "question_number": 7},
		  {"question_text": "Q8?", "question_number": 8}]`,
		`{"next_batch_needed": false, "total_questions_estimated": 8}`,
	}}
	svc := newTestService(t, store, vectors, model)

	resp, err := svc.Generate(context.Background(), &Request{
		UserID:         "user-1",
		ConversationID: conv.ID.String(),
		Context:        "quarterly planning",
		PreviousMessages: []MessageItem{
			{Role: "assistant", Content: "Q5?"},
			{Role: "user", Content: "We have a fixed budget."},
		},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if resp.ConversationID != conv.ID.String() || resp.SessionID != sess.ID.String() {
		t.Errorf("identifiers = %s/%s", resp.ConversationID, resp.SessionID)
	}
	if resp.CurrentQuestionNumber != 6 {
		t.Errorf("CurrentQuestionNumber = %d, want 6", resp.CurrentQuestionNumber)
	}
	if resp.TotalQuestionsInBatch != 3 {
		t.Errorf("batch size = %d, want 3", resp.TotalQuestionsInBatch)
	}
	if resp.NextBatchNeeded {
		t.Error("NextBatchNeeded = true, want false")
	}
	if resp.Metadata["question_type"] != "follow_up" {
		t.Errorf("question_type = %v", resp.Metadata["question_type"])
	}
	if resp.Metadata["context_enhanced"] != true {
		t.Errorf("context_enhanced = %v, want true", resp.Metadata["context_enhanced"])
	}

	// the search query is the last user message, and the retrieved content
	// lands in the batch prompt
	if len(vectors.queries) != 1 || vectors.queries[0] != "We have a fixed budget." {
		t.Errorf("queries = %v", vectors.queries)
	}
	if !strings.Contains(model.prompts[0], "Additional relevant information:\n- Budget is capped at 50k.") {
		t.Errorf("batch prompt missing enriched context:\n%s", model.prompts[0])
	}
	if !strings.Contains(model.prompts[0], "Assistant: Q5?") {
		t.Errorf("batch prompt missing formatted history:\n%s", model.prompts[0])
	}
}

func TestGenerateFallsBackOnModelFailure(t *testing.T) {
	store := newStubStore()
	vectors := &stubVectors{}
	model := &stubModel{errs: []error{errors.New("model unavailable")}}
	svc := newTestService(t, store, vectors, model)

	resp, err := svc.Generate(context.Background(), &Request{Context: "team retro"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(resp.Questions) != 5 {
		t.Fatalf("got %d questions, want 5", len(resp.Questions))
	}
	if resp.CurrentQuestion != "What are your main goals related to team?" {
		t.Errorf("CurrentQuestion = %q", resp.CurrentQuestion)
	}

	meta, ok := resp.Metadata["batch_metadata"].(batchMetadata)
	if !ok {
		t.Fatalf("batch_metadata has type %T", resp.Metadata["batch_metadata"])
	}
	if !meta.FallbackGeneration {
		t.Error("FallbackGeneration = false, want true")
	}

	// fallback batches are persisted and indexed like any other
	convID := uuid.MustParse(resp.ConversationID)
	if got := len(store.messages[convID]); got != 5 {
		t.Errorf("persisted %d messages, want 5", got)
	}
}

func TestGenerateUnparsableResponseFallsBack(t *testing.T) {
	store := newStubStore()
	model := &stubModel{responses: []string{"I cannot answer that."}}
	svc := newTestService(t, store, &stubVectors{}, model)

	resp, err := svc.Generate(context.Background(), &Request{Context: "onboarding"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	meta := resp.Metadata["batch_metadata"].(batchMetadata)
	if !meta.FallbackGeneration {
		t.Error("FallbackGeneration = false, want true")
	}
}

func TestGeneratePersistenceFailure(t *testing.T) {
	store := newStubStore()
	store.createErr = errors.New("connection reset")
	model := &stubModel{responses: []string{
		fiveQuestionBatch,
		`{"next_batch_needed": true, "total_questions_estimated": 8}`,
	}}
	svc := newTestService(t, store, &stubVectors{}, model)

	if _, err := svc.Generate(context.Background(), &Request{Context: "x"}); err == nil {
		t.Fatal("Generate() error = nil, want persistence error")
	}
}

func TestResolveSessionPrecedence(t *testing.T) {
	ctx := context.Background()

	t.Run("session id wins over user id", func(t *testing.T) {
		store := newStubStore()
		byID, _ := store.CreateSession(ctx, "someone-else", "")
		store.CreateSession(ctx, "user-1", "")
		svc := newTestService(t, store, &stubVectors{}, &stubModel{})

		sess, err := svc.resolveSession(ctx, &Request{SessionID: byID.ID.String(), UserID: "user-1"})
		if err != nil {
			t.Fatalf("resolveSession() error = %v", err)
		}
		if sess.ID != byID.ID {
			t.Errorf("resolved %s, want %s", sess.ID, byID.ID)
		}
	})

	t.Run("unknown session id falls back to user id", func(t *testing.T) {
		store := newStubStore()
		byUser, _ := store.CreateSession(ctx, "user-1", "")
		svc := newTestService(t, store, &stubVectors{}, &stubModel{})

		sess, err := svc.resolveSession(ctx, &Request{SessionID: uuid.NewString(), UserID: "user-1"})
		if err != nil {
			t.Fatalf("resolveSession() error = %v", err)
		}
		if sess.ID != byUser.ID {
			t.Errorf("resolved %s, want %s", sess.ID, byUser.ID)
		}
	})

	t.Run("malformed session id is ignored", func(t *testing.T) {
		store := newStubStore()
		svc := newTestService(t, store, &stubVectors{}, &stubModel{})

		sess, err := svc.resolveSession(ctx, &Request{SessionID: "not-a-uuid"})
		if err != nil {
			t.Fatalf("resolveSession() error = %v", err)
		}
		if _, ok := store.sessions[sess.ID]; !ok {
			t.Error("expected a session to be created")
		}
	})
}

func TestResolveConversationReusesActive(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	sess, _ := store.CreateSession(ctx, "user-1", "")
	active, _ := store.CreateConversation(ctx, sess.ID, "topic")
	svc := newTestService(t, store, &stubVectors{}, &stubModel{})

	conv, err := svc.resolveConversation(ctx, sess.ID, &Request{})
	if err != nil {
		t.Fatalf("resolveConversation() error = %v", err)
	}
	if conv.ID != active.ID {
		t.Errorf("resolved %s, want active conversation %s", conv.ID, active.ID)
	}
}

func TestConversationTopic(t *testing.T) {
	if got := conversationTopic(""); got != "New conversation" {
		t.Errorf("conversationTopic(\"\") = %q", got)
	}
	long := strings.Repeat("a", 80)
	if got := conversationTopic(long); len(got) != 50 {
		t.Errorf("len(topic) = %d, want 50", len(got))
	}
}

func TestContinuationWithoutEstimateDefaultsTotal(t *testing.T) {
	store := newStubStore()
	sess, _ := store.CreateSession(context.Background(), "user-1", "quarterly planning")
	conv, _ := store.CreateConversation(context.Background(), sess.ID, "quarterly planning")
	store.questionCount[conv.ID] = 5

	model := &stubModel{responses: []string{
		`[{"question_text": "Q6?", "question_number": 6},
		  {"question_text": "Q7?", "question_number": 7},
		  {"question_text": "Q8?", "question_number": 8}]`,
		`{"next_batch_needed": false}`,
	}}
	svc := newTestService(t, store, &stubVectors{}, model)

	resp, err := svc.Generate(context.Background(), &Request{
		UserID:         "user-1",
		ConversationID: conv.ID.String(),
		Context:        "quarterly planning",
		PreviousMessages: []MessageItem{
			{Role: "user", Content: "We start in October."},
		},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if resp.NextBatchNeeded {
		t.Error("NextBatchNeeded = true, want false")
	}
	if resp.TotalQuestionsEstimated != 8 {
		t.Errorf("TotalQuestionsEstimated = %d, want 8", resp.TotalQuestionsEstimated)
	}
}

func TestRenderNumbered(t *testing.T) {
	got := RenderNumbered([]QuestionItem{
		{QuestionText: "B?", QuestionNumber: 2},
		{QuestionText: "A?", QuestionNumber: 1},
	})
	if got != "1. A?\n2. B?" {
		t.Errorf("RenderNumbered() = %q", got)
	}
}
