package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitgeese/sequential-questioning/internal/log"
	"github.com/bitgeese/sequential-questioning/internal/question"
	"github.com/bitgeese/sequential-questioning/internal/retry"
)

type stubGenerator struct {
	responses []*question.Response
	errs      []error
	requests  []*question.Request
}

func (g *stubGenerator) Generate(_ context.Context, req *question.Request) (*question.Response, error) {
	// snapshot the request; handlers mutate theirs between calls
	clone := *req
	i := len(g.requests)
	g.requests = append(g.requests, &clone)
	if i < len(g.errs) && g.errs[i] != nil {
		return nil, g.errs[i]
	}
	if i < len(g.responses) {
		return g.responses[i], nil
	}
	return nil, errors.New("no scripted response")
}

func makeResponse(convID, sessID string, start, size int, next bool) *question.Response {
	items := make([]question.QuestionItem, 0, size)
	for i := 0; i < size; i++ {
		items = append(items, question.QuestionItem{
			QuestionText:   fmt.Sprintf("Q%d?", start+i),
			QuestionNumber: start + i,
		})
	}
	return &question.Response{
		CurrentQuestion:         items[0].QuestionText,
		Questions:               items,
		ConversationID:          convID,
		SessionID:               sessID,
		CurrentQuestionNumber:   start,
		TotalQuestionsInBatch:   size,
		TotalQuestionsEstimated: 8,
		NextBatchNeeded:         next,
	}
}

func newQuestionMux(gen Generator) *http.ServeMux {
	mux := http.NewServeMux()
	NewQuestionHandler(gen, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestQuestionEndpoint(t *testing.T) {
	gen := &stubGenerator{responses: []*question.Response{
		makeResponse("conv-1", "sess-1", 1, 5, true),
	}}
	mux := newQuestionMux(gen)

	w := postJSON(t, mux, "/question", `{"context": "Plan a trip"}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp question.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "1. Q1?\n2. Q2?\n3. Q3?\n4. Q4?\n5. Q5?", resp.CurrentQuestion)
	assert.Equal(t, 5, resp.TotalQuestionsInBatch)
	assert.Equal(t, "conv-1", resp.ConversationID)

	require.Len(t, gen.requests, 1)
	assert.Equal(t, "Plan a trip", gen.requests[0].Context)
}

func TestQuestionEndpointInvalidBody(t *testing.T) {
	gen := &stubGenerator{}
	w := postJSON(t, newQuestionMux(gen), "/question", `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, gen.requests)
}

func TestFollowUpRequiresPreviousMessages(t *testing.T) {
	gen := &stubGenerator{}
	mux := newQuestionMux(gen)

	for _, body := range []string{
		`{"conversation_id": "conv-1"}`,
		`{"conversation_id": "conv-1", "previous_messages": []}`,
	} {
		w := postJSON(t, mux, "/question/follow-up", body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var errResp ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
		assert.Contains(t, errResp.Detail, "previous_messages")
	}
	// validation failures never reach the generator
	assert.Empty(t, gen.requests)
}

func TestFollowUpWithConversationID(t *testing.T) {
	gen := &stubGenerator{responses: []*question.Response{
		makeResponse("conv-1", "sess-1", 6, 3, false),
	}}
	mux := newQuestionMux(gen)

	body := `{
		"conversation_id": "conv-1",
		"context": "Plan a trip",
		"previous_messages": [{"role": "user", "content": "Answers 1-5."}]
	}`
	w := postJSON(t, mux, "/question/follow-up", body)

	require.Equal(t, http.StatusOK, w.Code)

	var resp question.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 6, resp.CurrentQuestionNumber)
	assert.Equal(t, "6. Q6?\n7. Q7?\n8. Q8?", resp.CurrentQuestion)

	require.Len(t, gen.requests, 1)
	assert.Equal(t, "conv-1", gen.requests[0].ConversationID)
}

func TestFollowUpBootstrapsMissingConversation(t *testing.T) {
	gen := &stubGenerator{responses: []*question.Response{
		makeResponse("conv-new", "sess-new", 1, 5, true),
		makeResponse("conv-new", "sess-new", 6, 3, false),
	}}
	mux := newQuestionMux(gen)

	body := `{
		"context": "Plan a trip",
		"previous_messages": [{"role": "user", "content": "I want to go to Japan."}]
	}`
	w := postJSON(t, mux, "/question/follow-up", body)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, gen.requests, 2)

	// the bootstrap call mints identifiers without history
	assert.Empty(t, gen.requests[0].ConversationID)
	assert.Empty(t, gen.requests[0].PreviousMessages)

	// the follow-up call reuses them with the history restored
	assert.Equal(t, "conv-new", gen.requests[1].ConversationID)
	assert.Equal(t, "sess-new", gen.requests[1].SessionID)
	require.Len(t, gen.requests[1].PreviousMessages, 1)

	var resp question.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 6, resp.CurrentQuestionNumber)
}

func TestAutomaticFlow(t *testing.T) {
	gen := &stubGenerator{responses: []*question.Response{
		makeResponse("conv-1", "sess-1", 1, 5, true),
		makeResponse("conv-1", "sess-1", 6, 3, false),
	}}
	mux := newQuestionMux(gen)

	body := `{
		"context": "Plan a trip",
		"previous_messages": [{"role": "user", "content": "I want to go to Japan."}],
		"max_rounds": 2
	}`
	w := postJSON(t, mux, "/question/automatic", body)

	require.Equal(t, http.StatusOK, w.Code)

	var resp question.AutomaticResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 8, resp.TotalQuestions)
	assert.Equal(t, "conv-1", resp.ConversationID)
	require.Len(t, resp.FollowUpQuestions, 1)
	assert.Equal(t, float64(2), resp.Metadata["rounds_generated"])
	assert.Equal(t, 8, strings.Count(resp.AllQuestionsCombined, "\n")+1)

	// the initial round strips history, the follow-up round carries it
	require.Len(t, gen.requests, 2)
	assert.Empty(t, gen.requests[0].PreviousMessages)
	require.Len(t, gen.requests[1].PreviousMessages, 1)
	assert.Equal(t, "conv-1", gen.requests[1].ConversationID)
}

func TestAutomaticFlowWithoutHistory(t *testing.T) {
	gen := &stubGenerator{responses: []*question.Response{
		makeResponse("conv-1", "sess-1", 1, 5, true),
	}}
	w := postJSON(t, newQuestionMux(gen), "/question/automatic", `{"context": "Plan a trip"}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp question.AutomaticResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 5, resp.TotalQuestions)
	assert.Empty(t, resp.FollowUpQuestions)
	assert.Equal(t, float64(1), resp.Metadata["rounds_generated"])
	assert.Len(t, gen.requests, 1)
}

func TestAutomaticFlowAutoFollowUpDisabled(t *testing.T) {
	gen := &stubGenerator{responses: []*question.Response{
		makeResponse("conv-1", "sess-1", 1, 5, true),
	}}
	body := `{
		"context": "Plan a trip",
		"previous_messages": [{"role": "user", "content": "answers"}],
		"auto_handle_follow_up": false
	}`
	w := postJSON(t, newQuestionMux(gen), "/question/automatic", body)

	require.Equal(t, http.StatusOK, w.Code)

	var resp question.AutomaticResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Empty(t, resp.FollowUpQuestions)
	assert.Equal(t, false, resp.Metadata["auto_follow_up"])
	assert.Len(t, gen.requests, 1)
}

func TestAutomaticFlowRoundCap(t *testing.T) {
	// every round reports more questions needed; the cap stops the loop
	gen := &stubGenerator{responses: []*question.Response{
		makeResponse("conv-1", "sess-1", 1, 5, true),
		makeResponse("conv-1", "sess-1", 6, 3, true),
		makeResponse("conv-1", "sess-1", 9, 3, true),
		makeResponse("conv-1", "sess-1", 12, 3, true),
	}}
	body := `{
		"context": "Plan a trip",
		"previous_messages": [{"role": "user", "content": "answers"}],
		"max_rounds": 9
	}`
	w := postJSON(t, newQuestionMux(gen), "/question/automatic", body)

	require.Equal(t, http.StatusOK, w.Code)

	var resp question.AutomaticResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, float64(question.MaxRoundsCap), resp.Metadata["rounds_generated"])
	assert.Equal(t, 11, resp.TotalQuestions)
	assert.Len(t, gen.requests, question.MaxRoundsCap)
}

func TestQuestionEndpointRetriesExhausted(t *testing.T) {
	boom := errors.New("connection reset")
	gen := &stubGenerator{errs: []error{boom, boom, boom}}
	w := postJSON(t, newQuestionMux(gen), "/question", `{"context": "x"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
	assert.Contains(t, errResp.Detail, "after 3 attempts")
	assert.Contains(t, errResp.Detail, "connection reset")
	assert.Len(t, gen.requests, retry.MaxAttempts)
}

func TestQuestionEndpointRecoversOnRetry(t *testing.T) {
	gen := &stubGenerator{
		errs:      []error{errors.New("transient"), nil},
		responses: []*question.Response{nil, makeResponse("conv-1", "sess-1", 1, 5, true)},
	}
	w := postJSON(t, newQuestionMux(gen), "/question", `{"context": "x"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, gen.requests, 2)
}
