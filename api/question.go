package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bitgeese/sequential-questioning/internal/question"
	"github.com/bitgeese/sequential-questioning/internal/retry"
)

// Generator produces question batches. Implemented by *question.Service.
type Generator = question.Generator

// QuestionHandler handles the question generation endpoints.
type QuestionHandler struct {
	generator Generator
	logger    *slog.Logger
}

// NewQuestionHandler creates a new question handler.
func NewQuestionHandler(generator Generator, logger *slog.Logger) *QuestionHandler {
	return &QuestionHandler{generator: generator, logger: logger}
}

// RegisterRoutes registers question routes on the given mux.
func (h *QuestionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /question", h.generate)
	mux.HandleFunc("POST /question/follow-up", h.followUp)
	mux.HandleFunc("POST /question/automatic", h.automatic)
}

// generate produces the next batch of questions for a conversation,
// rendering the batch as a numbered list in current_question.
func (h *QuestionHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req question.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var resp *question.Response
	err := retry.Do(r.Context(), h.logger, "question", func() error {
		var genErr error
		resp, genErr = h.generator.Generate(r.Context(), &req)
		return genErr
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to generate question after %d attempts: %v", retry.MaxAttempts, err))
		return
	}

	resp.CurrentQuestion = question.RenderNumbered(resp.Questions)
	writeJSON(w, http.StatusOK, resp)
}

// followUp produces the next batch after the user answered the previous
// one. Previous messages are required; a missing conversation id is
// tolerated by bootstrapping a fresh conversation first.
func (h *QuestionHandler) followUp(w http.ResponseWriter, r *http.Request) {
	var req question.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.PreviousMessages) == 0 {
		writeError(w, http.StatusBadRequest, question.ErrPreviousMessagesRequired.Error())
		return
	}

	// The flow writes bootstrapped identifiers back onto req, so retried
	// attempts reuse them instead of minting another conversation.
	var resp *question.Response
	err := retry.Do(r.Context(), h.logger, "question/follow-up", func() error {
		var genErr error
		resp, genErr = question.GenerateFollowUp(r.Context(), h.generator, &req)
		return genErr
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to generate follow-up questions after %d attempts: %v", retry.MaxAttempts, err))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// automatic runs a complete question flow in one call: an initial batch,
// then follow-up rounds while the generator reports more questions are
// needed, up to the requested round limit.
func (h *QuestionHandler) automatic(w http.ResponseWriter, r *http.Request) {
	var req question.AutomaticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var resp *question.AutomaticResponse
	err := retry.Do(r.Context(), h.logger, "question/automatic", func() error {
		var genErr error
		resp, genErr = question.GenerateAutomatic(r.Context(), h.generator, &req)
		return genErr
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to generate automatic question flow after %d attempts: %v", retry.MaxAttempts, err))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
