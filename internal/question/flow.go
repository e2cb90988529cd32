package question

import (
	"context"
	"errors"
	"time"
)

// Automatic flow bounds.
const (
	// DefaultMaxRounds is the number of question rounds the automatic flow
	// runs when the request does not say otherwise.
	DefaultMaxRounds = 2

	// MaxRoundsCap is the hard ceiling on automatic rounds per call.
	MaxRoundsCap = 3
)

// ErrPreviousMessagesRequired reports a follow-up request without answers
// to follow up on. This is a validation failure and must not be retried.
var ErrPreviousMessagesRequired = errors.New("previous_messages with user answers are required for follow-up questions")

// Generator produces question batches. Implemented by *Service.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// AutomaticRequest extends the plain request with round control for the
// automatic flow.
type AutomaticRequest struct {
	Request
	AutoHandleFollowUp *bool `json:"auto_handle_follow_up,omitempty"`
	MaxRounds          int   `json:"max_rounds,omitempty"`
}

// AutomaticResponse aggregates every round of the automatic flow.
type AutomaticResponse struct {
	InitialQuestions     *Response      `json:"initial_questions"`
	FollowUpQuestions    []*Response    `json:"follow_up_questions,omitempty"`
	AllQuestionsCombined string         `json:"all_questions_combined"`
	ConversationID       string         `json:"conversation_id"`
	SessionID            string         `json:"session_id"`
	TotalQuestions       int            `json:"total_questions"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// GenerateFollowUp produces the next batch after the user answered the
// previous one. Previous messages are required. A missing conversation id
// is tolerated: an initial generation bootstraps fresh identifiers first,
// and they are written back onto req so a caller retrying with the same
// request cannot mint a second conversation.
func GenerateFollowUp(ctx context.Context, g Generator, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("question: request is nil")
	}
	if len(req.PreviousMessages) == 0 {
		return nil, ErrPreviousMessagesRequired
	}

	if req.ConversationID == "" {
		seed := *req
		seed.PreviousMessages = nil
		boot, err := g.Generate(ctx, &seed)
		if err != nil {
			return nil, err
		}
		req.ConversationID = boot.ConversationID
		req.SessionID = boot.SessionID
	}

	resp, err := g.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.CurrentQuestion = RenderNumbered(resp.Questions)
	return resp, nil
}

// GenerateAutomatic runs a complete question flow in one call: an initial
// batch, then follow-up rounds while history is available and the previous
// round reported more questions are needed, up to the requested round
// limit. Every round's questions are combined into one numbered rendering.
func GenerateAutomatic(ctx context.Context, g Generator, req *AutomaticRequest) (*AutomaticResponse, error) {
	if req == nil {
		return nil, errors.New("question: request is nil")
	}

	autoFollowUp := true
	if req.AutoHandleFollowUp != nil {
		autoFollowUp = *req.AutoHandleFollowUp
	}
	maxRounds := req.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	if maxRounds > MaxRoundsCap {
		maxRounds = MaxRoundsCap
	}

	// The first round is always an initial generation; the supplied history
	// feeds the follow-up rounds.
	initialReq := req.Request
	initialReq.PreviousMessages = nil

	initial, err := g.Generate(ctx, &initialReq)
	if err != nil {
		return nil, err
	}
	initial.CurrentQuestion = RenderNumbered(initial.Questions)

	allQuestions := make([]QuestionItem, 0, len(initial.Questions))
	allQuestions = append(allQuestions, initial.Questions...)

	var followUps []*Response
	if len(req.PreviousMessages) > 0 && initial.NextBatchNeeded && autoFollowUp {
		followReq := Request{
			ConversationID:   initial.ConversationID,
			SessionID:        initial.SessionID,
			Context:          req.Context,
			PreviousMessages: req.PreviousMessages,
			Metadata:         req.Metadata,
		}

		for round := 1; round < maxRounds; round++ {
			followUp, err := g.Generate(ctx, &followReq)
			if err != nil {
				return nil, err
			}
			followUp.CurrentQuestion = RenderNumbered(followUp.Questions)

			followUps = append(followUps, followUp)
			allQuestions = append(allQuestions, followUp.Questions...)

			if !followUp.NextBatchNeeded {
				break
			}
		}
	}

	return &AutomaticResponse{
		InitialQuestions:     initial,
		FollowUpQuestions:    followUps,
		AllQuestionsCombined: RenderNumbered(allQuestions),
		ConversationID:       initial.ConversationID,
		SessionID:            initial.SessionID,
		TotalQuestions:       len(allQuestions),
		Metadata: map[string]any{
			"rounds_generated": 1 + len(followUps),
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
			"auto_follow_up":   autoFollowUp,
			"conversation_id":  initial.ConversationID,
		},
	}, nil
}
