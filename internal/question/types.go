package question

import "time"

// MessageItem is one prior message supplied with a generation request.
type MessageItem struct {
	Role      string     `json:"role"` // "user", "assistant", "system"
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// QuestionItem is a single generated question within a batch.
type QuestionItem struct {
	QuestionText   string         `json:"question_text"`
	QuestionNumber int            `json:"question_number"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Request describes one generation call. All identifiers are optional;
// missing ones are resolved or created by the service.
type Request struct {
	UserID           string         `json:"user_id,omitempty"`
	ConversationID   string         `json:"conversation_id,omitempty"`
	SessionID        string         `json:"session_id,omitempty"`
	Context          string         `json:"context,omitempty"`
	PreviousMessages []MessageItem  `json:"previous_messages,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Response is the result of one generation call: a batch of questions plus
// continuation metadata.
type Response struct {
	CurrentQuestion         string         `json:"current_question"`
	Questions               []QuestionItem `json:"questions"`
	ConversationID          string         `json:"conversation_id"`
	SessionID               string         `json:"session_id"`
	CurrentQuestionNumber   int            `json:"current_question_number"`
	TotalQuestionsInBatch   int            `json:"total_questions_in_batch"`
	TotalQuestionsEstimated int            `json:"total_questions_estimated"`
	NextBatchNeeded         bool           `json:"next_batch_needed"`
	Metadata                map[string]any `json:"metadata,omitempty"`
}

// generatedQuestion is one question as produced by the batch generator,
// before persistence.
type generatedQuestion struct {
	Text                 string
	Number               int
	ImportanceExplanation string
	InformationToLookFor string
}

// batchMetadata describes one generated batch.
type batchMetadata struct {
	BatchSize               int       `json:"batch_size"`
	StartingQuestionNumber  int       `json:"starting_question_number"`
	EndingQuestionNumber    int       `json:"ending_question_number"`
	GeneratedAt             time.Time `json:"generated_at"`
	NextBatchNeeded         bool      `json:"next_batch_needed"`
	TotalQuestionsEstimated int       `json:"total_questions_estimated"`
	FallbackGeneration      bool      `json:"fallback_generation,omitempty"`
}
