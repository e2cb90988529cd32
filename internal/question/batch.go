package question

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// initialBatchSize is the number of questions in the first batch of a
	// conversation; followUpBatchSize applies to every later batch.
	initialBatchSize  = 5
	followUpBatchSize = 3

	// minTotalQuestions anchors the continuation heuristics when the model
	// does not supply its own assessment.
	minTotalQuestions = 8
)

// generateBatch produces one batch of questions plus continuation metadata.
// It never fails: a model or parse error on the batch call yields a
// deterministic fallback batch, and an error on the continuation call
// yields heuristic metadata.
func (s *Service) generateBatch(ctx context.Context, contextText, previousMessages string, batchSize, startingNumber int) ([]generatedQuestion, batchMetadata) {
	raw, err := s.model.Generate(ctx, buildBatchPrompt(contextText, previousMessages, batchSize, startingNumber))
	if err != nil {
		s.logger.Error("question batch generation failed", "error", err)
		return fallbackBatch(contextText, batchSize, startingNumber)
	}

	items, err := extractItems(raw)
	if err != nil {
		s.logger.Error("question batch response unparsable", "response", truncateForLog(raw, 200))
		return fallbackBatch(contextText, batchSize, startingNumber)
	}

	questions := repairBatch(items, contextText, batchSize, startingNumber)
	endingNumber := startingNumber + len(questions) - 1

	meta := batchMetadata{
		BatchSize:               len(questions),
		StartingQuestionNumber:  startingNumber,
		EndingQuestionNumber:    endingNumber,
		GeneratedAt:             time.Now().UTC(),
		NextBatchNeeded:         true,
		TotalQuestionsEstimated: minTotalQuestions,
	}

	metaRaw, err := s.model.Generate(ctx, buildContinuationPrompt(
		contextText, previousMessages, startingNumber, endingNumber, renderGenerated(questions)))
	if err == nil {
		var obj map[string]any
		if obj, err = extractObject(metaRaw); err == nil {
			if needed, ok := boolField(obj, "next_batch_needed"); ok {
				meta.NextBatchNeeded = needed
			}
			if total, ok := intField(obj, "total_questions_estimated"); ok {
				meta.TotalQuestionsEstimated = total
			}
		}
	}
	if err != nil {
		s.logger.Warn("continuation assessment failed, using heuristics", "error", err)
		meta.NextBatchNeeded = endingNumber+1 < minTotalQuestions
		meta.TotalQuestionsEstimated = max(endingNumber+3, minTotalQuestions)
	}

	return questions, meta
}

// repairBatch normalizes raw model objects into complete questions:
// missing text is recovered from alternative keys or synthesized, missing
// numbers are assigned sequentially, oversized batches are truncated, and
// undersized ones are padded with filler questions.
func repairBatch(items []map[string]any, contextText string, batchSize, startingNumber int) []generatedQuestion {
	questions := make([]generatedQuestion, 0, batchSize)
	for i, obj := range items {
		if len(questions) == batchSize {
			break
		}

		text := stringField(obj, "question_text")
		if text == "" {
			text = questionTextFallback(obj)
		}
		if text == "" {
			text = fmt.Sprintf("Question #%d", startingNumber+i)
		}

		number, ok := intField(obj, "question_number")
		if !ok {
			number = startingNumber + i
		}

		questions = append(questions, generatedQuestion{
			Text:                  text,
			Number:                number,
			ImportanceExplanation: stringField(obj, "importance_explanation"),
			InformationToLookFor:  stringField(obj, "information_to_look_for"),
		})
	}

	for len(questions) < batchSize {
		questions = append(questions, generatedQuestion{
			Text:                  fmt.Sprintf("Can you provide more details about your %s?", firstWord(contextText, "goals")),
			Number:                startingNumber + len(questions),
			ImportanceExplanation: "This will help gather more specific information.",
			InformationToLookFor:  "Additional context and clarification.",
		})
	}

	return questions
}

// fallbackBatch synthesizes a full batch without the model. Used when the
// batch call fails outright; the metadata marks the batch so callers can
// tell generated questions from synthesized ones.
func fallbackBatch(contextText string, batchSize, startingNumber int) ([]generatedQuestion, batchMetadata) {
	questions := make([]generatedQuestion, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		var text string
		switch i {
		case 0:
			text = fmt.Sprintf("What are your main goals related to %s?", firstWord(contextText, "this topic"))
		case 1:
			text = "What challenges do you anticipate in achieving these goals?"
		case 2:
			text = "What resources do you have available to help you with these goals?"
		case 3:
			text = "How will you measure your progress toward these goals?"
		default:
			text = fmt.Sprintf("What else would you like to share about your %s?", firstWord(contextText, "goals"))
		}

		questions = append(questions, generatedQuestion{
			Text:                  text,
			Number:                startingNumber + i,
			ImportanceExplanation: "This is an essential question to understand your situation.",
			InformationToLookFor:  "Specific details and context.",
		})
	}

	meta := batchMetadata{
		BatchSize:               len(questions),
		StartingQuestionNumber:  startingNumber,
		EndingQuestionNumber:    startingNumber + len(questions) - 1,
		GeneratedAt:             time.Now().UTC(),
		NextBatchNeeded:         startingNumber+len(questions) < minTotalQuestions,
		TotalQuestionsEstimated: max(startingNumber+len(questions)+2, minTotalQuestions),
		FallbackGeneration:      true,
	}
	return questions, meta
}

// renderGenerated formats a batch as a numbered list, one question per line.
func renderGenerated(questions []generatedQuestion) string {
	lines := make([]string, 0, len(questions))
	for _, q := range questions {
		lines = append(lines, fmt.Sprintf("%d. %s", q.Number, q.Text))
	}
	return strings.Join(lines, "\n")
}
