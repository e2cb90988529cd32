package question

import "fmt"

// batchPromptTemplate asks the model for a full batch of numbered
// questions as a JSON array. %d: batch size (twice), %s: context,
// previous messages, %d: starting number.
const batchPromptTemplate = `You are an expert question generator for a sequential questioning system.
Your goal is to generate a batch of %d thoughtful, relevant questions based on the provided context.

These questions should:
1. Be clear, specific, and designed to gather useful information
2. Follow a logical progression, with each question building on previous ones
3. Cover different aspects of the topic to get a comprehensive understanding
4. Be diverse in nature (avoid repetition)
5. Be numbered sequentially
6. Be designed for the user to answer all questions in a single response

For each question, also provide:
- An explanation of why this question is important to ask
- A suggestion for what kind of information to look for in the answer

The user will see all questions at once in a numbered list format, and will be expected to answer all of them in a single response using the same numbering format.

Context: %s

Previous messages (if any):
%s

Generate %d sequential questions starting with question #%d. Format your response as a JSON array of question objects, each with 'question_text', 'importance_explanation', and 'information_to_look_for' fields.`

// continuationPromptTemplate asks the model whether more batches are
// needed after the one just produced.
const continuationPromptTemplate = `Based on the context and questions generated so far, determine:
1. Whether more question batches would likely be needed after this one
2. Approximately how many total questions might be appropriate for this topic

Return your answer as JSON with these fields:
- next_batch_needed: boolean
- total_questions_estimated: integer

Context: %s

Previous messages:
%s

Current batch of questions (questions %d to %d):
%s

Provide metadata about whether more questions would be needed:`

// noPreviousMessages is substituted when a request carries no history.
const noPreviousMessages = "No previous messages"

// buildBatchPrompt renders the batch generation prompt.
func buildBatchPrompt(context, previousMessages string, batchSize, startingNumber int) string {
	if previousMessages == "" {
		previousMessages = noPreviousMessages
	}
	return fmt.Sprintf(batchPromptTemplate,
		batchSize, context, previousMessages, batchSize, startingNumber)
}

// buildContinuationPrompt renders the continuation assessment prompt.
func buildContinuationPrompt(context, previousMessages string, startingNumber, endingNumber int, renderedQuestions string) string {
	if previousMessages == "" {
		previousMessages = noPreviousMessages
	}
	return fmt.Sprintf(continuationPromptTemplate,
		context, previousMessages, startingNumber, endingNumber, renderedQuestions)
}
