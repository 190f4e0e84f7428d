package ai

import (
	"fmt"
	"strings"
)

const generationSystemPrompt = "You generate survey questions. Always return valid JSON."

// BuildPrompt renders the user message for one generation call. The output is
// deterministic for a given query and counts.
func BuildPrompt(query string, numQuestions, numAnswers int) string {
	example := make([]string, numAnswers)
	for i := range example {
		example[i] = fmt.Sprintf("%q", fmt.Sprintf("Option %d", i+1))
	}

	ids := make([]string, 0, numQuestions)
	for i := 1; i <= numQuestions && i <= 3; i++ {
		ids = append(ids, fmt.Sprintf("q%d", i))
	}
	if numQuestions > 3 {
		ids = append(ids, "etc.")
	}

	return fmt.Sprintf(`Given this user request: %q

Generate %d multiple choice questions to understand their preferences.
Each question should have exactly %d answer options.

Return ONLY valid JSON in this exact format:
{
  "questions": [
    {
      "id": "q1",
      "text": "Question text?",
      "answers": [%s]
    }
  ]
}

Requirements:
- Clear, specific questions
- Exactly %d answers per question
- Concise answer options (2-4 words)
- Relevant to the user's request
- Use IDs: %s`,
		strings.TrimSpace(query), numQuestions, numAnswers,
		strings.Join(example, ", "), numAnswers, strings.Join(ids, ", "))
}
