package question

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Bounds shared by generation, validation and the fallback asset.
const (
	MinQuestions          = 1
	MaxQuestions          = 10
	MinAnswers            = 2
	MaxAnswers            = 6
	MinQuestionTextLength = 8
)

// Question is one multiple-choice clarifying question.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Answers []string `json:"answers"`
}

// HasAnswer reports whether answer is one of the offered options.
func (q Question) HasAnswer(answer string) bool {
	return slices.Contains(q.Answers, answer)
}

func (q Question) clone() Question {
	q.Answers = append([]string(nil), q.Answers...)
	return q
}

// Set is an ordered, immutable collection of questions. The zero value is an
// empty set. Untrusted input should go through the validator rather than NewSet.
type Set struct {
	questions []Question
}

// NewSet copies questions into a Set.
func NewSet(questions ...Question) Set {
	copied := make([]Question, len(questions))
	for i, q := range questions {
		copied[i] = q.clone()
	}
	return Set{questions: copied}
}

// Len returns the number of questions.
func (s Set) Len() int {
	return len(s.questions)
}

// Questions returns a copy of the questions in order.
func (s Set) Questions() []Question {
	out := make([]Question, len(s.questions))
	for i, q := range s.questions {
		out[i] = q.clone()
	}
	return out
}

// At returns the i-th question.
func (s Set) At(i int) Question {
	return s.questions[i].clone()
}

// Find looks up a question by id.
func (s Set) Find(id string) (Question, bool) {
	for _, q := range s.questions {
		if q.ID == id {
			return q.clone(), true
		}
	}
	return Question{}, false
}

// IDs returns the question identifiers in order.
func (s Set) IDs() []string {
	ids := make([]string, len(s.questions))
	for i, q := range s.questions {
		ids[i] = q.ID
	}
	return ids
}

// Equal reports whether both sets hold the same questions in the same order.
func (s Set) Equal(other Set) bool {
	return slices.EqualFunc(s.questions, other.questions, func(a, b Question) bool {
		return a.ID == b.ID && a.Text == b.Text && slices.Equal(a.Answers, b.Answers)
	})
}

// ToRaw renders the set as the loosely-typed tree produced by JSON decoding,
// so it can be fed back through validation.
func (s Set) ToRaw() map[string]any {
	items := make([]any, len(s.questions))
	for i, q := range s.questions {
		answers := make([]any, len(q.Answers))
		for j, a := range q.Answers {
			answers[j] = a
		}
		items[i] = map[string]any{
			"id":      q.ID,
			"text":    q.Text,
			"answers": answers,
		}
	}
	return map[string]any{"questions": items}
}

// MarshalJSON encodes the set as a plain array of questions.
func (s Set) MarshalJSON() ([]byte, error) {
	if s.questions == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.questions)
}

// UnmarshalJSON decodes a plain array of questions. It performs no validation.
func (s *Set) UnmarshalJSON(data []byte) error {
	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return err
	}
	*s = NewSet(questions...)
	return nil
}

// SequentialID returns the identifier expected at the zero-based position.
func SequentialID(index int) string {
	return fmt.Sprintf("q%d", index+1)
}
