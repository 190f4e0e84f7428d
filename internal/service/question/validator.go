package question

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zhouzirui/askmore/backend/internal/model/question"
)

// Limits carries the counts a caller asked the generator for.
type Limits struct {
	NumQuestions int
	NumAnswers   int
}

// Validator checks a loosely-typed generation response against the question
// set contract.
//
// With Strict unset, a response holding more questions (or more options per
// question) than requested is truncated, and fewer are accepted as long as the
// absolute bounds hold. With Strict set, any count mismatch is rejected.
type Validator struct {
	Strict bool
}

// NewValidator returns a Validator using the given count policy.
func NewValidator(strict bool) *Validator {
	return &Validator{Strict: strict}
}

// Validate converts raw into a question.Set or reports the first violated
// constraint as a *question.ValidationError.
func (v *Validator) Validate(raw any, limits Limits) (question.Set, error) {
	root, ok := raw.(map[string]any)
	if !ok {
		return question.Set{}, setError("root", "expected an object, got %s", typeName(raw))
	}

	field, ok := root["questions"]
	if !ok {
		return question.Set{}, setError("questions", "field is missing")
	}
	items, ok := field.([]any)
	if !ok {
		return question.Set{}, setError("questions", "expected an array, got %s", typeName(field))
	}

	if len(items) < question.MinQuestions || len(items) > question.MaxQuestions {
		return question.Set{}, setError("questions.count", "got %d questions, want %d..%d",
			len(items), question.MinQuestions, question.MaxQuestions)
	}
	if limits.NumQuestions > 0 && len(items) != limits.NumQuestions {
		switch {
		case v.Strict:
			return question.Set{}, setError("questions.count", "got %d questions, requested %d",
				len(items), limits.NumQuestions)
		case len(items) > limits.NumQuestions:
			items = items[:limits.NumQuestions]
		}
	}

	questions := make([]question.Question, 0, len(items))
	for i, item := range items {
		q, err := v.validateQuestion(i, item, limits.NumAnswers)
		if err != nil {
			return question.Set{}, err
		}
		questions = append(questions, q)
	}

	return question.NewSet(questions...), nil
}

func (v *Validator) validateQuestion(index int, item any, numAnswers int) (question.Question, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return question.Question{}, itemError(index, "object", "expected an object, got %s", typeName(item))
	}

	id, ok := obj["id"].(string)
	if !ok {
		return question.Question{}, itemError(index, "id", "expected a string, got %s", typeName(obj["id"]))
	}
	if want := question.SequentialID(index); strings.TrimSpace(id) != want {
		return question.Question{}, itemError(index, "id", "got %q, want %q", id, want)
	}

	text, ok := obj["text"].(string)
	if !ok {
		return question.Question{}, itemError(index, "text", "expected a string, got %s", typeName(obj["text"]))
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < question.MinQuestionTextLength {
		return question.Question{}, itemError(index, "text", "%q is shorter than %d characters",
			text, question.MinQuestionTextLength)
	}

	answers, err := v.validateAnswers(index, obj["answers"], numAnswers)
	if err != nil {
		return question.Question{}, err
	}

	return question.Question{ID: question.SequentialID(index), Text: text, Answers: answers}, nil
}

func (v *Validator) validateAnswers(index int, field any, numAnswers int) ([]string, error) {
	items, ok := field.([]any)
	if !ok {
		return nil, itemError(index, "answers", "expected an array, got %s", typeName(field))
	}

	answers := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for j, item := range items {
		answer, ok := item.(string)
		if !ok {
			return nil, itemError(index, "answers", "option %d: expected a string, got %s", j, typeName(item))
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return nil, itemError(index, "answers", "option %d is empty", j)
		}
		key := strings.ToLower(answer)
		if _, dup := seen[key]; dup {
			return nil, itemError(index, "answers", "duplicate option %q", answer)
		}
		seen[key] = struct{}{}
		answers = append(answers, answer)
	}

	if len(answers) < question.MinAnswers || len(answers) > question.MaxAnswers {
		return nil, itemError(index, "answers", "got %d options, want %d..%d",
			len(answers), question.MinAnswers, question.MaxAnswers)
	}
	if numAnswers > 0 && len(answers) != numAnswers {
		switch {
		case v.Strict:
			return nil, itemError(index, "answers", "got %d options, requested %d", len(answers), numAnswers)
		case len(answers) > numAnswers && numAnswers >= question.MinAnswers:
			answers = answers[:numAnswers]
		}
	}

	return answers, nil
}

func setError(constraint, format string, args ...any) error {
	return &question.ValidationError{Constraint: constraint, Index: -1, Detail: fmt.Sprintf(format, args...)}
}

func itemError(index int, constraint, format string, args ...any) error {
	return &question.ValidationError{Constraint: constraint, Index: index, Detail: fmt.Sprintf(format, args...)}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
