package question

import (
	"errors"
	"fmt"
)

// Generation-path failures. All of them are treated as transient by the
// orchestrator and never reach its callers.
var (
	ErrNetwork       = errors.New("generation service unreachable")
	ErrEmptyResponse = errors.New("generation service returned no content")
	ErrParse         = errors.New("generation output is not valid json")
)

// ErrorKind labels a generation-path error for logs and metrics.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindNetwork       ErrorKind = "network"
	KindEmptyResponse ErrorKind = "empty_response"
	KindParse         ErrorKind = "parse"
	KindValidation    ErrorKind = "validation"
	KindUnknown       ErrorKind = "unknown"
)

// ValidationError names the first structural constraint a response violated.
// Index is the offending question position, or -1 for set-level constraints.
type ValidationError struct {
	Constraint string
	Index      int
	Detail     string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("validation failed: questions[%d].%s: %s", e.Index, e.Constraint, e.Detail)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Constraint, e.Detail)
}

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrEmptyResponse):
		return KindEmptyResponse
	case errors.Is(err, ErrParse):
		return KindParse
	default:
		return KindUnknown
	}
}
