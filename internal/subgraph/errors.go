package subgraph

import (
	"context"
	"errors"
	"fmt"

	result "github.com/hanpama/fedgraph/internal/result"
)

// StepError is a classified failure of a subgraph call.
type StepError struct {
	Kind    result.ErrorKind
	Service string
	Message string
	Err     error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *StepError) Unwrap() error { return e.Err }

// Retryable reports whether sending the same request again may succeed.
func Retryable(kind result.ErrorKind) bool {
	return kind == result.KindTransport
}

// PreconditionViolation means a representation lacks a field the step
// declared as required. It signals a planner or executor bug and aborts
// the whole request.
type PreconditionViolation struct {
	StepID   int
	Service  string
	TypeName string
	Field    string
	Index    int
}

func (e *PreconditionViolation) Error() string {
	return fmt.Sprintf("step %d (%s): representation %d of %s lacks required field %q",
		e.StepID, e.Service, e.Index, e.TypeName, e.Field)
}

// Classify maps a transport error to a response error kind.
func Classify(err error) result.ErrorKind {
	var se *StepError
	switch {
	case errors.As(err, &se):
		return se.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return result.KindTimeout
	case errors.Is(err, context.Canceled):
		return result.KindCancelled
	default:
		return result.KindTransport
	}
}
