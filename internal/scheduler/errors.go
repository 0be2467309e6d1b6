package scheduler

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a malformed event request or preference set.
// Index is the position of the request in the submitted batch (-1 for
// preferences).
type ValidationError struct {
	Index  int
	Title  string
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var where string
	switch {
	case e.Index < 0:
		where = "preferences"
	case e.Title != "":
		where = fmt.Sprintf("request %d (%q)", e.Index, e.Title)
	default:
		where = fmt.Sprintf("request %d", e.Index)
	}
	msg := fmt.Sprintf("%s: %s: %s", where, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(index int, title, field, reason string, err error) *ValidationError {
	return &ValidationError{Index: index, Title: title, Field: field, Reason: reason, Err: err}
}
