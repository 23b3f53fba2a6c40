package handler

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFlow is returned when no flow answers an interaction.
	ErrNoFlow = errors.New("no flow matches interaction")
	// ErrFlowExpired is returned for components of a flow that already
	// finished or timed out.
	ErrFlowExpired = errors.New("flow instance expired")
)

// UserError is an error type that is used to represent
// an error that should be displayed to the user.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

var _ error = (*UserError)(nil)

func userErrorf(format string, args ...any) *UserError {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}
