package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyClaimed    = errors.New("activity already claimed")
	ErrNotClaimant       = errors.New("activity claimed by a different user")
	ErrValidation        = errors.New("validation failed")
)

// TransitionError reports a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid activity status transition %s -> %s", e.From, e.To)
}

func (e TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError carries a field-level message and unwraps to ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return ValidationError{Field: field, Message: msg}
}
