package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrDocumentTypeNotFound = errors.New("document type not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConflict             = errors.New("conflicting state")
	ErrTemporary            = errors.New("temporary failure")
	ErrRateLimited          = errors.New("rate limited")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrEntryRemoved         = errors.New("upload entry removed")
	ErrStorageUnavailable   = errors.New("storage unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// UserError pairs a short user-facing message with the diagnostic error
// that produced it. Only Message is ever shown to end users.
type UserError struct {
	Message  string
	Category ErrorCategory
	Err      error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *UserError) Unwrap() error { return e.Err }

// UserMessage extracts the user-facing message from err, falling back to a
// generic text so provider payloads never leak.
func UserMessage(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) && userErr.Message != "" {
		return userErr.Message
	}
	return "Something went wrong. Please try again."
}
