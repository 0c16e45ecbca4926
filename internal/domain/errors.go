package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable classifier callers switch on to pick a message.
type ErrorKind string

const (
	ErrInvalidTransition        ErrorKind = "INVALID_TRANSITION"
	ErrQuoteNotReady            ErrorKind = "QUOTE_NOT_READY"
	ErrQuoteExpired             ErrorKind = "QUOTE_EXPIRED"
	ErrAlreadyConverted         ErrorKind = "ALREADY_CONVERTED"
	ErrMissingFulfillmentDetail ErrorKind = "MISSING_FULFILLMENT_DETAIL"
	ErrValidation               ErrorKind = "VALIDATION_FAILED"
	ErrNotFound                 ErrorKind = "NOT_FOUND"
)

// Error is a recoverable lifecycle error. No state has been changed when one is returned.
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// KindOf returns the kind carried by err, or "" when err is not a lifecycle error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

func invalidTransition(from, to Stage) *Error {
	return NewError(ErrInvalidTransition, fmt.Sprintf("cannot move from %q to %q", from, to), map[string]any{
		"from": from,
		"to":   to,
	})
}

func alreadyConverted(jobID string) *Error {
	return NewError(ErrAlreadyConverted, "service request already converted to a job", map[string]any{
		"converted_job_id": jobID,
	})
}

func missingDetail(field, message string) *Error {
	return NewError(ErrMissingFulfillmentDetail, message, map[string]any{"field": field})
}

func validationError(field, message string) *Error {
	return NewError(ErrValidation, message, map[string]any{"field": field})
}
