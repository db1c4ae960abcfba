// Package apperrors defines the tagged error taxonomy used across the
// scheduling engine: every error returned from a repository, engine, or
// CLI boundary carries a Kind so callers can branch on category instead
// of matching strings.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an AppError for programmatic handling.
type Kind string

const (
	KindInvalidInput            Kind = "INVALID_INPUT"
	KindNotFound                Kind = "NOT_FOUND"
	KindBusinessRuleViolation   Kind = "BUSINESS_RULE_VIOLATION"
	KindVersionConflict         Kind = "VERSION_CONFLICT"
	KindStalePlanRevision       Kind = "STALE_PLAN_REVISION"
	KindDatabaseError           Kind = "DATABASE_ERROR"
	KindInternalError           Kind = "INTERNAL_ERROR"
)

// AppError is the structured error type returned across package boundaries.
type AppError struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New creates an AppError with no wrapped cause.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap creates an AppError wrapping an existing error.
func Wrap(kind Kind, cause error, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// Wrapf creates an AppError wrapping cause with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithDetails attaches structured detail fields and returns the receiver
// for chaining at the construction site.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithDetailsf attaches a single formatted detail under key.
func (e *AppError) WithDetailsf(key, format string, args ...any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = fmt.Sprintf(format, args...)
	return e
}

// IsKind reports whether err is an *AppError of the given kind, anywhere
// in its unwrap chain.
func IsKind(err error, kind Kind) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// NotFoundf is a convenience constructor for the common not-found case.
func NotFoundf(format string, args ...any) *AppError {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// Invalidf is a convenience constructor for input validation failures.
func Invalidf(format string, args ...any) *AppError {
	return New(KindInvalidInput, fmt.Sprintf(format, args...))
}

// BusinessRuleViolationf is a convenience constructor for rule violations
// (frozen-zone writes, capacity overflow under STRICT mode, and similar).
func BusinessRuleViolationf(format string, args ...any) *AppError {
	return New(KindBusinessRuleViolation, fmt.Sprintf(format, args...))
}

// VersionConflictf is a convenience constructor for the case where a
// caller's assumed base version has drifted from the plan's actual active
// version (e.g. a draft published after another recalc superseded it).
func VersionConflictf(format string, args ...any) *AppError {
	return New(KindVersionConflict, fmt.Sprintf(format, args...))
}
