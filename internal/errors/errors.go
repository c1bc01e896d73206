package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeMalformed represents diffs rejected before merging
	ErrorTypeMalformed ErrorType = "malformed_diff"
	// ErrorTypeValidation represents candidates that failed graph validation
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeTranslation represents failures of the text-to-diff service
	ErrorTypeTranslation ErrorType = "translation"
	// ErrorTypeInterpretation represents failures of the narrative service
	ErrorTypeInterpretation ErrorType = "interpretation"
	// ErrorTypeStore represents snapshot persistence errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeSession represents session registry errors
	ErrorTypeSession ErrorType = "session"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error
}

func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Merge errors

// ErrMalformedDiff is returned when a proposed diff cannot be resolved to node names
type ErrMalformedDiff struct {
	*BaseError
	Problems []string
}

func NewMalformedDiff(problems []string) *ErrMalformedDiff {
	return &ErrMalformedDiff{
		BaseError: NewBaseError(ErrorTypeMalformed, "malformed diff: "+strings.Join(problems, "; "), nil),
		Problems:  problems,
	}
}

// ErrValidationFailed is returned when a merged candidate violates graph invariants
type ErrValidationFailed struct {
	*BaseError
	Violations []string
}

func NewValidationFailed(violations []string) *ErrValidationFailed {
	return &ErrValidationFailed{
		BaseError:  NewBaseError(ErrorTypeValidation, fmt.Sprintf("%d violation(s): %s", len(violations), strings.Join(violations, "; ")), nil),
		Violations: violations,
	}
}

// External service errors

// ErrTranslationFailed is returned when user text could not be turned into a diff
type ErrTranslationFailed struct {
	*BaseError
	Reason string
}

func NewTranslationFailed(reason string, err error) *ErrTranslationFailed {
	return &ErrTranslationFailed{
		BaseError: NewBaseError(ErrorTypeTranslation, "translation failed: "+reason, err),
		Reason:    reason,
	}
}

// ErrInterpretationFailed is returned when no narrative could be produced
type ErrInterpretationFailed struct {
	*BaseError
}

func NewInterpretationFailed(err error) *ErrInterpretationFailed {
	return &ErrInterpretationFailed{
		BaseError: NewBaseError(ErrorTypeInterpretation, "interpretation failed", err),
	}
}

// Store errors

// ErrStoreFailed is returned when a snapshot cannot be saved or loaded
type ErrStoreFailed struct {
	*BaseError
	SessionID string
	Operation string
}

func NewStoreFailed(sessionID, operation string, err error) *ErrStoreFailed {
	return &ErrStoreFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("%s snapshot for session %s", operation, sessionID), err),
		SessionID: sessionID,
		Operation: operation,
	}
}

// Session errors

// ErrSessionNotFound is returned when a session id is unknown
type ErrSessionNotFound struct {
	*BaseError
	SessionID string
}

func NewSessionNotFound(sessionID string) *ErrSessionNotFound {
	return &ErrSessionNotFound{
		BaseError: NewBaseError(ErrorTypeSession, fmt.Sprintf("session not found: %s", sessionID), nil),
		SessionID: sessionID,
	}
}

// ErrSessionLimit is returned when the registry is full
var ErrSessionLimit = NewBaseError(ErrorTypeSession, "session limit reached", nil)

// Context errors

// ErrContextTimeout is returned when an external call exceeds its deadline
type ErrContextTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewContextTimeout(operation string, timeout time.Duration, err error) *ErrContextTimeout {
	return &ErrContextTimeout{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context timeout: %s (timeout: %v)", operation, timeout), err),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Config errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// IsErrorType reports whether err, or any error it wraps, is a BaseError of the given type.
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if t, ok := typeOf(err); ok && t == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

func typeOf(err error) (ErrorType, bool) {
	switch e := err.(type) {
	case *BaseError:
		return e.Type, true
	case interface{ base() *BaseError }:
		return e.base().Type, true
	}
	return "", false
}

func (e *ErrMalformedDiff) base() *BaseError { return e.BaseError }
func (e *ErrValidationFailed) base() *BaseError { return e.BaseError }
func (e *ErrTranslationFailed) base() *BaseError { return e.BaseError }
func (e *ErrInterpretationFailed) base() *BaseError { return e.BaseError }
func (e *ErrStoreFailed) base() *BaseError { return e.BaseError }
func (e *ErrSessionNotFound) base() *BaseError { return e.BaseError }
func (e *ErrContextTimeout) base() *BaseError { return e.BaseError }
func (e *ErrConfigValidationFailed) base() *BaseError { return e.BaseError }
func (e *ErrConfigMissingRequired) base() *BaseError { return e.BaseError }
