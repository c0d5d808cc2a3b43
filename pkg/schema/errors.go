package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeGoalNotFound        = "GOAL_NOT_FOUND"
	ErrCodeMalformedPlan       = "MALFORMED_PLAN"
	ErrCodeRouting             = "ROUTING_ERROR"
	ErrCodeUnknownDistribution = "UNKNOWN_DISTRIBUTION"
	ErrCodeBackendUnavailable  = "BACKEND_UNAVAILABLE"
	ErrCodeRebind              = "REBIND_ERROR"

	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeTimeout           = "TIMEOUT_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInterpolation     = "INTERPOLATION_ERROR"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// TaktError is the structured error type for all takt operations.
// ActionID and ActionType identify the plan step that failed so operators
// can pinpoint where a run broke.
type TaktError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	ActionID   string         `json:"action_id,omitempty"`
	ActionType ExecutionType  `json:"action_type,omitempty"`
	Cause      error          `json:"-"`
}

func (e *TaktError) Error() string {
	if e.ActionID != "" {
		return fmt.Sprintf("[%s] action %s: %s", e.Code, e.ActionID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *TaktError) Unwrap() error {
	return e.Cause
}

// NewError creates a new TaktError.
func NewError(code, message string) *TaktError {
	return &TaktError{Code: code, Message: message}
}

// NewErrorf creates a new TaktError with a formatted message.
func NewErrorf(code, format string, args ...any) *TaktError {
	return &TaktError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithAction attaches the failing action's id and execution type.
func (e *TaktError) WithAction(id string, t ExecutionType) *TaktError {
	e.ActionID = id
	e.ActionType = t
	return e
}

// WithCause attaches an underlying cause.
func (e *TaktError) WithCause(err error) *TaktError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *TaktError) WithDetails(details map[string]any) *TaktError {
	e.Details = details
	return e
}

// AsTaktError extracts the first *TaktError in err's chain.
func AsTaktError(err error) (*TaktError, bool) {
	var te *TaktError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsCode reports whether err carries the given error code in its chain.
func IsCode(err error, code string) bool {
	te, ok := AsTaktError(err)
	return ok && te.Code == code
}

// CodeOf returns the error code of err, or ErrCodeInternal when err carries none.
func CodeOf(err error) string {
	if te, ok := AsTaktError(err); ok {
		return te.Code
	}
	return ErrCodeInternal
}
