package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeRoutingFailure      = "ROUTING_FAILURE"
	ErrCodePlanSchemaViolation = "PLAN_SCHEMA_VIOLATION"
	ErrCodeCapability          = "CAPABILITY_INVOCATION_ERROR"
	ErrCodeTimeout             = "TIMEOUT_ERROR"
	ErrCodeLoopExhausted       = "LOOP_EXHAUSTED"
	ErrCodeCheckpoint          = "CHECKPOINT_UNAVAILABLE"
	ErrCodeReflectionWrite     = "REFLECTION_WRITE_FAILURE"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeCancelled           = "CANCELLED"
	ErrCodeStore               = "STORE_ERROR"
)

// WayfindError is the structured error type for all wayfind operations.
type WayfindError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	TaskIndex int            `json:"task_index,omitempty"`
	Cause     error          `json:"-"`
}

func (e *WayfindError) Error() string {
	if e.TaskIndex > 0 {
		return fmt.Sprintf("[%s] task %d: %s", e.Code, e.TaskIndex, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *WayfindError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error class is worth retrying.
// Only transient collaborator failures qualify; everything else is a
// deterministic failure and retrying would repeat it.
func (e *WayfindError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeTimeout, ErrCodeStore:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error aborts the current turn instead of being
// absorbed into state as a fallback marker or failure observation.
func (e *WayfindError) IsFatal() bool {
	switch e.Code {
	case ErrCodeRoutingFailure, ErrCodePlanSchemaViolation, ErrCodeCheckpoint, ErrCodeInvalidTransition, ErrCodeConflict:
		return true
	default:
		return false
	}
}

// NewError creates a new WayfindError.
func NewError(code, message string) *WayfindError {
	return &WayfindError{Code: code, Message: message}
}

// NewErrorf creates a new WayfindError with a formatted message.
func NewErrorf(code, format string, args ...any) *WayfindError {
	return &WayfindError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithTask attaches a 1-based sub-task index to the error.
func (e *WayfindError) WithTask(index int) *WayfindError {
	e.TaskIndex = index
	return e
}

// WithCause attaches an underlying cause.
func (e *WayfindError) WithCause(err error) *WayfindError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *WayfindError) WithDetails(details map[string]any) *WayfindError {
	e.Details = details
	return e
}
