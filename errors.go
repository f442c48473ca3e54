package smartflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error codes
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeUnknownStepType = "UNKNOWN_STEP_TYPE"
	ErrCodeExecutionFailed = "EXECUTION_FAILED"
	ErrCodeCollaborator    = "COLLABORATOR_ERROR"
	ErrCodeCancelled       = "CANCELLED"
	ErrCodePanic           = "PANIC"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

var (
	// ErrUnknownStepType is returned when no handler is registered for a step type
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrWorkflowNotFound is returned by stores when a workflow does not exist
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// WorkflowError represents an error during workflow execution
type WorkflowError struct {
	Message   string         `json:"message"`
	Code      string         `json:"code"`
	Step      string         `json:"step,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`

	cause error
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s (step: %s)", e.Code, e.Message, e.Step)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *WorkflowError) Unwrap() error {
	return e.cause
}

// NewWorkflowError creates a new workflow error
func NewWorkflowError(code, message string) *WorkflowError {
	return &WorkflowError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// NewWorkflowErrorWithStep creates a new workflow error with step context
func NewWorkflowErrorWithStep(code, message, step string) *WorkflowError {
	return &WorkflowError{
		Message:   message,
		Code:      code,
		Step:      step,
		Timestamp: time.Now(),
	}
}

// WithDetails adds details to the error
func (e *WorkflowError) WithDetails(details map[string]any) *WorkflowError {
	e.Details = details
	return e
}

// WithCause attaches the underlying error
func (e *WorkflowError) WithCause(err error) *WorkflowError {
	e.cause = err
	return e
}

// StepError represents a step that failed after exhausting its retries
type StepError struct {
	StepID   string `json:"stepId"`
	Code     string `json:"code"`
	Attempts int    `json:"attempts"`

	cause error
}

// Error implements the error interface
func (e *StepError) Error() string {
	return fmt.Sprintf("[%s] step %s failed after %d attempt(s): %v", e.Code, e.StepID, e.Attempts, e.cause)
}

// Unwrap returns the last attempt's error
func (e *StepError) Unwrap() error {
	return e.cause
}

// NewStepError wraps the last attempt's error for a step
func NewStepError(stepID string, attempts int, cause error) *StepError {
	code := ErrCodeExecutionFailed
	var we *WorkflowError
	switch {
	case errors.Is(cause, ErrUnknownStepType):
		code = ErrCodeUnknownStepType
	case errors.Is(cause, context.Canceled):
		code = ErrCodeCancelled
	case errors.As(cause, &we):
		code = we.Code
	}
	return &StepError{
		StepID:   stepID,
		Code:     code,
		Attempts: attempts,
		cause:    cause,
	}
}

// IsRetryable reports whether another attempt could change the outcome.
// Configuration failures and cancellation are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnknownStepType) || errors.Is(err, context.Canceled) {
		return false
	}
	var we *WorkflowError
	if errors.As(err, &we) && we.Code == ErrCodeValidation {
		return false
	}
	return true
}

// IsCancelled reports whether the error stems from context cancellation
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
