// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound indicates a workflow run was not found by the given identifier.
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrStepStateNotFound indicates a step state was not found by the given identifier.
	ErrStepStateNotFound = errors.New("step state not found")

	// ErrScheduledEmailNotFound indicates a scheduled email was not found by the given identifier.
	ErrScheduledEmailNotFound = errors.New("scheduled email not found")

	// ErrStatusConflict indicates a compare-and-set transition found the row
	// in a different status than expected.
	ErrStatusConflict = errors.New("status conflict")

	// ErrDuplicateStepOrder indicates two steps of one workflow share a step order.
	ErrDuplicateStepOrder = errors.New("duplicate step order")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// ScheduledEmailError wraps scheduled email errors with additional context.
type ScheduledEmailError struct {
	Op      string
	EmailID string
	Err     error
}

func (e *ScheduledEmailError) Error() string {
	return fmt.Sprintf("%s operation failed for scheduled email %s: %v", e.Op, e.EmailID, e.Err)
}

func (e *ScheduledEmailError) Unwrap() error {
	return e.Err
}

func (e *ScheduledEmailError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewScheduledEmailError creates a new scheduled email error with context.
func NewScheduledEmailError(op, emailID string, err error) *ScheduledEmailError {
	return &ScheduledEmailError{
		Op:      op,
		EmailID: emailID,
		Err:     err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsScheduledEmailNotFound checks if an error indicates a scheduled email was not found.
func IsScheduledEmailNotFound(err error) bool {
	return errors.Is(err, ErrScheduledEmailNotFound)
}

// IsStatusConflict checks if an error indicates a lost compare-and-set transition.
func IsStatusConflict(err error) bool {
	return errors.Is(err, ErrStatusConflict)
}
