package models

import "time"

// WorkflowRun is one instantiation of a workflow in reaction to a single
// trigger occurrence. It is immutable after creation and anchors the family
// of step states and log entries produced by the run.
type WorkflowRun struct {
	ID          string         `json:"id"           validate:"required"`
	WorkflowID  string         `json:"workflow_id"  validate:"required"`
	TriggerType TriggerType    `json:"trigger_type" validate:"required"`
	EntityID    string         `json:"entity_id,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// StepStatus is the execution status of one step within one run.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusWaiting   StepStatus = "waiting"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Terminal reports whether no further transition is legal from this status.
func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// CanTransitionTo enforces the step state machine: pending and waiting may
// move between each other and into running, running resolves to a terminal
// status, terminal statuses never move again.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	if s.Terminal() {
		return false
	}

	switch s {
	case StepStatusPending, StepStatusWaiting:
		return next == StepStatusPending || next == StepStatusWaiting ||
			next == StepStatusRunning || next == StepStatusSkipped
	case StepStatusRunning:
		return next == StepStatusCompleted || next == StepStatusFailed || next == StepStatusSkipped
	default:
		return false
	}
}

// StepState is the mutable execution state of one step for one run. It has
// its own identity keyed by (RunID, StepID) so overlapping runs of the same
// workflow never clobber each other's status.
type StepState struct {
	ID           string     `json:"id"          validate:"required"`
	RunID        string     `json:"run_id"      validate:"required"`
	WorkflowID   string     `json:"workflow_id" validate:"required"`
	StepID       string     `json:"step_id"     validate:"required"`
	Status       StepStatus `json:"status"`
	EnteredAt    time.Time  `json:"entered_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// NewStepState creates the pending state a step starts in.
func NewStepState(id string, run *WorkflowRun, stepID string, now time.Time) *StepState {
	return &StepState{
		ID:         id,
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		StepID:     stepID,
		Status:     StepStatusPending,
		EnteredAt:  now,
		UpdatedAt:  now,
	}
}
