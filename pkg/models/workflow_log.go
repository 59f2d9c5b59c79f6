package models

import "time"

// LogStatus classifies a workflow log entry.
type LogStatus string

const (
	LogStatusSuccess LogStatus = "success"
	LogStatusFailure LogStatus = "failure"
	LogStatusInfo    LogStatus = "info"
)

// Log actions recorded by the engine.
const (
	LogActionTrigger     = "trigger"
	LogActionStepStarted = "step_started"
	LogActionStepDone    = "step_completed"
	LogActionStepFailed  = "step_failed"
	LogActionStepSkipped = "step_skipped"
	LogActionEmailQueued = "email_queued"
	LogActionEmailSent   = "email_sent"
	LogActionEmailFailed = "email_failed"
)

// WorkflowLog is one entry of the append-only audit trail. Entries are never
// mutated or deleted; one entry is written per meaningful state transition.
type WorkflowLog struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	RunID      string         `json:"run_id,omitempty"`
	StepID     *string        `json:"step_id,omitempty"`
	Action     string         `json:"action"`
	Status     LogStatus      `json:"status"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
