// Package events defines event types emitted by the automation engine.
package events

import (
	"time"

	"github.com/flowbill/flowbill/pkg/models"
)

type EventType string

// Topic carries every engine event.
const Topic = "flowbill.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunTriggeredEvent   EventType = "run.triggered"
	StepCompletedEvent  EventType = "step.completed"
	StepFailedEvent     EventType = "step.failed"
	StepSkippedEvent    EventType = "step.skipped"
	EmailSentEvent      EventType = "email.sent"
	EmailFailedEvent    EventType = "email.failed"
	SweepCompletedEvent EventType = "sweep.completed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	OwnerID    string    `json:"owner_id,omitempty"`
}

// RunTriggered is published once per workflow instantiated by a dispatched
// business event.
type RunTriggered struct {
	BaseEvent

	RunID       string             `json:"run_id"`
	TriggerType models.TriggerType `json:"trigger_type"`
	EntityID    string             `json:"entity_id,omitempty"`
	TriggerData map[string]any     `json:"trigger_data,omitempty"`
}

func (e RunTriggered) GetType() EventType {
	return RunTriggeredEvent
}

type StepCompleted struct {
	BaseEvent

	RunID      string            `json:"run_id"`
	StepID     string            `json:"step_id"`
	ActionType models.ActionType `json:"action_type"`
	NextStepID string            `json:"next_step_id,omitempty"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepFailed struct {
	BaseEvent

	RunID  string `json:"run_id"`
	StepID string `json:"step_id"`
	Error  string `json:"error"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

type StepSkipped struct {
	BaseEvent

	RunID  string `json:"run_id"`
	StepID string `json:"step_id"`
	Reason string `json:"reason,omitempty"`
}

func (e StepSkipped) GetType() EventType {
	return StepSkippedEvent
}

type EmailSent struct {
	BaseEvent

	EmailID   string    `json:"email_id"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sent_at"`
}

func (e EmailSent) GetType() EventType {
	return EmailSentEvent
}

type EmailFailed struct {
	BaseEvent

	EmailID   string `json:"email_id"`
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

func (e EmailFailed) GetType() EventType {
	return EmailFailedEvent
}

// SweepCompleted aggregates one periodic sweep's counters.
type SweepCompleted struct {
	BaseEvent

	EmailsProcessed    int           `json:"emails_processed"`
	EmailsSent         int           `json:"emails_sent"`
	EmailsFailed       int           `json:"emails_failed"`
	WorkflowsProcessed int           `json:"workflows_processed"`
	WorkflowsFailed    int           `json:"workflows_failed"`
	Duration           time.Duration `json:"duration"`
}

func (e SweepCompleted) GetType() EventType {
	return SweepCompletedEvent
}
