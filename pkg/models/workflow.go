// Package models defines the core domain models for the automation engine.
package models

import "time"

// TriggerType identifies the business event class a workflow subscribes to.
type TriggerType string

const (
	TriggerInvoiceCreated TriggerType = "invoice.created"
	TriggerInvoiceOverdue TriggerType = "invoice.overdue"
	TriggerClientAdded    TriggerType = "client.added"
	TriggerManual         TriggerType = "manual"
)

// KnownTriggerTypes lists every trigger type the dispatcher accepts.
var KnownTriggerTypes = []TriggerType{
	TriggerInvoiceCreated,
	TriggerInvoiceOverdue,
	TriggerClientAdded,
	TriggerManual,
}

func (t TriggerType) Valid() bool {
	for _, known := range KnownTriggerTypes {
		if t == known {
			return true
		}
	}

	return false
}

// ActionType identifies what a workflow step does when it executes.
type ActionType string

const (
	ActionSendEmail   ActionType = "send_email"
	ActionWait        ActionType = "wait"
	ActionConditional ActionType = "conditional"
)

// Workflow is a named, owned, activatable automation template. Only active
// workflows are matched against incoming events, and matching is always scoped
// to the owner's account.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"         validate:"required,min=3"`
	TriggerType TriggerType     `json:"trigger_type" validate:"required"`
	Active      bool            `json:"active"`
	OwnerID     string          `json:"owner_id"     validate:"required"`
	Steps       []*WorkflowStep `json:"steps"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// FirstStep returns the step with the lowest order, or nil for an empty workflow.
func (w *Workflow) FirstStep() *WorkflowStep {
	var first *WorkflowStep

	for _, step := range w.Steps {
		if first == nil || step.StepOrder < first.StepOrder {
			first = step
		}
	}

	return first
}

// StepByID returns the step definition with the given ID, or nil.
func (w *Workflow) StepByID(stepID string) *WorkflowStep {
	for _, step := range w.Steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}

// NextStep returns the step with the lowest order strictly greater than the
// given order, or nil when the workflow has no further steps.
func (w *Workflow) NextStep(afterOrder int) *WorkflowStep {
	var next *WorkflowStep

	for _, step := range w.Steps {
		if step.StepOrder <= afterOrder {
			continue
		}

		if next == nil || step.StepOrder < next.StepOrder {
			next = step
		}
	}

	return next
}
