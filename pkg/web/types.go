// Package web provides HTTP request and response types for the automation API.
package web

import (
	"time"

	"github.com/flowbill/flowbill/pkg/models"
)

// DispatchEventRequest is the request body for posting a business event.
type DispatchEventRequest struct {
	TriggerType string         `json:"trigger_type" validate:"required"`
	OwnerID     string         `json:"owner_id"     validate:"required"`
	Payload     map[string]any `json:"payload"`
}

// ScheduleEmailRequest is the request body for a user "send later" email.
// Past schedule times are accepted and delivered on the next sweep.
type ScheduleEmailRequest struct {
	Recipient   string    `json:"recipient"    validate:"required,email"`
	Subject     string    `json:"subject"      validate:"required"`
	Body        string    `json:"body"         validate:"required"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	CreatedBy   string    `json:"created_by"   validate:"required"`
}

// RunResponse is a run with its step states and audit trail.
type RunResponse struct {
	Run   *models.WorkflowRun   `json:"run"`
	Steps []*models.StepState   `json:"steps"`
	Logs  []*models.WorkflowLog `json:"logs"`
}
