package models

import (
	"errors"
	"time"
)

// ScheduledEmailStatus is the delivery status of a scheduled email.
type ScheduledEmailStatus string

const (
	ScheduledEmailStatusScheduled ScheduledEmailStatus = "scheduled"
	ScheduledEmailStatusSent      ScheduledEmailStatus = "sent"
	ScheduledEmailStatusFailed    ScheduledEmailStatus = "failed"
	ScheduledEmailStatusCanceled  ScheduledEmailStatus = "canceled"
)

// Terminal reports whether the sweep must never touch this row again.
func (s ScheduledEmailStatus) Terminal() bool {
	return s != ScheduledEmailStatusScheduled
}

var ErrInvalidScheduledEmail = errors.New("invalid scheduled email")

// ScheduledEmail is a time-anchored delivery task independent of workflow
// step bookkeeping. It is created by a user "send later" action or by a
// send_email step with a delay, and transitions scheduled -> sent|failed
// exactly once by the sweep. Cancellation is a terminal status set outside
// the sweep and never overwritten by it.
//
// All timestamps are UTC time.Time values; the write path and the sweep
// share this single representation, formatted strings are never compared.
type ScheduledEmail struct {
	ID           string               `json:"id"           validate:"required"`
	Recipient    string               `json:"recipient"    validate:"required,email"`
	Subject      string               `json:"subject"      validate:"required"`
	Body         string               `json:"body"         validate:"required"`
	ScheduledAt  time.Time            `json:"scheduled_at" validate:"required"`
	Status       ScheduledEmailStatus `json:"status"`
	SentAt       *time.Time           `json:"sent_at,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	CreatedBy    string               `json:"created_by"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// NewScheduledEmail creates a pending delivery due at scheduledAt.
func NewScheduledEmail(id, recipient, subject, body, createdBy string, scheduledAt time.Time) *ScheduledEmail {
	now := time.Now().UTC()

	return &ScheduledEmail{
		ID:          id,
		Recipient:   recipient,
		Subject:     subject,
		Body:        body,
		ScheduledAt: scheduledAt.UTC(),
		Status:      ScheduledEmailStatusScheduled,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Due reports whether the email is eligible for the sweep at the given time.
func (e *ScheduledEmail) Due(now time.Time) bool {
	return e.Status == ScheduledEmailStatusScheduled && !e.ScheduledAt.After(now)
}
