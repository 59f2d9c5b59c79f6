// Package schedqueue manages the scheduled email queue: time-anchored
// deliveries created by users or by workflow steps, drained by the periodic
// sweep.
package schedqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/flowbill/flowbill/pkg/eventbus"
	"github.com/flowbill/flowbill/pkg/events"
	"github.com/flowbill/flowbill/pkg/mailer"
	"github.com/flowbill/flowbill/pkg/models"
	"github.com/flowbill/flowbill/pkg/persistence"
)

// DefaultSendTimeout bounds one delivery attempt inside a sweep.
const DefaultSendTimeout = 30 * time.Second

type Queue struct {
	persistence persistence.Persistence
	mailer      mailer.Mailer
	eventBus    eventbus.EventBus
	logger      *slog.Logger
	validate    *validator.Validate
	sendTimeout time.Duration
}

// SweepResult aggregates one sweep pass. Processed counts rows attempted,
// Sent and Failed the terminal outcomes reached; rows lost to a concurrent
// transition are processed but neither sent nor failed.
type SweepResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

func NewQueue(persistence persistence.Persistence, mailer mailer.Mailer, eventBus eventbus.EventBus, logger *slog.Logger) *Queue {
	return &Queue{
		persistence: persistence,
		mailer:      mailer,
		eventBus:    eventBus,
		logger:      logger,
		validate:    validator.New(),
		sendTimeout: DefaultSendTimeout,
	}
}

// Schedule validates and stores a new delivery. Past-due schedule times are
// accepted; the next sweep picks them up.
func (q *Queue) Schedule(ctx context.Context, email *models.ScheduledEmail) error {
	email.Status = models.ScheduledEmailStatusScheduled
	email.ScheduledAt = email.ScheduledAt.UTC()

	err := q.validate.Struct(email)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidScheduledEmail, err)
	}

	err = q.persistence.SaveScheduledEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to save scheduled email: %w", err)
	}

	q.logger.InfoContext(ctx, "Email scheduled",
		"email_id", email.ID,
		"recipient", email.Recipient,
		"scheduled_at", email.ScheduledAt)

	return nil
}

// Cancel moves a scheduled delivery to canceled. Canceled is terminal: the
// sweep never selects the row again and never overwrites the status. A row
// that already left scheduled yields ErrStatusConflict.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	return q.persistence.TransitionScheduledEmail(ctx, id,
		models.ScheduledEmailStatusScheduled, models.ScheduledEmailStatusCanceled, nil, "")
}

// Retry re-queues a failed delivery. This is the only path out of failed and
// it is always explicit; the sweep never retries on its own.
func (q *Queue) Retry(ctx context.Context, id string) error {
	return q.persistence.TransitionScheduledEmail(ctx, id,
		models.ScheduledEmailStatusFailed, models.ScheduledEmailStatusScheduled, nil, "")
}

// SweepDue attempts every due scheduled delivery. Rows are independent: a
// failure is recorded on its row and never stops the rest. Terminal
// transitions go through the compare-and-set so each row reaches exactly one
// of sent/failed and a concurrent cancellation always wins.
func (q *Queue) SweepDue(ctx context.Context, now time.Time) SweepResult {
	result := SweepResult{}

	due, err := q.persistence.DueScheduledEmails(ctx, now)
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to list due scheduled emails", "error", err)

		return result
	}

	for _, listed := range due {
		// Reload right before acting: the listing may be stale against a
		// concurrent cancel.
		email, err := q.persistence.ScheduledEmailByID(ctx, listed.ID)
		if err != nil {
			q.logger.ErrorContext(ctx, "Failed to reload scheduled email", "email_id", listed.ID, "error", err)

			continue
		}

		if !email.Due(now) {
			continue
		}

		result.Processed++

		sendErr := q.send(ctx, email)
		if sendErr != nil {
			if q.markFailed(ctx, email, sendErr) {
				result.Failed++
			}

			continue
		}

		if q.markSent(ctx, email, now) {
			result.Sent++
		}
	}

	return result
}

func (q *Queue) send(ctx context.Context, email *models.ScheduledEmail) error {
	sendCtx, cancel := context.WithTimeout(ctx, q.sendTimeout)
	defer cancel()

	return q.mailer.Send(sendCtx, mailer.Message{
		To:      email.Recipient,
		Subject: email.Subject,
		HTML:    email.Body,
	})
}

func (q *Queue) markSent(ctx context.Context, email *models.ScheduledEmail, now time.Time) bool {
	sentAt := now

	err := q.persistence.TransitionScheduledEmail(ctx, email.ID,
		models.ScheduledEmailStatusScheduled, models.ScheduledEmailStatusSent, &sentAt, "")
	if err != nil {
		if persistence.IsStatusConflict(err) {
			q.logger.WarnContext(ctx, "Scheduled email left scheduled status concurrently", "email_id", email.ID)
		} else {
			q.logger.ErrorContext(ctx, "Failed to mark scheduled email sent", "email_id", email.ID, "error", err)
		}

		return false
	}

	q.logger.InfoContext(ctx, "Scheduled email sent", "email_id", email.ID, "recipient", email.Recipient)

	q.publish(ctx, email.ID, events.EmailSent{
		BaseEvent: events.BaseEvent{
			Type:      events.EmailSentEvent,
			Timestamp: now,
			OwnerID:   email.CreatedBy,
		},
		EmailID:   email.ID,
		Recipient: email.Recipient,
		SentAt:    sentAt,
	})

	return true
}

func (q *Queue) markFailed(ctx context.Context, email *models.ScheduledEmail, cause error) bool {
	err := q.persistence.TransitionScheduledEmail(ctx, email.ID,
		models.ScheduledEmailStatusScheduled, models.ScheduledEmailStatusFailed, nil, cause.Error())
	if err != nil {
		if persistence.IsStatusConflict(err) {
			q.logger.WarnContext(ctx, "Scheduled email left scheduled status concurrently", "email_id", email.ID)
		} else {
			q.logger.ErrorContext(ctx, "Failed to mark scheduled email failed", "email_id", email.ID, "error", err)
		}

		return false
	}

	q.logger.ErrorContext(ctx, "Scheduled email delivery failed",
		"email_id", email.ID,
		"recipient", email.Recipient,
		"error", cause)

	q.publish(ctx, email.ID, events.EmailFailed{
		BaseEvent: events.BaseEvent{
			Type:      events.EmailFailedEvent,
			Timestamp: time.Now().UTC(),
			OwnerID:   email.CreatedBy,
		},
		EmailID:   email.ID,
		Recipient: email.Recipient,
		Error:     cause.Error(),
	})

	return true
}

func (q *Queue) publish(ctx context.Context, key string, event eventbus.Event) {
	if q.eventBus == nil {
		return
	}

	err := q.eventBus.Publish(ctx, key, event)
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
