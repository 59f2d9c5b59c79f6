package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowbill/flowbill/pkg/models"
)

func TestScheduledEmailStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, models.ScheduledEmailStatusScheduled.Terminal())
	assert.True(t, models.ScheduledEmailStatusSent.Terminal())
	assert.True(t, models.ScheduledEmailStatusFailed.Terminal())
	assert.True(t, models.ScheduledEmailStatusCanceled.Terminal())
}

func TestScheduledEmail_Due(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tests := []struct {
		name        string
		scheduledAt time.Time
		status      models.ScheduledEmailStatus
		want        bool
	}{
		{name: "past and scheduled", scheduledAt: now.Add(-time.Minute), status: models.ScheduledEmailStatusScheduled, want: true},
		{name: "exactly now", scheduledAt: now, status: models.ScheduledEmailStatusScheduled, want: true},
		{name: "future", scheduledAt: now.Add(time.Minute), status: models.ScheduledEmailStatusScheduled, want: false},
		{name: "canceled never due", scheduledAt: now.Add(-time.Minute), status: models.ScheduledEmailStatusCanceled, want: false},
		{name: "sent never due", scheduledAt: now.Add(-time.Minute), status: models.ScheduledEmailStatusSent, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			email := &models.ScheduledEmail{ScheduledAt: tt.scheduledAt, Status: tt.status}

			assert.Equal(t, tt.want, email.Due(now))
		})
	}
}

func TestNewScheduledEmail(t *testing.T) {
	t.Parallel()

	scheduledAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.FixedZone("BRT", -3*3600))

	email := models.NewScheduledEmail("email-1", "client@example.com", "Reminder", "<p>Hi</p>", "user-1", scheduledAt)

	assert.Equal(t, models.ScheduledEmailStatusScheduled, email.Status)
	assert.Equal(t, time.UTC, email.ScheduledAt.Location())
	assert.True(t, email.ScheduledAt.Equal(scheduledAt))
	assert.Nil(t, email.SentAt)
}
