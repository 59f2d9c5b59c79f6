package schedqueue_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flowbill/flowbill/pkg/mailer"
	"github.com/flowbill/flowbill/pkg/mocks"
	"github.com/flowbill/flowbill/pkg/models"
	"github.com/flowbill/flowbill/pkg/persistence"
	"github.com/flowbill/flowbill/pkg/persistence/memory"
	"github.com/flowbill/flowbill/pkg/schedqueue"
)

func setupQueue(t *testing.T) (*schedqueue.Queue, *memory.Persistence, *mocks.MockMailer) {
	t.Helper()

	store := memory.NewPersistence()
	mockMailer := &mocks.MockMailer{}
	queue := schedqueue.NewQueue(store, mockMailer, nil, slog.Default())

	return queue, store, mockMailer
}

func scheduleEmail(t *testing.T, store *memory.Persistence, id, recipient string, scheduledAt time.Time) *models.ScheduledEmail {
	t.Helper()

	email := models.NewScheduledEmail(id, recipient, "Subject", "<p>Body</p>", "user-1", scheduledAt)
	require.NoError(t, store.SaveScheduledEmail(context.Background(), email))

	return email
}

func TestQueue_Schedule_Validation(t *testing.T) {
	t.Parallel()

	queue, _, _ := setupQueue(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		email   *models.ScheduledEmail
		wantErr bool
	}{
		{
			name:  "valid",
			email: models.NewScheduledEmail("email-1", "client@example.com", "Hi", "<p>Hi</p>", "user-1", time.Now().UTC().Add(time.Hour)),
		},
		{
			name:  "past schedule time accepted",
			email: models.NewScheduledEmail("email-2", "client@example.com", "Hi", "<p>Hi</p>", "user-1", time.Now().UTC().Add(-time.Hour)),
		},
		{
			name:    "invalid recipient",
			email:   models.NewScheduledEmail("email-3", "not-an-email", "Hi", "<p>Hi</p>", "user-1", time.Now().UTC()),
			wantErr: true,
		},
		{
			name:    "missing subject",
			email:   models.NewScheduledEmail("email-4", "client@example.com", "", "<p>Hi</p>", "user-1", time.Now().UTC()),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := queue.Schedule(ctx, tt.email)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidScheduledEmail)

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestQueue_SweepDue_MixedOutcomes(t *testing.T) {
	t.Parallel()

	queue, store, mockMailer := setupQueue(t)
	ctx := context.Background()
	now := time.Now().UTC()

	scheduleEmail(t, store, "email-ok", "ok@example.com", now.Add(-time.Minute))
	scheduleEmail(t, store, "email-bad", "bad@example.com", now.Add(-time.Minute))
	scheduleEmail(t, store, "email-future", "later@example.com", now.Add(time.Hour))

	mockMailer.On("Send", mock.Anything, mock.MatchedBy(func(m mailer.Message) bool {
		return m.To == "ok@example.com"
	})).Return(nil)
	mockMailer.On("Send", mock.Anything, mock.MatchedBy(func(m mailer.Message) bool {
		return m.To == "bad@example.com"
	})).Return(errors.New("mailbox full"))

	result := queue.SweepDue(ctx, now)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Failed)

	sent, err := store.ScheduledEmailByID(ctx, "email-ok")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledEmailStatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.True(t, sent.SentAt.Equal(now))

	failed, err := store.ScheduledEmailByID(ctx, "email-bad")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledEmailStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "mailbox full")
	assert.Nil(t, failed.SentAt)

	future, err := store.ScheduledEmailByID(ctx, "email-future")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledEmailStatusScheduled, future.Status)
}

func TestQueue_SweepDue_TerminalRowsNeverReprocessed(t *testing.T) {
	t.Parallel()

	queue, store, mockMailer := setupQueue(t)
	ctx := context.Background()
	now := time.Now().UTC()

	scheduleEmail(t, store, "email-1", "client@example.com", now.Add(-time.Minute))

	mockMailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	first := queue.SweepDue(ctx, now)
	assert.Equal(t, 1, first.Sent)

	second := queue.SweepDue(ctx, now.Add(time.Minute))
	assert.Equal(t, 0, second.Processed)

	mockMailer.AssertNumberOfCalls(t, "Send", 1)
}

func TestQueue_Cancel_ExcludesFromSweep(t *testing.T) {
	t.Parallel()

	queue, store, mockMailer := setupQueue(t)
	ctx := context.Background()
	now := time.Now().UTC()

	scheduleEmail(t, store, "email-1", "client@example.com", now.Add(-time.Minute))

	require.NoError(t, queue.Cancel(ctx, "email-1"))

	result := queue.SweepDue(ctx, now)
	assert.Equal(t, 0, result.Processed)

	mockMailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	email, err := store.ScheduledEmailByID(ctx, "email-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledEmailStatusCanceled, email.Status)
}

func TestQueue_Cancel_Conflicts(t *testing.T) {
	t.Parallel()

	queue, store, mockMailer := setupQueue(t)
	ctx := context.Background()
	now := time.Now().UTC()

	scheduleEmail(t, store, "email-1", "client@example.com", now.Add(-time.Minute))

	mockMailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	queue.SweepDue(ctx, now)

	// The row is already sent; cancel must not overwrite it.
	err := queue.Cancel(ctx, "email-1")
	assert.True(t, persistence.IsStatusConflict(err))

	email, err := store.ScheduledEmailByID(ctx, "email-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledEmailStatusSent, email.Status)
}

func TestQueue_Retry_RequeuesFailed(t *testing.T) {
	t.Parallel()

	queue, store, mockMailer := setupQueue(t)
	ctx := context.Background()
	now := time.Now().UTC()

	scheduleEmail(t, store, "email-1", "client@example.com", now.Add(-time.Minute))

	mockMailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("mailbox full")).Once()

	result := queue.SweepDue(ctx, now)
	assert.Equal(t, 1, result.Failed)

	require.NoError(t, queue.Retry(ctx, "email-1"))

	email, err := store.ScheduledEmailByID(ctx, "email-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledEmailStatusScheduled, email.Status)
	assert.Empty(t, email.ErrorMessage)

	// The next sweep picks it up again.
	mockMailer.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	result = queue.SweepDue(ctx, now.Add(time.Minute))
	assert.Equal(t, 1, result.Sent)
}

func TestQueue_Retry_OnlyFromFailed(t *testing.T) {
	t.Parallel()

	queue, store, _ := setupQueue(t)
	ctx := context.Background()

	scheduleEmail(t, store, "email-1", "client@example.com", time.Now().UTC())

	err := queue.Retry(ctx, "email-1")
	assert.True(t, persistence.IsStatusConflict(err))
}

func TestQueue_SweepDue_MissingRowIgnored(t *testing.T) {
	t.Parallel()

	queue, _, _ := setupQueue(t)

	result := queue.SweepDue(context.Background(), time.Now().UTC())

	assert.Equal(t, schedqueue.SweepResult{}, result)
}
