package sweeper_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flowbill/flowbill/pkg/engine"
	"github.com/flowbill/flowbill/pkg/events"
	"github.com/flowbill/flowbill/pkg/mocks"
	"github.com/flowbill/flowbill/pkg/models"
	"github.com/flowbill/flowbill/pkg/persistence/memory"
	"github.com/flowbill/flowbill/pkg/renderer"
	"github.com/flowbill/flowbill/pkg/schedqueue"
	"github.com/flowbill/flowbill/pkg/sweeper"
)

func setupSweeper(t *testing.T) (*sweeper.Sweeper, *memory.Persistence, *mocks.MockMailer, *mocks.MockEventBus) {
	t.Helper()

	store := memory.NewPersistence()
	mockMailer := &mocks.MockMailer{}
	mockBus := &mocks.MockEventBus{}

	queue := schedqueue.NewQueue(store, mockMailer, nil, slog.Default())
	eng := engine.NewEngine(store, mockMailer, renderer.NewTemplateRenderer(), nil, slog.Default())

	return sweeper.NewSweeper(queue, eng, mockBus, slog.Default()), store, mockMailer, mockBus
}

func TestSweeper_RunOnce_SweepsEmailsThenWorkflows(t *testing.T) {
	t.Parallel()

	sweep, store, mockMailer, mockBus := setupSweeper(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// One due scheduled email.
	email := models.NewScheduledEmail("email-1", "client@example.com", "Hi", "<p>Hi</p>", "user-1", now.Add(-time.Minute))
	require.NoError(t, store.SaveScheduledEmail(ctx, email))

	// One due wait step.
	workflow := &models.Workflow{
		ID:          "wf-1",
		Name:        "Follow-up",
		TriggerType: models.TriggerInvoiceCreated,
		Active:      true,
		OwnerID:     "owner-1",
		Steps: []*models.WorkflowStep{
			{ID: "step-1", WorkflowID: "wf-1", Name: "Wait", StepOrder: 1, ActionType: models.ActionWait, Config: map[string]any{"delay": "1m"}},
		},
	}
	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	run := &models.WorkflowRun{ID: "run-1", WorkflowID: "wf-1", TriggerType: models.TriggerInvoiceCreated, CreatedAt: now.Add(-time.Hour)}
	require.NoError(t, store.CreateRun(ctx, run))
	require.NoError(t, store.SaveStepState(ctx, models.NewStepState("state-1", run, "step-1", now.Add(-time.Hour))))

	mockMailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	mockBus.On("Publish", mock.Anything, "sweep", mock.MatchedBy(func(event events.SweepCompleted) bool {
		return event.EmailsSent == 1 && event.WorkflowsProcessed == 1
	})).Return(nil)

	outcome := sweep.RunOnce(ctx)

	assert.Equal(t, 1, outcome.Emails.Processed)
	assert.Equal(t, 1, outcome.Emails.Sent)
	assert.Equal(t, 0, outcome.Emails.Failed)
	assert.Equal(t, 1, outcome.Workflows.Processed)
	assert.Equal(t, 1, outcome.Workflows.Advanced)

	mockBus.AssertExpectations(t)
}

func TestSweeper_RunOnce_EmptySystem(t *testing.T) {
	t.Parallel()

	sweep, _, _, mockBus := setupSweeper(t)

	mockBus.On("Publish", mock.Anything, "sweep", mock.Anything).Return(nil)

	outcome := sweep.RunOnce(context.Background())

	assert.Equal(t, schedqueue.SweepResult{}, outcome.Emails)
	assert.Equal(t, engine.Result{}, outcome.Workflows)
}

func TestSweeper_SetCadence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "duration", raw: "90s"},
		{name: "cron expression", raw: "*/5 * * * *"},
		{name: "zero duration", raw: "0s", wantErr: true},
		{name: "negative duration", raw: "-1m", wantErr: true},
		{name: "garbage", raw: "whenever", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sweep, _, _, _ := setupSweeper(t)

			err := sweep.SetCadence(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestSweeper_StartStop_Idempotent(t *testing.T) {
	t.Parallel()

	sweep, _, _, _ := setupSweeper(t)
	ctx := context.Background()

	require.NoError(t, sweep.Start(ctx))
	require.NoError(t, sweep.Start(ctx))
	require.NoError(t, sweep.Stop(ctx))
	require.NoError(t, sweep.Stop(ctx))
}
