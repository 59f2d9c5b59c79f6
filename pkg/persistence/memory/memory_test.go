package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbill/flowbill/pkg/models"
	"github.com/flowbill/flowbill/pkg/persistence"
	"github.com/flowbill/flowbill/pkg/persistence/memory"
)

func testWorkflow(id, ownerID string, trigger models.TriggerType, active bool) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		Name:        "Overdue invoice follow-up",
		TriggerType: trigger,
		Active:      active,
		OwnerID:     ownerID,
		Steps: []*models.WorkflowStep{
			{
				ID:         "step-1",
				WorkflowID: id,
				Name:       "Send reminder",
				StepOrder:  1,
				ActionType: models.ActionSendEmail,
				Config:     map[string]any{"subject": "Hi", "body": "<p>Hi</p>"},
			},
		},
	}
}

func TestPersistence_SaveAndRetrieveWorkflow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	workflow := testWorkflow("wf-1", "owner-1", models.TriggerInvoiceOverdue, true)

	require.NoError(t, store.SaveWorkflow(ctx, workflow))
	assert.False(t, workflow.CreatedAt.IsZero())

	retrieved, err := store.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, retrieved.Name)
	require.Len(t, retrieved.Steps, 1)

	// Mutating the returned copy must not leak into the store
	retrieved.Name = "mutated"
	retrieved.Steps[0].StepOrder = 99

	again, err := store.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, again.Name)
	assert.Equal(t, 1, again.Steps[0].StepOrder)

	_, err = store.WorkflowByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestPersistence_SaveWorkflow_DuplicateStepOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	workflow := testWorkflow("wf-1", "owner-1", models.TriggerInvoiceOverdue, true)
	workflow.Steps = append(workflow.Steps, &models.WorkflowStep{
		ID:         "step-2",
		WorkflowID: "wf-1",
		Name:       "Duplicate order",
		StepOrder:  1,
		ActionType: models.ActionWait,
		Config:     map[string]any{"delay": "24h"},
	})

	err := store.SaveWorkflow(ctx, workflow)
	require.Error(t, err)
}

func TestPersistence_ActiveWorkflowsByTrigger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	workflows := []*models.Workflow{
		testWorkflow("wf-1", "owner-1", models.TriggerInvoiceOverdue, true),
		testWorkflow("wf-2", "owner-1", models.TriggerInvoiceOverdue, false),
		testWorkflow("wf-3", "owner-1", models.TriggerClientAdded, true),
		testWorkflow("wf-4", "owner-2", models.TriggerInvoiceOverdue, true),
	}

	for _, workflow := range workflows {
		require.NoError(t, store.SaveWorkflow(ctx, workflow))
	}

	matched, err := store.ActiveWorkflowsByTrigger(ctx, models.TriggerInvoiceOverdue, "owner-1")
	require.NoError(t, err)

	require.Len(t, matched, 1)
	assert.Equal(t, "wf-1", matched[0].ID)
}

func TestPersistence_StepStates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	run := &models.WorkflowRun{
		ID:          "run-1",
		WorkflowID:  "wf-1",
		TriggerType: models.TriggerInvoiceOverdue,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.CreateRun(ctx, run))

	base := time.Now().UTC()

	pending := models.NewStepState("state-1", run, "step-1", base)
	require.NoError(t, store.SaveStepState(ctx, pending))

	waiting := models.NewStepState("state-2", run, "step-2", base.Add(time.Second))
	waiting.Status = models.StepStatusWaiting
	require.NoError(t, store.SaveStepState(ctx, waiting))

	done := models.NewStepState("state-3", run, "step-3", base.Add(2*time.Second))
	done.Status = models.StepStatusCompleted
	require.NoError(t, store.SaveStepState(ctx, done))

	active, err := store.ActiveStepStates(ctx)
	require.NoError(t, err)

	// Only pending and waiting states are active, ordered by entry time
	require.Len(t, active, 2)
	assert.Equal(t, "state-1", active[0].ID)
	assert.Equal(t, "state-2", active[1].ID)

	states, err := store.StepStatesByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, states, 3)

	// Mutating a returned state must not affect the store
	active[0].Status = models.StepStatusFailed

	reloaded, err := store.StepStateByID(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusPending, reloaded.Status)

	_, err = store.StepStateByID(ctx, "missing")
	require.Error(t, err)
}

func TestPersistence_LogsByRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	for _, entry := range []*models.WorkflowLog{
		{ID: "log-1", WorkflowID: "wf-1", RunID: "run-1", Action: models.LogActionTrigger, Status: models.LogStatusSuccess, Message: "run triggered"},
		{ID: "log-2", WorkflowID: "wf-1", RunID: "run-1", Action: models.LogActionStepDone, Status: models.LogStatusSuccess, Message: "step completed"},
		{ID: "log-3", WorkflowID: "wf-2", RunID: "run-2", Action: models.LogActionTrigger, Status: models.LogStatusSuccess, Message: "other run"},
	} {
		require.NoError(t, store.AppendLog(ctx, entry))
	}

	logs, err := store.LogsByRun(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "log-1", logs[0].ID)
	assert.Equal(t, "log-2", logs[1].ID)

	limited, err := store.LogsByRun(ctx, "run-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPersistence_ScheduledEmailTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	now := time.Now().UTC()

	due := models.NewScheduledEmail("email-1", "client@example.com", "Reminder", "<p>Pay up.</p>", "owner-1", now.Add(-time.Minute))
	future := models.NewScheduledEmail("email-2", "client@example.com", "Later", "<p>Soon.</p>", "owner-1", now.Add(time.Hour))

	require.NoError(t, store.SaveScheduledEmail(ctx, due))
	require.NoError(t, store.SaveScheduledEmail(ctx, future))

	emails, err := store.DueScheduledEmails(ctx, now)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "email-1", emails[0].ID)

	sentAt := now
	err = store.TransitionScheduledEmail(ctx, "email-1", models.ScheduledEmailStatusScheduled, models.ScheduledEmailStatusSent, &sentAt, "")
	require.NoError(t, err)

	// The second transition attempt from the stale status must conflict
	err = store.TransitionScheduledEmail(ctx, "email-1", models.ScheduledEmailStatusScheduled, models.ScheduledEmailStatusFailed, nil, "smtp unavailable")
	require.Error(t, err)
	assert.True(t, persistence.IsStatusConflict(err))

	retrieved, err := store.ScheduledEmailByID(ctx, "email-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledEmailStatusSent, retrieved.Status)
	require.NotNil(t, retrieved.SentAt)
	assert.Equal(t, sentAt, *retrieved.SentAt)
	assert.Empty(t, retrieved.ErrorMessage)

	err = store.TransitionScheduledEmail(ctx, "missing", models.ScheduledEmailStatusScheduled, models.ScheduledEmailStatusSent, &sentAt, "")
	require.Error(t, err)
	assert.True(t, persistence.IsScheduledEmailNotFound(err))
}

func TestPersistence_DueScheduledEmails_Ordering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	now := time.Now().UTC()

	later := models.NewScheduledEmail("email-later", "a@b.com", "Second", "b", "owner-1", now.Add(-time.Minute))
	earlier := models.NewScheduledEmail("email-earlier", "a@b.com", "First", "b", "owner-1", now.Add(-time.Hour))

	require.NoError(t, store.SaveScheduledEmail(ctx, later))
	require.NoError(t, store.SaveScheduledEmail(ctx, earlier))

	emails, err := store.DueScheduledEmails(ctx, now)
	require.NoError(t, err)

	require.Len(t, emails, 2)
	assert.Equal(t, "email-earlier", emails[0].ID)
	assert.Equal(t, "email-later", emails[1].ID)
}
