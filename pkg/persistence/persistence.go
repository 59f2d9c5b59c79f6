// Package persistence provides the data storage abstraction for the automation engine.
package persistence

import (
	"context"
	"time"

	"github.com/flowbill/flowbill/pkg/models"
)

type Persistence interface {
	// Workflow definitions are consumed read-only by the dispatcher; the
	// editing surface lives outside this engine.
	Workflows(ctx context.Context, ownerID string) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	ActiveWorkflowsByTrigger(ctx context.Context, trigger models.TriggerType, ownerID string) ([]*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error

	// Runs and per-run step states.
	CreateRun(ctx context.Context, run *models.WorkflowRun) error
	RunByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	SaveStepState(ctx context.Context, state *models.StepState) error
	StepStateByID(ctx context.Context, id string) (*models.StepState, error)
	StepStatesByRun(ctx context.Context, runID string) ([]*models.StepState, error)
	// ActiveStepStates returns every pending/waiting state system-wide; the
	// sweep is a maintenance process that crosses owner boundaries.
	ActiveStepStates(ctx context.Context) ([]*models.StepState, error)

	// Append-only audit trail.
	AppendLog(ctx context.Context, entry *models.WorkflowLog) error
	LogsByRun(ctx context.Context, runID string, limit int) ([]*models.WorkflowLog, error)

	// Scheduled email queue.
	SaveScheduledEmail(ctx context.Context, email *models.ScheduledEmail) error
	ScheduledEmailByID(ctx context.Context, id string) (*models.ScheduledEmail, error)
	DueScheduledEmails(ctx context.Context, before time.Time) ([]*models.ScheduledEmail, error)
	// TransitionScheduledEmail is a compare-and-set status update: it moves
	// the row from one status to another and fails with ErrStatusConflict
	// when the row is no longer in the expected status. The sweep relies on
	// this to never overwrite a concurrent cancellation and to reach exactly
	// one terminal outcome per row.
	TransitionScheduledEmail(ctx context.Context, id string, from, to models.ScheduledEmailStatus, sentAt *time.Time, errorMessage string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
