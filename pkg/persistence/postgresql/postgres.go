// Package postgresql provides PostgreSQL persistence for the automation engine.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/flowbill/flowbill/pkg/models"
	"github.com/flowbill/flowbill/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	workflowRepo *WorkflowRepository
	runRepo      *RunRepository
	emailRepo    *ScheduledEmailRepository
	logRepo      *LogRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:           database,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(database, logger),
		runRepo:      NewRunRepository(database, logger),
		emailRepo:    NewScheduledEmailRepository(database, logger),
		logRepo:      NewLogRepository(database, logger),
	}

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Workflows(ctx context.Context, ownerID string) ([]*models.Workflow, error) {
	return p.workflowRepo.GetAll(ctx, ownerID)
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, id)
}

func (p *Persistence) ActiveWorkflowsByTrigger(ctx context.Context, trigger models.TriggerType, ownerID string) ([]*models.Workflow, error) {
	return p.workflowRepo.GetActiveByTrigger(ctx, trigger, ownerID)
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return p.workflowRepo.Save(ctx, workflow)
}

func (p *Persistence) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	return p.runRepo.CreateRun(ctx, run)
}

func (p *Persistence) RunByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	return p.runRepo.RunByID(ctx, id)
}

func (p *Persistence) SaveStepState(ctx context.Context, state *models.StepState) error {
	return p.runRepo.SaveStepState(ctx, state)
}

func (p *Persistence) StepStateByID(ctx context.Context, id string) (*models.StepState, error) {
	return p.runRepo.StepStateByID(ctx, id)
}

func (p *Persistence) StepStatesByRun(ctx context.Context, runID string) ([]*models.StepState, error) {
	return p.runRepo.StepStatesByRun(ctx, runID)
}

func (p *Persistence) ActiveStepStates(ctx context.Context) ([]*models.StepState, error) {
	return p.runRepo.ActiveStepStates(ctx)
}

func (p *Persistence) AppendLog(ctx context.Context, entry *models.WorkflowLog) error {
	return p.logRepo.Append(ctx, entry)
}

func (p *Persistence) LogsByRun(ctx context.Context, runID string, limit int) ([]*models.WorkflowLog, error) {
	return p.logRepo.ByRun(ctx, runID, limit)
}

func (p *Persistence) SaveScheduledEmail(ctx context.Context, email *models.ScheduledEmail) error {
	return p.emailRepo.Save(ctx, email)
}

func (p *Persistence) ScheduledEmailByID(ctx context.Context, id string) (*models.ScheduledEmail, error) {
	return p.emailRepo.GetByID(ctx, id)
}

func (p *Persistence) DueScheduledEmails(ctx context.Context, before time.Time) ([]*models.ScheduledEmail, error) {
	return p.emailRepo.Due(ctx, before)
}

func (p *Persistence) TransitionScheduledEmail(ctx context.Context, id string, from, to models.ScheduledEmailStatus, sentAt *time.Time, errorMessage string) error {
	return p.emailRepo.Transition(ctx, id, from, to, sentAt, errorMessage)
}
