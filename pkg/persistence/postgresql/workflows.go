package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowbill/flowbill/pkg/models"
	"github.com/flowbill/flowbill/pkg/persistence"
)

// WorkflowRepository handles workflow definition database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetAll returns all workflows for an owner, newest first.
func (r *WorkflowRepository) GetAll(ctx context.Context, ownerID string) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , trigger_type
		  , active
		  , owner_id
		  , created_at
		  , updated_at
		FROM workflows
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.collectWorkflows(ctx, rows)
}

// GetActiveByTrigger returns the active workflows subscribed to a trigger
// type within one owner's scope. This is the dispatcher's matching query.
func (r *WorkflowRepository) GetActiveByTrigger(ctx context.Context, trigger models.TriggerType, ownerID string) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , trigger_type
		  , active
		  , owner_id
		  , created_at
		  , updated_at
		FROM workflows
		WHERE trigger_type = $1 AND owner_id = $2 AND active = true
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, string(trigger), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.collectWorkflows(ctx, rows)
}

// GetByID returns a workflow with its steps loaded.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , trigger_type
		  , active
		  , owner_id
		  , created_at
		  , updated_at
		FROM workflows
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := r.scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadSteps(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow steps: %w", err)
	}

	return workflow, nil
}

// Save upserts a workflow and replaces its step definitions.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	seenOrders := make(map[int]bool, len(workflow.Steps))
	for _, step := range workflow.Steps {
		if seenOrders[step.StepOrder] {
			return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrDuplicateStepOrder)
		}

		seenOrders[step.StepOrder] = true
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
		INSERT INTO workflows (id, name, trigger_type, active, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			trigger_type = EXCLUDED.trigger_type,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = transaction.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		string(workflow.TriggerType),
		workflow.Active,
		workflow.OwnerID,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to save workflow: %w", err)
	}

	_, err = transaction.ExecContext(ctx, "DELETE FROM workflow_steps WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to clear workflow steps: %w", err)
	}

	for _, step := range workflow.Steps {
		config, err := json.Marshal(step.Config)
		if err != nil {
			_ = transaction.Rollback()

			return fmt.Errorf("failed to marshal step config: %w", err)
		}

		_, err = transaction.ExecContext(ctx, `
			INSERT INTO workflow_steps (id, workflow_id, name, step_order, action_type, config)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			step.ID,
			workflow.ID,
			step.Name,
			step.StepOrder,
			string(step.ActionType),
			config,
		)
		if err != nil {
			_ = transaction.Rollback()

			return fmt.Errorf("failed to save workflow step: %w", err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow save: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) collectWorkflows(ctx context.Context, rows *sql.Rows) ([]*models.Workflow, error) {
	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		err = r.loadSteps(ctx, workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow steps: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*models.Workflow, error) {
	workflow := &models.Workflow{}

	var trigger string

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&trigger,
		&workflow.Active,
		&workflow.OwnerID,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.TriggerType = models.TriggerType(trigger)

	return workflow, nil
}

func (r *WorkflowRepository) loadSteps(ctx context.Context, workflow *models.Workflow) error {
	query := `
		SELECT id, workflow_id, name, step_order, action_type, config
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_order
	`

	rows, err := r.db.QueryContext(ctx, query, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow steps: %w", err)
	}

	defer r.closeRows(ctx, rows)

	workflow.Steps = make([]*models.WorkflowStep, 0)

	for rows.Next() {
		step := &models.WorkflowStep{}

		var action string

		var config []byte

		err := rows.Scan(&step.ID, &step.WorkflowID, &step.Name, &step.StepOrder, &action, &config)
		if err != nil {
			return fmt.Errorf("failed to scan workflow step: %w", err)
		}

		step.ActionType = models.ActionType(action)

		err = json.Unmarshal(config, &step.Config)
		if err != nil {
			return fmt.Errorf("failed to unmarshal step config: %w", err)
		}

		workflow.Steps = append(workflow.Steps, step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating workflow steps: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
