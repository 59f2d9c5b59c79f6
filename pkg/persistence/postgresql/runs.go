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

// RunRepository handles workflow run and step state database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// CreateRun inserts a run record. Runs are immutable after creation.
func (r *RunRepository) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	triggerData, err := json.Marshal(run.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_runs (id, workflow_id, trigger_type, entity_id, trigger_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowID,
		string(run.TriggerType),
		run.EntityID,
		triggerData,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow run: %w", err)
	}

	return nil
}

// RunByID returns a run by its ID.
func (r *RunRepository) RunByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	query := `
		SELECT id, workflow_id, trigger_type, entity_id, trigger_data, created_at
		FROM workflow_runs
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	run := &models.WorkflowRun{}

	var trigger string

	var entityID sql.NullString

	var triggerData []byte

	err := row.Scan(&run.ID, &run.WorkflowID, &trigger, &entityID, &triggerData, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow run: %w", err)
	}

	run.TriggerType = models.TriggerType(trigger)
	run.EntityID = entityID.String

	err = json.Unmarshal(triggerData, &run.TriggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	return run, nil
}

// SaveStepState upserts a step state row keyed by its own identity.
func (r *RunRepository) SaveStepState(ctx context.Context, state *models.StepState) error {
	state.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO step_states (id, run_id, workflow_id, step_id, status, entered_at, updated_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, step_id)
		DO UPDATE SET
			status = EXCLUDED.status,
			entered_at = EXCLUDED.entered_at,
			updated_at = EXCLUDED.updated_at,
			error_message = EXCLUDED.error_message
	`

	_, err := r.db.ExecContext(ctx, query,
		state.ID,
		state.RunID,
		state.WorkflowID,
		state.StepID,
		string(state.Status),
		state.EnteredAt,
		state.UpdatedAt,
		state.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save step state: %w", err)
	}

	return nil
}

// StepStateByID returns a step state by its ID.
func (r *RunRepository) StepStateByID(ctx context.Context, id string) (*models.StepState, error) {
	query := `
		SELECT id, run_id, workflow_id, step_id, status, entered_at, updated_at, error_message
		FROM step_states
		WHERE id = $1
	`

	state, err := r.scanStepState(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStepStateNotFound
		}

		return nil, fmt.Errorf("failed to scan step state: %w", err)
	}

	return state, nil
}

// StepStatesByRun returns every step state of one run, oldest entry first.
func (r *RunRepository) StepStatesByRun(ctx context.Context, runID string) ([]*models.StepState, error) {
	query := `
		SELECT id, run_id, workflow_id, step_id, status, entered_at, updated_at, error_message
		FROM step_states
		WHERE run_id = $1
		ORDER BY entered_at
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step states: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.collectStepStates(rows)
}

// ActiveStepStates returns all pending and waiting states across all owners.
// The periodic sweep is a system-wide maintenance pass.
func (r *RunRepository) ActiveStepStates(ctx context.Context) ([]*models.StepState, error) {
	query := `
		SELECT id, run_id, workflow_id, step_id, status, entered_at, updated_at, error_message
		FROM step_states
		WHERE status IN ($1, $2)
		ORDER BY entered_at
	`

	rows, err := r.db.QueryContext(ctx, query,
		string(models.StepStatusPending),
		string(models.StepStatusWaiting),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active step states: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.collectStepStates(rows)
}

func (r *RunRepository) collectStepStates(rows *sql.Rows) ([]*models.StepState, error) {
	states := make([]*models.StepState, 0)

	for rows.Next() {
		state, err := r.scanStepState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step state: %w", err)
		}

		states = append(states, state)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating step states: %w", err)
	}

	return states, nil
}

func (r *RunRepository) scanStepState(row rowScanner) (*models.StepState, error) {
	state := &models.StepState{}

	var status string

	err := row.Scan(
		&state.ID,
		&state.RunID,
		&state.WorkflowID,
		&state.StepID,
		&status,
		&state.EnteredAt,
		&state.UpdatedAt,
		&state.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	state.Status = models.StepStatus(status)

	return state, nil
}

func (r *RunRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
