package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowbill/flowbill/pkg/models"
)

const defaultLogLimit = 100

// LogRepository handles the append-only workflow audit trail.
type LogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLogRepository creates a new log repository.
func NewLogRepository(db *sql.DB, logger *slog.Logger) *LogRepository {
	return &LogRepository{db: db, logger: logger}
}

// Append inserts one log entry. Entries are never updated or deleted.
func (r *LogRepository) Append(ctx context.Context, entry *models.WorkflowLog) error {
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal log data: %w", err)
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_logs (id, workflow_id, run_id, step_id, action, status, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.WorkflowID,
		nullIfEmpty(entry.RunID),
		entry.StepID,
		entry.Action,
		string(entry.Status),
		entry.Message,
		data,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append workflow log: %w", err)
	}

	return nil
}

// ByRun returns a run's log entries, oldest first. The limit is always a
// bound parameter, never interpolated.
func (r *LogRepository) ByRun(ctx context.Context, runID string, limit int) ([]*models.WorkflowLog, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}

	query := `
		SELECT id, workflow_id, run_id, step_id, action, status, message, data, created_at
		FROM workflow_logs
		WHERE run_id = $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow logs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	entries := make([]*models.WorkflowLog, 0)

	for rows.Next() {
		entry := &models.WorkflowLog{}

		var status string

		var runID sql.NullString

		var data []byte

		err := rows.Scan(
			&entry.ID,
			&entry.WorkflowID,
			&runID,
			&entry.StepID,
			&entry.Action,
			&status,
			&entry.Message,
			&data,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow log: %w", err)
		}

		entry.Status = models.LogStatus(status)
		entry.RunID = runID.String

		err = json.Unmarshal(data, &entry.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal log data: %w", err)
		}

		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow logs: %w", err)
	}

	return entries, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}

	return value
}
