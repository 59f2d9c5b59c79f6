package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowbill/flowbill/pkg/models"
	"github.com/flowbill/flowbill/pkg/persistence"
)

// ScheduledEmailRepository handles scheduled email database operations.
type ScheduledEmailRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduledEmailRepository creates a new scheduled email repository.
func NewScheduledEmailRepository(db *sql.DB, logger *slog.Logger) *ScheduledEmailRepository {
	return &ScheduledEmailRepository{db: db, logger: logger}
}

// Save upserts a scheduled email.
func (r *ScheduledEmailRepository) Save(ctx context.Context, email *models.ScheduledEmail) error {
	now := time.Now().UTC()
	if email.CreatedAt.IsZero() {
		email.CreatedAt = now
	}

	email.UpdatedAt = now

	query := `
		INSERT INTO scheduled_emails (
			id, recipient, subject, body, scheduled_at, status, sent_at, error_message, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id)
		DO UPDATE SET
			recipient = EXCLUDED.recipient,
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			scheduled_at = EXCLUDED.scheduled_at,
			status = EXCLUDED.status,
			sent_at = EXCLUDED.sent_at,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		email.ID,
		email.Recipient,
		email.Subject,
		email.Body,
		email.ScheduledAt,
		string(email.Status),
		email.SentAt,
		email.ErrorMessage,
		email.CreatedBy,
		email.CreatedAt,
		email.UpdatedAt,
	)
	if err != nil {
		return persistence.NewScheduledEmailError("Save", email.ID, err)
	}

	return nil
}

// GetByID returns a scheduled email by its ID.
func (r *ScheduledEmailRepository) GetByID(ctx context.Context, id string) (*models.ScheduledEmail, error) {
	query := `
		SELECT id, recipient, subject, body, scheduled_at, status, sent_at, error_message, created_by, created_at, updated_at
		FROM scheduled_emails
		WHERE id = $1
	`

	email, err := r.scanEmail(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewScheduledEmailError("GetByID", id, persistence.ErrScheduledEmailNotFound)
		}

		return nil, fmt.Errorf("failed to scan scheduled email: %w", err)
	}

	return email, nil
}

// Due returns all rows still scheduled whose due time has passed. Canceled
// and terminal rows are excluded by the status predicate.
func (r *ScheduledEmailRepository) Due(ctx context.Context, before time.Time) ([]*models.ScheduledEmail, error) {
	query := `
		SELECT id, recipient, subject, body, scheduled_at, status, sent_at, error_message, created_by, created_at, updated_at
		FROM scheduled_emails
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at
	`

	rows, err := r.db.QueryContext(ctx, query, string(models.ScheduledEmailStatusScheduled), before)
	if err != nil {
		return nil, fmt.Errorf("failed to query due scheduled emails: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	emails := make([]*models.ScheduledEmail, 0)

	for rows.Next() {
		email, err := r.scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled email: %w", err)
		}

		emails = append(emails, email)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating scheduled emails: %w", err)
	}

	return emails, nil
}

// Transition performs the compare-and-set status update. The WHERE clause on
// the current status makes the terminal transition exactly-once: a row that
// was canceled or already resolved concurrently is left untouched and the
// caller gets ErrStatusConflict.
func (r *ScheduledEmailRepository) Transition(ctx context.Context, id string, from, to models.ScheduledEmailStatus, sentAt *time.Time, errorMessage string) error {
	query := `
		UPDATE scheduled_emails
		SET status = $1, sent_at = $2, error_message = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		string(to),
		sentAt,
		errorMessage,
		time.Now().UTC(),
		id,
		string(from),
	)
	if err != nil {
		return persistence.NewScheduledEmailError("Transition", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewScheduledEmailError("Transition", id, err)
	}

	if affected == 0 {
		return persistence.NewScheduledEmailError("Transition", id, persistence.ErrStatusConflict)
	}

	return nil
}

func (r *ScheduledEmailRepository) scanEmail(row rowScanner) (*models.ScheduledEmail, error) {
	email := &models.ScheduledEmail{}

	var status string

	var sentAt sql.NullTime

	err := row.Scan(
		&email.ID,
		&email.Recipient,
		&email.Subject,
		&email.Body,
		&email.ScheduledAt,
		&status,
		&sentAt,
		&email.ErrorMessage,
		&email.CreatedBy,
		&email.CreatedAt,
		&email.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	email.Status = models.ScheduledEmailStatus(status)
	if sentAt.Valid {
		email.SentAt = &sentAt.Time
	}

	return email, nil
}
