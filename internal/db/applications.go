package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const applicationColumns = `
	id, user_id, company, position, status,
	interview_date, deadline, interview_reminded_at, deadline_reminded_at,
	created_at, updated_at`

func scanApplication(row pgx.Row, extra ...any) (*Application, error) {
	var app Application
	var status string
	dest := append([]any{
		&app.ID,
		&app.UserID,
		&app.Company,
		&app.Position,
		&status,
		&app.InterviewDate,
		&app.Deadline,
		&app.InterviewRemindedAt,
		&app.DeadlineRemindedAt,
		&app.CreatedAt,
		&app.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	app.Status = Status(status)
	return &app, nil
}

func collectApplications(rows pgx.Rows) ([]*Application, error) {
	defer rows.Close()

	var apps []*Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return apps, nil
}

// CreateApplication inserts a new application. ID and timestamps are
// filled from the database.
func (r *Repository) CreateApplication(ctx context.Context, app *Application) error {
	if app.Status == "" {
		app.Status = StatusApplied
	}

	query := `
		INSERT INTO applications (user_id, company, position, status, interview_date, deadline)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		app.UserID,
		app.Company,
		app.Position,
		string(app.Status),
		app.InterviewDate,
		app.Deadline,
	).Scan(&app.ID, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to create application",
			zap.Error(err),
			zap.Int64("user_id", app.UserID),
		)
		return fmt.Errorf("insert application: %w", err)
	}

	return nil
}

// GetApplication retrieves an application by ID
func (r *Repository) GetApplication(ctx context.Context, id int64) (*Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`

	app, err := scanApplication(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query application: %w", err)
	}

	return app, nil
}

// ListApplicationsByUser returns a user's applications, oldest first.
func (r *Repository) ListApplicationsByUser(ctx context.Context, userID int64) ([]*Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM applications
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	return collectApplications(rows)
}

// UpdateApplicationStatus writes the new status in a single-row update and
// returns the row as stored together with the status it replaced. The prior
// status is read under the row lock, so concurrent transitions each see the
// status they actually overwrote.
func (r *Repository) UpdateApplicationStatus(ctx context.Context, id int64, status Status) (*Application, Status, error) {
	query := `
		UPDATE applications
		SET status = $1, updated_at = NOW()
		FROM (
			SELECT id AS prev_id, status AS old_status
			FROM applications
			WHERE id = $2
			FOR UPDATE
		) prev
		WHERE applications.id = prev.prev_id
		RETURNING ` + applicationColumns + `, prev.old_status`

	var prev string
	app, err := scanApplication(r.db.Pool().QueryRow(ctx, query, string(status), id), &prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to update application status",
			zap.Error(err),
			zap.Int64("application_id", id),
			zap.String("status", string(status)),
		)
		return nil, "", fmt.Errorf("update application status: %w", err)
	}

	return app, Status(prev), nil
}

// UpdateInterviewDate sets the interview date and clears the reminder
// stamp so the new date gets its own reminder.
func (r *Repository) UpdateInterviewDate(ctx context.Context, id int64, at *time.Time) (*Application, error) {
	query := `
		UPDATE applications
		SET interview_date = $1, interview_reminded_at = NULL, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + applicationColumns

	app, err := scanApplication(r.db.Pool().QueryRow(ctx, query, at, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update interview date: %w", err)
	}

	return app, nil
}

// DueInterviewReminders returns applications with an interview in
// [from, to] that have not been reminded yet.
func (r *Repository) DueInterviewReminders(ctx context.Context, from, to time.Time, limit int) ([]*Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM applications
		WHERE interview_date BETWEEN $1 AND $2
		  AND interview_reminded_at IS NULL
		ORDER BY interview_date ASC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query due interview reminders: %w", err)
	}
	return collectApplications(rows)
}

// DueDeadlineReminders returns applications with a deadline in [from, to]
// that have not been reminded yet.
func (r *Repository) DueDeadlineReminders(ctx context.Context, from, to time.Time, limit int) ([]*Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM applications
		WHERE deadline BETWEEN $1 AND $2
		  AND deadline_reminded_at IS NULL
		ORDER BY deadline ASC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query due deadline reminders: %w", err)
	}
	return collectApplications(rows)
}

// MarkInterviewReminded stamps interview_reminded_at.
func (r *Repository) MarkInterviewReminded(ctx context.Context, id int64) error {
	_, err := r.db.Pool().Exec(ctx,
		`UPDATE applications SET interview_reminded_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark interview reminded: %w", err)
	}
	return nil
}

// MarkDeadlineReminded stamps deadline_reminded_at.
func (r *Repository) MarkDeadlineReminded(ctx context.Context, id int64) error {
	_, err := r.db.Pool().Exec(ctx,
		`UPDATE applications SET deadline_reminded_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark deadline reminded: %w", err)
	}
	return nil
}
