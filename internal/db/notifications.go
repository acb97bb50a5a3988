package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const notificationColumns = `
	id, user_id, type, title, message, metadata,
	related_type, related_id, action_url, read_at, email_sent, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		notif       Notification
		typ         string
		relatedType *string
		relatedID   *int64
	)
	err := row.Scan(
		&notif.ID,
		&notif.UserID,
		&typ,
		&notif.Title,
		&notif.Message,
		&notif.Metadata,
		&relatedType,
		&relatedID,
		&notif.ActionURL,
		&notif.ReadAt,
		&notif.EmailSent,
		&notif.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	notif.Type, err = ParseNotificationType(typ)
	if err != nil {
		return nil, err
	}
	if relatedType != nil && relatedID != nil {
		notif.RelatedEntity = &EntityRef{Type: *relatedType, ID: *relatedID}
	}
	return &notif, nil
}

// CreateNotification inserts a notification. EmailSent is always stored as
// false; delivery outcome is recorded separately by MarkEmailSent.
func (r *Repository) CreateNotification(ctx context.Context, notif *Notification) error {
	if notif.ID == uuid.Nil {
		notif.ID = uuid.New()
	}
	if notif.Metadata == nil {
		notif.Metadata = map[string]any{}
	}
	notif.EmailSent = false

	var relatedType *string
	var relatedID *int64
	if notif.RelatedEntity != nil {
		relatedType = &notif.RelatedEntity.Type
		relatedID = &notif.RelatedEntity.ID
	}

	query := `
		INSERT INTO notifications (
			id, user_id, type, title, message, metadata,
			related_type, related_id, action_url, email_sent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		notif.ID,
		notif.UserID,
		notif.Type.String(),
		notif.Title,
		notif.Message,
		notif.Metadata,
		relatedType,
		relatedID,
		notif.ActionURL,
	).Scan(&notif.CreatedAt)
	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("notification_id", notif.ID.String()),
			zap.Int64("user_id", notif.UserID),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	r.logger.Debug("notification created",
		zap.String("notification_id", notif.ID.String()),
		zap.Int64("user_id", notif.UserID),
		zap.Stringer("type", notif.Type),
	)

	return nil
}

// GetNotification retrieves a notification owned by userID.
func (r *Repository) GetNotification(ctx context.Context, id uuid.UUID, userID int64) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1 AND user_id = $2`

	notif, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}

	return notif, nil
}

// ListNotifications returns a user's notifications newest first.
func (r *Repository) ListNotifications(ctx context.Context, userID int64, opts ListOptions) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1 AND ($2::boolean = FALSE OR read_at IS NULL)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, opts.UnreadOnly, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]*Notification, 0, opts.Limit)
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, notif)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// CountUnread returns the number of unread notifications for a user.
func (r *Repository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead sets read_at if it is still null. Marking an already read
// notification leaves read_at untouched and is not an error.
func (r *Repository) MarkRead(ctx context.Context, id uuid.UUID, userID int64) (*Notification, error) {
	query := `
		UPDATE notifications
		SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2
		RETURNING ` + notificationColumns

	notif, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}

	return notif, nil
}

// MarkAllRead marks every unread notification of a user as read in one
// statement and returns how many rows changed.
func (r *Repository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE notifications SET read_at = NOW() WHERE user_id = $1 AND read_at IS NULL`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteNotification removes a notification owned by userID.
func (r *Repository) DeleteNotification(ctx context.Context, id uuid.UUID, userID int64) error {
	result, err := r.db.Pool().Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkEmailSent records a successfully dispatched email.
func (r *Repository) MarkEmailSent(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE notifications SET email_sent = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}
