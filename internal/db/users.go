package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetUser looks up a notification recipient.
func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, name, email, email_notifications FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.EmailNotifications)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}
