package db

import (
	"go.uber.org/zap"
)

// Repository handles database operations for applications, notifications
// and the user directory.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository over the pool.
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}
