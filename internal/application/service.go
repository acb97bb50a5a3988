// Package application owns status transitions of job applications.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/db"
	"github.com/lalithlochan/applytrack/internal/events"
	"github.com/lalithlochan/applytrack/internal/metrics"
)

var (
	ErrNotFound      = errors.New("application not found")
	ErrForbidden     = errors.New("application belongs to another user")
	ErrInvalidStatus = errors.New("invalid application status")
	ErrInvalidInput  = errors.New("invalid application")
)

// Repository is the application storage the service needs.
type Repository interface {
	CreateApplication(ctx context.Context, app *db.Application) error
	GetApplication(ctx context.Context, id int64) (*db.Application, error)
	ListApplicationsByUser(ctx context.Context, userID int64) ([]*db.Application, error)
	// UpdateApplicationStatus returns the stored row and the status it replaced.
	UpdateApplicationStatus(ctx context.Context, id int64, status db.Status) (*db.Application, db.Status, error)
	UpdateInterviewDate(ctx context.Context, id int64, at *time.Time) (*db.Application, error)
}

type Service struct {
	repo      Repository
	publisher events.Publisher
	logger    *zap.Logger
}

func NewService(repo Repository, publisher events.Publisher, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// Transition moves an application to status on behalf of requesterID.
// Any status may move to any other status. Rejections are reported before
// anything is written or published. The StatusChanged event is published
// only after the write succeeds, and a publish failure does not fail the
// transition.
func (s *Service) Transition(ctx context.Context, id, requesterID int64, status db.Status) (*db.Application, error) {
	if !status.Valid() {
		metrics.RecordTransition(string(status), "invalid")
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	if _, err := s.owned(ctx, id, requesterID); err != nil {
		metrics.RecordTransition(string(status), rejection(err))
		return nil, err
	}

	// The old status comes from the write, not the ownership read.
	updated, oldStatus, err := s.repo.UpdateApplicationStatus(ctx, id, status)
	if err != nil {
		metrics.RecordTransition(string(status), "error")
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update application status: %w", err)
	}
	metrics.RecordTransition(string(status), "ok")

	s.logger.Info("application status changed",
		zap.Int64("application_id", id),
		zap.Int64("user_id", requesterID),
		zap.String("old_status", string(oldStatus)),
		zap.String("new_status", string(updated.Status)),
	)

	s.publish(ctx, events.StatusChanged(*updated, oldStatus))

	return updated, nil
}

// Get returns an application owned by requesterID.
func (s *Service) Get(ctx context.Context, id, requesterID int64) (*db.Application, error) {
	return s.owned(ctx, id, requesterID)
}

// List returns the caller's applications, oldest first.
func (s *Service) List(ctx context.Context, requesterID int64) ([]*db.Application, error) {
	apps, err := s.repo.ListApplicationsByUser(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// NewApplication is the input to Create.
type NewApplication struct {
	Company       string     `json:"company"`
	Position      string     `json:"position"`
	Status        db.Status  `json:"status"`
	InterviewDate *time.Time `json:"interview_date,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
}

// Create stores a new application owned by requesterID. Status defaults to
// Applied.
func (s *Service) Create(ctx context.Context, requesterID int64, in NewApplication) (*db.Application, error) {
	if strings.TrimSpace(in.Company) == "" || strings.TrimSpace(in.Position) == "" {
		return nil, fmt.Errorf("%w: company and position are required", ErrInvalidInput)
	}
	if in.Status == "" {
		in.Status = db.StatusApplied
	}
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}

	app := &db.Application{
		UserID:        requesterID,
		Company:       strings.TrimSpace(in.Company),
		Position:      strings.TrimSpace(in.Position),
		Status:        in.Status,
		InterviewDate: in.InterviewDate,
		Deadline:      in.Deadline,
	}
	if err := s.repo.CreateApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}

	s.publish(ctx, events.ApplicationCreated(*app))
	if app.InterviewDate != nil {
		s.publish(ctx, events.InterviewScheduled(*app))
	}

	return app, nil
}

// ScheduleInterview sets or clears the interview date. Setting a date
// publishes InterviewScheduled.
func (s *Service) ScheduleInterview(ctx context.Context, id, requesterID int64, at *time.Time) (*db.Application, error) {
	if _, err := s.owned(ctx, id, requesterID); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateInterviewDate(ctx, id, at)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update interview date: %w", err)
	}

	if at != nil {
		s.publish(ctx, events.InterviewScheduled(*updated))
	}

	return updated, nil
}

func (s *Service) owned(ctx context.Context, id, requesterID int64) (*db.Application, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	if app.UserID != requesterID {
		return nil, ErrForbidden
	}
	return app, nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error("failed to publish application event",
			zap.Error(err),
			zap.String("kind", string(ev.Kind)),
			zap.Int64("application_id", ev.Application.ID),
		)
	}
}

func rejection(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
