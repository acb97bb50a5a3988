// Package worker runs the background loops: the reminder sweep and the
// SQS event consumer.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/db"
	"github.com/lalithlochan/applytrack/internal/metrics"
)

type Repository interface {
	DueInterviewReminders(ctx context.Context, from, to time.Time, limit int) ([]*db.Application, error)
	DueDeadlineReminders(ctx context.Context, from, to time.Time, limit int) ([]*db.Application, error)
	MarkInterviewReminded(ctx context.Context, id int64) error
	MarkDeadlineReminded(ctx context.Context, id int64) error
}

// Notifier creates the reminder notifications.
type Notifier interface {
	InterviewReminder(ctx context.Context, app db.Application) (*db.Notification, error)
	DeadlineApproaching(ctx context.Context, app db.Application) (*db.Notification, error)
}

// Reminders periodically notifies users about upcoming interviews and
// deadlines. Each date is reminded once.
type Reminders struct {
	repo     Repository
	notifier Notifier
	config   Config
	logger   *zap.Logger
	now      func() time.Time
}

type Config struct {
	PollInterval time.Duration
	Lookahead    time.Duration
	BatchSize    int
}

func NewReminders(repo Repository, notifier Notifier, cfg Config, logger *zap.Logger) *Reminders {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 15 * time.Minute
	}
	if cfg.Lookahead == 0 {
		cfg.Lookahead = 24 * time.Hour
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}

	return &Reminders{
		repo:     repo,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (w *Reminders) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker stopping")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep sends every reminder that is due now. A failed notification is
// left unstamped and retried on the next sweep.
func (w *Reminders) Sweep(ctx context.Context) {
	from := w.now()
	to := from.Add(w.config.Lookahead)

	interviews, err := w.repo.DueInterviewReminders(ctx, from, to, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to get due interview reminders", zap.Error(err))
	}
	for _, app := range interviews {
		w.remind(ctx, "interview", app, w.notifier.InterviewReminder, w.repo.MarkInterviewReminded)
	}

	deadlines, err := w.repo.DueDeadlineReminders(ctx, from, to, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to get due deadline reminders", zap.Error(err))
	}
	for _, app := range deadlines {
		w.remind(ctx, "deadline", app, w.notifier.DeadlineApproaching, w.repo.MarkDeadlineReminded)
	}
}

func (w *Reminders) remind(
	ctx context.Context,
	kind string,
	app *db.Application,
	notify func(context.Context, db.Application) (*db.Notification, error),
	stamp func(context.Context, int64) error,
) {
	notif, err := notify(ctx, *app)
	if err != nil {
		w.logger.Error("failed to send reminder",
			zap.Error(err),
			zap.String("kind", kind),
			zap.Int64("application_id", app.ID),
		)
		return
	}
	metrics.RecordReminder(kind)

	if err := stamp(ctx, app.ID); err != nil {
		w.logger.Error("failed to stamp reminder",
			zap.Error(err),
			zap.String("kind", kind),
			zap.Int64("application_id", app.ID),
		)
		return
	}

	w.logger.Info("reminder sent",
		zap.String("kind", kind),
		zap.Int64("application_id", app.ID),
		zap.String("notification_id", notif.ID.String()),
	)
}
