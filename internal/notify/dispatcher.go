// Package notify turns domain events into stored notifications and sends
// the matching email.
//
// Every entry point stores exactly one notification before trying email.
// Email failures are logged and never returned; only store failures are.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/db"
	"github.com/lalithlochan/applytrack/internal/delivery"
	"github.com/lalithlochan/applytrack/internal/events"
	"github.com/lalithlochan/applytrack/internal/metrics"
)

// Store persists notifications.
type Store interface {
	CreateNotification(ctx context.Context, notif *db.Notification) error
	MarkEmailSent(ctx context.Context, id uuid.UUID) error
}

// Directory resolves email recipients.
type Directory interface {
	GetUser(ctx context.Context, id int64) (*db.User, error)
}

// deliveryTemplates maps every notification type to its email template.
var deliveryTemplates = [...]delivery.Template{
	db.TypeApplicationStatusChanged: delivery.TemplateStatusUpdate,
	db.TypeApplicationCreated:       delivery.TemplateStatusUpdate,
	db.TypeInterviewScheduled:       delivery.TemplateInterview,
	db.TypeInterviewReminder:        delivery.TemplateInterview,
	db.TypeDocumentUploaded:         delivery.TemplateGeneric,
	db.TypeDeadlineApproaching:      delivery.TemplateReminder,
	db.TypeFollowUpReminder:         delivery.TemplateReminder,
	db.TypeJobPostingNew:            delivery.TemplateGeneric,
	db.TypeGeneral:                  delivery.TemplateGeneric,
	db.TypeSystem:                   delivery.TemplateNone,
}

// Fails to compile when a notification type has no template entry.
var _ = [1]struct{}{}[len(deliveryTemplates)-int(db.NumNotificationTypes)]

// TemplateFor returns the email template used for t.
func TemplateFor(t db.NotificationType) delivery.Template {
	if int(t) >= len(deliveryTemplates) {
		return delivery.TemplateNone
	}
	return deliveryTemplates[t]
}

type Config struct {
	AppName string
	// BaseURL prefixes action URLs. Empty keeps them relative.
	BaseURL         string
	DeliveryTimeout time.Duration
}

type Dispatcher struct {
	store   Store
	dir     Directory
	channel delivery.Channel
	cfg     Config
	logger  *zap.Logger
}

func NewDispatcher(store Store, dir Directory, channel delivery.Channel, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.AppName == "" {
		cfg.AppName = "ApplyTrack"
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Dispatcher{
		store:   store,
		dir:     dir,
		channel: channel,
		cfg:     cfg,
		logger:  logger,
	}
}

func (d *Dispatcher) StatusChanged(ctx context.Context, app db.Application, oldStatus db.Status) (*db.Notification, error) {
	return d.dispatch(ctx, app.UserID, nil, db.TypeApplicationStatusChanged, renderStatusChanged(app, oldStatus))
}

func (d *Dispatcher) ApplicationCreated(ctx context.Context, app db.Application) (*db.Notification, error) {
	return d.dispatch(ctx, app.UserID, nil, db.TypeApplicationCreated, renderApplicationCreated(app))
}

func (d *Dispatcher) InterviewScheduled(ctx context.Context, app db.Application) (*db.Notification, error) {
	return d.dispatch(ctx, app.UserID, nil, db.TypeInterviewScheduled, renderInterviewScheduled(app))
}

func (d *Dispatcher) InterviewReminder(ctx context.Context, app db.Application) (*db.Notification, error) {
	return d.dispatch(ctx, app.UserID, nil, db.TypeInterviewReminder, renderInterviewReminder(app))
}

func (d *Dispatcher) DocumentUploaded(ctx context.Context, userID int64, doc Document) (*db.Notification, error) {
	return d.dispatch(ctx, userID, nil, db.TypeDocumentUploaded, renderDocumentUploaded(doc))
}

func (d *Dispatcher) DeadlineApproaching(ctx context.Context, app db.Application) (*db.Notification, error) {
	return d.dispatch(ctx, app.UserID, nil, db.TypeDeadlineApproaching, renderDeadlineApproaching(app))
}

func (d *Dispatcher) FollowUpReminder(ctx context.Context, app db.Application, daysSinceApplied int) (*db.Notification, error) {
	return d.dispatch(ctx, app.UserID, nil, db.TypeFollowUpReminder, renderFollowUpReminder(app, daysSinceApplied))
}

func (d *Dispatcher) JobPostingNew(ctx context.Context, userID int64, posting JobPosting) (*db.Notification, error) {
	return d.dispatch(ctx, userID, nil, db.TypeJobPostingNew, renderJobPostingNew(posting))
}

func (d *Dispatcher) General(ctx context.Context, userID int64, title, message string, metadata map[string]any) (*db.Notification, error) {
	return d.dispatch(ctx, userID, nil, db.TypeGeneral, renderFreeform(title, message, metadata))
}

// System notifications are in-app only.
func (d *Dispatcher) System(ctx context.Context, userID int64, title, message string) (*db.Notification, error) {
	return d.dispatch(ctx, userID, nil, db.TypeSystem, renderFreeform(title, message, nil))
}

// SendBatch sends the same notification to every user in userIDs. Unknown
// users are skipped silently. Any other failure is collected and the batch
// continues with the next user.
func (d *Dispatcher) SendBatch(ctx context.Context, userIDs []int64, title, message string, typ db.NotificationType) ([]*db.Notification, error) {
	created := make([]*db.Notification, 0, len(userIDs))
	var errs []error

	for _, id := range userIDs {
		user, err := d.dir.GetUser(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			d.logger.Debug("skipping unknown batch recipient", zap.Int64("user_id", id))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("user %d: %w", id, err))
			continue
		}

		notif, err := d.dispatch(ctx, id, user, typ, renderFreeform(title, message, map[string]any{"batch": true}))
		if err != nil {
			errs = append(errs, fmt.Errorf("user %d: %w", id, err))
			continue
		}
		created = append(created, notif)
	}

	if len(errs) > 0 {
		d.logger.Warn("batch notification finished with errors",
			zap.Int("requested", len(userIDs)),
			zap.Int("created", len(created)),
			zap.Int("failed", len(errs)),
		)
	}

	return created, errors.Join(errs...)
}

// Handle implements events.Handler.
func (d *Dispatcher) Handle(ctx context.Context, ev events.Event) error {
	var err error
	switch ev.Kind {
	case events.KindStatusChanged:
		_, err = d.StatusChanged(ctx, ev.Application, ev.OldStatus)
	case events.KindApplicationCreated:
		_, err = d.ApplicationCreated(ctx, ev.Application)
	case events.KindInterviewScheduled:
		_, err = d.InterviewScheduled(ctx, ev.Application)
	default:
		d.logger.Warn("ignoring unknown event kind",
			zap.String("kind", string(ev.Kind)),
			zap.Int64("application_id", ev.Application.ID),
		)
	}
	return err
}

func (d *Dispatcher) actionURL(path string) *string {
	if path == "" {
		return nil
	}
	u := d.cfg.BaseURL + path
	return &u
}

// dispatch stores the notification and then attempts email. user may be
// nil, in which case it is looked up only when an email is due.
func (d *Dispatcher) dispatch(ctx context.Context, userID int64, user *db.User, typ db.NotificationType, c content) (*db.Notification, error) {
	notif := &db.Notification{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          typ,
		Title:         c.title,
		Message:       c.message,
		Metadata:      c.metadata,
		RelatedEntity: c.related,
		ActionURL:     d.actionURL(c.actionPath),
	}

	if err := d.store.CreateNotification(ctx, notif); err != nil {
		return nil, fmt.Errorf("create %s notification: %w", typ, err)
	}
	metrics.RecordNotificationCreated(typ.String())

	tmpl := TemplateFor(typ)
	if tmpl == delivery.TemplateNone {
		return notif, nil
	}

	if d.deliver(ctx, notif, user, tmpl, c) {
		if err := d.store.MarkEmailSent(ctx, notif.ID); err != nil {
			d.logger.Error("failed to record sent email",
				zap.Error(err),
				zap.String("notification_id", notif.ID.String()),
				zap.Int64("user_id", notif.UserID),
			)
			return notif, nil
		}
		notif.EmailSent = true
	}

	return notif, nil
}

// deliver reports whether the email was handed to the channel. It never
// panics and never returns an error.
func (d *Dispatcher) deliver(ctx context.Context, notif *db.Notification, user *db.User, tmpl delivery.Template, c content) (sent bool) {
	logFailure := func(msg string, fields ...zap.Field) {
		fields = append(fields,
			zap.String("notification_id", notif.ID.String()),
			zap.Int64("user_id", notif.UserID),
			zap.String("template", tmpl.String()),
		)
		d.logger.Warn(msg, fields...)
		metrics.RecordEmailDelivery(tmpl.String(), "error")
	}

	defer func() {
		if r := recover(); r != nil {
			logFailure("email delivery panicked", zap.Error(fmt.Errorf("panic: %v", r)))
			sent = false
		}
	}()

	if user == nil {
		u, err := d.dir.GetUser(ctx, notif.UserID)
		if err != nil {
			logFailure("email recipient lookup failed", zap.Error(err))
			return false
		}
		user = u
	}

	if !user.EmailNotifications || user.Email == "" {
		metrics.RecordEmailDelivery(tmpl.String(), "skipped")
		return false
	}

	data := delivery.Data{
		AppName:       d.cfg.AppName,
		RecipientName: user.Name,
		Title:         notif.Title,
		Message:       notif.Message,
		Details:       c.details,
	}
	if notif.ActionURL != nil {
		data.ActionURL = *notif.ActionURL
	}

	htmlBody, textBody, err := delivery.Compose(tmpl, data)
	if err != nil {
		logFailure("email render failed", zap.Error(err))
		return false
	}

	sctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	err = d.channel.Send(sctx, delivery.Message{
		To:             user.Email,
		ToName:         user.Name,
		Subject:        notif.Title,
		HTML:           htmlBody,
		Text:           textBody,
		Template:       tmpl,
		NotificationID: notif.ID.String(),
	})
	if err != nil {
		logFailure("email delivery failed",
			zap.Error(err),
			zap.String("channel", d.channel.Name()),
		)
		return false
	}

	metrics.RecordEmailDelivery(tmpl.String(), "sent")
	return true
}
