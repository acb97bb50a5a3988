package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/application"
	"github.com/lalithlochan/applytrack/internal/db"
	"github.com/lalithlochan/applytrack/internal/redis"
)

// ApplicationService is the application operations exposed over HTTP.
type ApplicationService interface {
	Transition(ctx context.Context, id, requesterID int64, status db.Status) (*db.Application, error)
	Get(ctx context.Context, id, requesterID int64) (*db.Application, error)
	List(ctx context.Context, requesterID int64) ([]*db.Application, error)
	Create(ctx context.Context, requesterID int64, in application.NewApplication) (*db.Application, error)
	ScheduleInterview(ctx context.Context, id, requesterID int64, at *time.Time) (*db.Application, error)
}

// NotificationStore defines the notification reads and owner-scoped
// mutations the API performs.
type NotificationStore interface {
	GetNotification(ctx context.Context, id uuid.UUID, userID int64) (*db.Notification, error)
	ListNotifications(ctx context.Context, userID int64, opts db.ListOptions) ([]*db.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, id uuid.UUID, userID int64) (*db.Notification, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	DeleteNotification(ctx context.Context, id uuid.UUID, userID int64) error
}

// Broadcaster sends one notification to many users.
type Broadcaster interface {
	SendBatch(ctx context.Context, userIDs []int64, title, message string, typ db.NotificationType) ([]*db.Notification, error)
}

// HealthChecker reports whether storage is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger        *zap.Logger
	applications  ApplicationService
	notifications NotificationStore
	broadcaster   Broadcaster
	health        HealthChecker
	idempotency   *redis.IdempotencyService // nil if Redis not configured
	admins        map[int64]bool
}

// Deps groups the handler's collaborators. Idempotency is optional.
// With no Admins, operator endpoints refuse every caller.
type Deps struct {
	Applications  ApplicationService
	Notifications NotificationStore
	Broadcaster   Broadcaster
	Health        HealthChecker
	Idempotency   *redis.IdempotencyService
	Admins        []int64
}

func NewHandler(logger *zap.Logger, deps Deps) *Handler {
	admins := make(map[int64]bool, len(deps.Admins))
	for _, id := range deps.Admins {
		admins[id] = true
	}
	return &Handler{
		admins:        admins,
		logger:        logger,
		applications:  deps.Applications,
		notifications: deps.Notifications,
		broadcaster:   deps.Broadcaster,
		health:        deps.Health,
		idempotency:   deps.Idempotency,
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Health(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			h.writeError(w, http.StatusServiceUnavailable, "unavailable", "Storage unavailable", "")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// parsePage reads limit and offset. Limit defaults to 20 and is capped at
// 100; out-of-range values fall back to the defaults.
func parsePage(r *http.Request) (limit, offset int) {
	limit = 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
