package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/metrics"
	"github.com/lalithlochan/applytrack/internal/redis"
)

// NewRouter mounts the handler's routes. limiter may be nil.
func NewRouter(h *Handler, limiter *redis.RateLimiter, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(RequestLogger(logger))

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Use(RateLimitMiddleware(limiter, logger, UserKeyFunc))

		r.Get("/applications", h.ListApplications)
		r.Post("/applications", h.CreateApplication)
		r.Get("/applications/{id}", h.GetApplication)
		r.Put("/applications/{id}", h.TransitionApplication)
		r.Put("/applications/{id}/interview", h.ScheduleInterview)

		r.Get("/notifications", h.ListNotifications)
		r.Get("/notifications/unread-count", h.UnreadCount)
		r.Put("/notifications/read-all", h.MarkAllRead)
		r.With(h.RequireAdmin).Post("/notifications/broadcast", h.Broadcast)
		r.Get("/notifications/{id}", h.GetNotification)
		r.Put("/notifications/{id}/read", h.MarkRead)
		r.Delete("/notifications/{id}", h.DeleteNotification)
	})

	return r
}
