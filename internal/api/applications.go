package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/application"
	"github.com/lalithlochan/applytrack/internal/db"
	"github.com/lalithlochan/applytrack/internal/metrics"
	"github.com/lalithlochan/applytrack/internal/redis"
)

// TransitionRequest is the body of PUT /applications/{id}
type TransitionRequest struct {
	Status db.Status `json:"status"`
}

// InterviewRequest is the body of PUT /applications/{id}/interview. A null
// date clears the interview.
type InterviewRequest struct {
	InterviewDate *time.Time `json:"interview_date"`
}

func applicationID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// TransitionApplication handles PUT /applications/{id}
// Supports idempotency via the Idempotency-Key header.
func (h *Handler) TransitionApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFromContext(ctx)

	id, ok := applicationID(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid application ID", "ID must be a positive integer")
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	scope := "PUT /applications/" + strconv.FormatInt(id, 10)

	if idempotencyKey != "" && h.idempotency != nil {
		cached, err := h.idempotency.CheckOrReserve(ctx, userID, scope, idempotencyKey)
		switch {
		case errors.Is(err, redis.ErrRequestInFlight):
			h.writeError(w, http.StatusConflict, "duplicate_request",
				"Request is already being processed",
				"Another request with this idempotency key is in progress")
			return
		case err != nil:
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
			idempotencyKey = ""
		case cached != nil:
			metrics.RecordIdempotencyReplay()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(cached.StatusCode)
			_, _ = w.Write(cached.Body)
			return
		}
	}

	app, err := h.applications.Transition(ctx, id, userID, req.Status)
	if err != nil {
		if idempotencyKey != "" && h.idempotency != nil {
			if relErr := h.idempotency.Release(ctx, userID, scope, idempotencyKey); relErr != nil {
				h.logger.Warn("failed to release idempotency key", zap.Error(relErr))
			}
		}
		h.writeApplicationError(w, err, id)
		return
	}

	body, err := json.Marshal(app)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "encoding_error", "Failed to encode application", "")
		return
	}

	if idempotencyKey != "" && h.idempotency != nil {
		cached := &redis.CachedResponse{StatusCode: http.StatusOK, Body: body}
		if err := h.idempotency.Store(ctx, userID, scope, idempotencyKey, cached, redis.IdempotencyTTL); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// GetApplication handles GET /applications/{id}
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := applicationID(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid application ID", "ID must be a positive integer")
		return
	}

	app, err := h.applications.Get(r.Context(), id, UserIDFromContext(r.Context()))
	if err != nil {
		h.writeApplicationError(w, err, id)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

// ListApplications handles GET /applications
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.applications.List(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.logger.Error("failed to list applications", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list applications", "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"data":  apps,
		"count": len(apps),
	})
}

// CreateApplication handles POST /applications
func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var req application.NewApplication
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	app, err := h.applications.Create(r.Context(), UserIDFromContext(r.Context()), req)
	if err != nil {
		h.writeApplicationError(w, err, 0)
		return
	}
	h.writeJSON(w, http.StatusCreated, app)
}

// ScheduleInterview handles PUT /applications/{id}/interview
func (h *Handler) ScheduleInterview(w http.ResponseWriter, r *http.Request) {
	id, ok := applicationID(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid application ID", "ID must be a positive integer")
		return
	}

	var req InterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	app, err := h.applications.ScheduleInterview(r.Context(), id, UserIDFromContext(r.Context()), req.InterviewDate)
	if err != nil {
		h.writeApplicationError(w, err, id)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) writeApplicationError(w http.ResponseWriter, err error, id int64) {
	switch {
	case errors.Is(err, application.ErrInvalidStatus):
		h.writeError(w, http.StatusUnprocessableEntity, "invalid_status", "Invalid status",
			"status must be one of: Applied, Interview, Technical Test, Offer, Rejected")
	case errors.Is(err, application.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid application", err.Error())
	case errors.Is(err, application.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Application not found", "")
	case errors.Is(err, application.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "forbidden", "Application belongs to another user", "")
	default:
		h.logger.Error("application request failed",
			zap.Error(err),
			zap.Int64("application_id", id),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to process application", "")
	}
}
