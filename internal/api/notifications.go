package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/db"
)

// BroadcastRequest is the body of POST /notifications/broadcast
type BroadcastRequest struct {
	UserIDs []int64 `json:"user_ids"`
	Title   string  `json:"title"`
	Message string  `json:"message"`
	Type    string  `json:"type,omitempty"`
}

func (h *Handler) notificationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// ListNotifications handles GET /notifications?unread=true&limit=20&offset=0
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFromContext(ctx)

	var unread bool
	if unreadStr := r.URL.Query().Get("unread"); unreadStr != "" {
		u, err := strconv.ParseBool(unreadStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid unread filter", "unread must be true or false")
			return
		}
		unread = u
	}
	limit, offset := parsePage(r)

	notifications, err := h.notifications.ListNotifications(ctx, userID, db.ListOptions{
		UnreadOnly: unread,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.logger.Error("failed to list notifications",
			zap.Error(err),
			zap.Int64("user_id", userID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"data":   notifications,
		"limit":  limit,
		"offset": offset,
		"count":  len(notifications),
	})
}

// GetNotification handles GET /notifications/{id}
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.notificationID(w, r)
	if !ok {
		return
	}

	notif, err := h.notifications.GetNotification(r.Context(), id, UserIDFromContext(r.Context()))
	if err != nil {
		h.writeNotificationError(w, err, id, "get")
		return
	}
	h.writeJSON(w, http.StatusOK, notif)
}

// UnreadCount handles GET /notifications/unread-count
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	count, err := h.notifications.CountUnread(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count unread notifications",
			zap.Error(err),
			zap.Int64("user_id", userID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to count notifications", "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// MarkRead handles PUT /notifications/{id}/read
// Marking an already read notification keeps its original read_at.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.notificationID(w, r)
	if !ok {
		return
	}

	notif, err := h.notifications.MarkRead(r.Context(), id, UserIDFromContext(r.Context()))
	if err != nil {
		h.writeNotificationError(w, err, id, "mark read")
		return
	}
	h.writeJSON(w, http.StatusOK, notif)
}

// MarkAllRead handles PUT /notifications/read-all
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	updated, err := h.notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to mark all notifications read",
			zap.Error(err),
			zap.Int64("user_id", userID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update notifications", "")
		return
	}

	h.logger.Info("notifications marked read",
		zap.Int64("user_id", userID),
		zap.Int64("updated", updated),
	)
	h.writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// DeleteNotification handles DELETE /notifications/{id}
// Deleting a notification that is already gone also returns 204.
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.notificationID(w, r)
	if !ok {
		return
	}

	err := h.notifications.DeleteNotification(r.Context(), id, UserIDFromContext(r.Context()))
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		h.writeNotificationError(w, err, id, "delete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Broadcast handles POST /notifications/broadcast
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if len(req.UserIDs) == 0 || strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Message) == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "user_ids, title, and message are required")
		return
	}

	typ := db.TypeGeneral
	if req.Type != "" {
		parsed, err := db.ParseNotificationType(req.Type)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid type", err.Error())
			return
		}
		typ = parsed
	}

	created, err := h.broadcaster.SendBatch(r.Context(), req.UserIDs, req.Title, req.Message, typ)
	if err != nil {
		h.logger.Error("broadcast partially failed",
			zap.Error(err),
			zap.Int("requested", len(req.UserIDs)),
			zap.Int("created", len(created)),
		)
		if len(created) == 0 {
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create notifications", "")
			return
		}
	}

	h.logger.Info("broadcast sent",
		zap.String("type", typ.String()),
		zap.Int("requested", len(req.UserIDs)),
		zap.Int("created", len(created)),
	)
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"data":  created,
		"count": len(created),
	})
}

func (h *Handler) writeNotificationError(w http.ResponseWriter, err error, id uuid.UUID, op string) {
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}
	h.logger.Error("notification request failed",
		zap.Error(err),
		zap.String("op", op),
		zap.String("id", id.String()),
	)
	h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to process notification", "")
}
