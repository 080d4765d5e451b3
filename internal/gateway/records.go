// ABOUTME: Feedback and notification handlers scoped to the authenticated user
// ABOUTME: Notifications owned by someone else are reported as not found

package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/kisanmitra/kisanmitra-gateway/internal/auth"
	"github.com/kisanmitra/kisanmitra-gateway/internal/store"
)

// FeedbackRequest is the JSON body for POST /feedback.
type FeedbackRequest struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Comment  string `json:"comment" validate:"max=2000"`
	Category string `json:"category" validate:"omitempty,max=50"`
}

// FeedbackResponse is one stored feedback entry.
type FeedbackResponse struct {
	ID        int64     `json:"id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toFeedbackResponse(f *store.Feedback) FeedbackResponse {
	return FeedbackResponse{
		ID:        f.ID,
		Rating:    f.Rating,
		Comment:   f.Comment,
		Category:  f.Category,
		CreatedAt: f.CreatedAt,
	}
}

// NotificationRequest is the JSON body for POST /notifications.
// UserID addresses another user and is honoured for admins only.
type NotificationRequest struct {
	UserID  int64  `json:"user_id" validate:"gte=0"`
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=2000"`
	Type    string `json:"type" validate:"omitempty,oneof=info warning alert weather market"`
}

// NotificationResponse is one notification.
type NotificationResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func toNotificationResponse(n *store.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func (g *Gateway) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decodeRequest(w, r, &req); err != nil {
		g.writeDecodeError(w, err)
		return
	}

	f := &store.Feedback{
		UserID:   auth.MustFromContext(r.Context()).PrincipalID,
		Rating:   req.Rating,
		Comment:  req.Comment,
		Category: req.Category,
	}
	if err := g.store.CreateFeedback(r.Context(), f); err != nil {
		g.logger.Error("failed to save feedback", "user_id", f.UserID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusCreated, toFeedbackResponse(f))
}

func (g *Gateway) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustFromContext(r.Context()).PrincipalID
	items, err := g.store.ListFeedback(r.Context(), userID)
	if err != nil {
		g.logger.Error("failed to list feedback", "user_id", userID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]FeedbackResponse, 0, len(items))
	for _, f := range items {
		out = append(out, toFeedbackResponse(f))
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"feedback": out})
}

func (g *Gateway) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req NotificationRequest
	if err := decodeRequest(w, r, &req); err != nil {
		g.writeDecodeError(w, err)
		return
	}

	caller := auth.MustFromContext(r.Context())
	target := caller.PrincipalID
	if req.UserID != 0 && req.UserID != caller.PrincipalID {
		if !caller.IsAdmin() {
			g.sendJSONError(w, http.StatusForbidden, "Not allowed to notify other users")
			return
		}
		if _, err := g.store.GetUserByID(r.Context(), req.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				g.sendJSONError(w, http.StatusNotFound, "User not found")
				return
			}
			g.logger.Error("failed to load notification target", "user_id", req.UserID, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		target = req.UserID
	}

	n := &store.Notification{
		UserID:  target,
		Title:   req.Title,
		Message: req.Message,
		Type:    req.Type,
	}
	if n.Type == "" {
		n.Type = "info"
	}
	if err := g.store.CreateNotification(r.Context(), n); err != nil {
		g.logger.Error("failed to save notification", "user_id", target, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if target != caller.PrincipalID {
		g.audit(r.Context(), caller.PrincipalID, store.AuditNotifyUser, target, map[string]any{
			"notification_id": n.ID,
			"type":            n.Type,
		})
	}
	g.sendJSON(w, http.StatusCreated, toNotificationResponse(n))
}

func (g *Gateway) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustFromContext(r.Context()).PrincipalID
	items, err := g.store.ListNotifications(r.Context(), userID)
	if err != nil {
		g.logger.Error("failed to list notifications", "user_id", userID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, toNotificationResponse(n))
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

func (g *Gateway) handleReadNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	userID := auth.MustFromContext(r.Context()).PrincipalID
	if !g.notificationResult(w, g.store.MarkNotificationRead(r.Context(), userID, id), id) {
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"id": id, "is_read": true})
}

func (g *Gateway) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	userID := auth.MustFromContext(r.Context()).PrincipalID
	if !g.notificationResult(w, g.store.DeleteNotification(r.Context(), userID, id), id) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// notificationResult writes the error response for err and reports whether the caller may continue.
func (g *Gateway) notificationResult(w http.ResponseWriter, err error, id int64) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "Notification not found")
	default:
		g.logger.Error("failed to update notification", "notification_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
	return false
}
