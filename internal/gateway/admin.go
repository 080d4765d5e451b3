// ABOUTME: Admin audit trail for account and notification management
// ABOUTME: Appends entries for privileged actions and serves GET /admin/audit

package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/kisanmitra/kisanmitra-gateway/internal/store"
)

// AuditEntryResponse is one audit log entry on the wire.
type AuditEntryResponse struct {
	ID         string         `json:"id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// audit records a privileged action. The action already happened, so a
// failure is logged and otherwise ignored.
func (g *Gateway) audit(ctx context.Context, actorID int64, action store.AuditAction, targetID int64, detail map[string]any) {
	e := &store.AuditEntry{
		ActorID:    actorID,
		Action:     action,
		TargetType: "user",
		TargetID:   strconv.FormatInt(targetID, 10),
		Detail:     detail,
	}
	if err := g.store.AppendAuditLog(context.WithoutCancel(ctx), e); err != nil {
		g.logger.Warn("failed to append audit log", "action", action, "target", e.TargetID, "error", err)
	}
}

// handleListAudit handles GET /admin/audit.
// Query filters: since (RFC 3339), actor, action, target, limit.
func (g *Gateway) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.AuditFilter

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		f.Since = &since
	}
	if v := q.Get("actor"); v != "" {
		actor, err := strconv.ParseInt(v, 10, 64)
		if err != nil || actor <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "actor must be a user id")
			return
		}
		f.ActorID = &actor
	}
	if v := q.Get("action"); v != "" {
		action := store.AuditAction(v)
		switch action {
		case store.AuditActivateUser, store.AuditDeactivateUser, store.AuditNotifyUser:
		default:
			g.sendJSONError(w, http.StatusBadRequest, "unknown audit action")
			return
		}
		f.Action = &action
	}
	if v := q.Get("target"); v != "" {
		f.TargetID = &v
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = limit
	}

	entries, err := g.store.ListAuditLog(r.Context(), f)
	if err != nil {
		g.logger.Error("failed to list audit log", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     string(e.Action),
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Timestamp:  e.Timestamp,
			Detail:     e.Detail,
		})
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"entries": out})
}
