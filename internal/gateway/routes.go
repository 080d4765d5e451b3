// ABOUTME: HTTP route table for the KisanMitra API
// ABOUTME: Public auth and health routes, token-gated user routes, admin-only management

package gateway

import (
	"net/http"

	"github.com/kisanmitra/kisanmitra-gateway/internal/auth"
)

// Handler returns the complete HTTP handler with middleware applied.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	if g.metrics != nil && g.config.Metrics.Enabled {
		mux.Handle("GET "+g.config.Metrics.Path, g.metrics.Handler())
	}

	mux.HandleFunc("POST /auth/register", g.handleRegister)
	mux.HandleFunc("POST /auth/login", g.handleLogin)

	authed := g.gate.Middleware()
	admin := func(h http.HandlerFunc) http.Handler {
		return authed(auth.RequireAdmin()(h))
	}
	user := func(h http.HandlerFunc) http.Handler {
		return authed(h)
	}

	mux.Handle("GET /users/me", user(g.handleMe))
	mux.Handle("GET /users/{id}", user(g.handleGetUser))
	mux.Handle("GET /admin/users", admin(g.handleListUsers))
	mux.Handle("POST /admin/users/{id}/deactivate", admin(g.handleSetActive(false)))
	mux.Handle("POST /admin/users/{id}/activate", admin(g.handleSetActive(true)))
	mux.Handle("GET /admin/audit", admin(g.handleListAudit))

	mux.Handle("POST /feedback", user(g.handleCreateFeedback))
	mux.Handle("GET /feedback", user(g.handleListFeedback))

	mux.Handle("POST /notifications", user(g.handleCreateNotification))
	mux.Handle("GET /notifications", user(g.handleListNotifications))
	mux.Handle("POST /notifications/{id}/read", user(g.handleReadNotification))
	mux.Handle("DELETE /notifications/{id}", user(g.handleDeleteNotification))

	mux.Handle("POST /crop-recommendation", user(g.handleCropRecommendation))
	mux.Handle("GET /crop-recommendation", user(g.handleListCropRecommendations))
	mux.Handle("POST /yield-prediction", user(g.handleYieldPrediction))
	mux.Handle("GET /yield-prediction", user(g.handleListYieldPredictions))
	mux.Handle("POST /crop-guidance", user(g.handleCropGuidance))
	mux.Handle("GET /crop-guidance", user(g.handleListCropGuidance))

	mux.Handle("POST /chat", user(g.handleChat))
	mux.Handle("POST /chat/stream", user(g.handleChatStream))
	mux.Handle("GET /chat/sessions", user(g.handleListSessions))
	mux.Handle("GET /chat/sessions/{id}", user(g.handleSessionHistory))

	return g.withCORS(g.instrument(mux))
}
