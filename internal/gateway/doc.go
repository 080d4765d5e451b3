// Package gateway serves the KisanMitra HTTP API.
//
// # Overview
//
// The gateway package composes the stores, the cache, the model clients and
// the prediction models into one HTTP server. New builds every component from
// configuration; NewWithComponents accepts pre-built parts and is what tests use.
//
// # HTTP API
//
// Public:
//
//   - POST /auth/register - Create an account (first account becomes admin)
//   - POST /auth/login - Exchange phone and password for a bearer token
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (both databases)
//   - GET /metrics - Prometheus metrics, when enabled
//
// Bearer token required:
//
//   - GET /users/me, GET /users/{id}
//   - POST|GET /feedback
//   - POST|GET /notifications, POST /notifications/{id}/read, DELETE /notifications/{id}
//   - POST|GET /crop-recommendation, /yield-prediction, /crop-guidance
//   - POST /chat, POST /chat/stream, GET /chat/sessions, GET /chat/sessions/{id}
//
// Admin only:
//
//   - GET /admin/users
//   - POST /admin/users/{id}/activate, POST /admin/users/{id}/deactivate
//   - GET /admin/audit - Account and cross-user notification actions, newest first
//
// # SSE Streaming
//
// POST /chat/stream answers with Server-Sent Events:
//
//	event: started
//	data: {"session_id": "..."}
//
//	event: chunk
//	data: {"text": "Irrigate "}
//
//	event: done
//	data: {"session_id": "...", "reply": "Irrigate every ten days."}
//
// A failed turn ends with an error event instead of done and leaves the
// session history untouched.
//
// # Lifecycle
//
//	gw, err := gateway.New(ctx, cfg, logger)
//	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
//	err = gw.Run(ctx) // returns after graceful shutdown
//
// # Key Files
//
//   - gateway.go: Gateway struct, component construction, Run/Shutdown
//   - routes.go: route table and auth wrapping
//   - middleware.go: CORS and request instrumentation
//   - api.go: JSON, validation and SSE helpers
//   - users.go, records.go, advisory.go, chat.go: handlers
package gateway
