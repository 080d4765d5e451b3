// ABOUTME: Authorization gate that turns a bearer token into a resolved principal
// ABOUTME: Provides Resolve for direct use and HTTP middleware for protected routes

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kisanmitra/kisanmitra-gateway/internal/store"
)

// Gate errors
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrAccountDisabled = errors.New("account disabled")
)

// PrincipalStore is the lookup the gate performs once per request.
type PrincipalStore interface {
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
}

// FailureRecorder receives a short reason for every rejected request.
type FailureRecorder interface {
	AuthFailure(reason string)
}

// Gate resolves bearer tokens into principals.
type Gate struct {
	verifier   TokenVerifier
	principals PrincipalStore
	recorder   FailureRecorder
	logger     *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithFailureRecorder attaches a recorder for rejected requests.
func WithFailureRecorder(r FailureRecorder) GateOption {
	return func(g *Gate) {
		g.recorder = r
	}
}

// NewGate creates a gate backed by verifier and principals.
func NewGate(verifier TokenVerifier, principals PrincipalStore, logger *slog.Logger, opts ...GateOption) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		verifier:   verifier,
		principals: principals,
		logger:     logger.With("component", "auth"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve verifies token and loads its principal.
// Token problems and unknown principals wrap ErrUnauthenticated, with
// ErrExpiredToken or ErrInvalidToken also in the chain where they apply.
// An inactive principal yields ErrAccountDisabled.
func (g *Gate) Resolve(ctx context.Context, token string) (*AuthContext, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: subject is not a principal id", ErrUnauthenticated, ErrInvalidToken)
	}

	user, err := g.principals.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: principal %d not found", ErrUnauthenticated, id)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving principal: %w", err)
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	return &AuthContext{
		PrincipalID: user.ID,
		Phone:       user.PhoneNumber,
		Role:        string(user.Role),
	}, nil
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// describeFailure maps a Resolve error to a status code, a client message
// and a metric reason.
func describeFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrAccountDisabled):
		return http.StatusForbidden, "Account is disabled", "disabled"
	case errors.Is(err, ErrExpiredToken):
		return http.StatusUnauthorized, "Token expired", "expired"
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid token", "invalid"
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "Could not validate credentials", "unknown_principal"
	default:
		return http.StatusInternalServerError, "internal server error", "lookup_error"
	}
}

// Middleware rejects requests without a valid bearer token and attaches the
// resolved AuthContext to the request context otherwise.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				g.fail(r, "missing_token", errMsg)
				writeAuthError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			authCtx, err := g.Resolve(r.Context(), token)
			if err != nil {
				status, msg, reason := describeFailure(err)
				g.fail(r, reason, err.Error())
				writeAuthError(w, status, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireAdmin creates an HTTP middleware that requires the admin role.
// Must be used after Gate.Middleware.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				writeAuthError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			if !authCtx.IsAdmin() {
				writeAuthError(w, http.StatusForbidden, "admin role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) fail(r *http.Request, reason, detail string) {
	if g.recorder != nil {
		g.recorder.AuthFailure(reason)
	}
	g.logger.Warn("auth failure",
		"reason", reason,
		"detail", detail,
		"remote_addr", r.RemoteAddr,
		"path", r.URL.Path,
	)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
