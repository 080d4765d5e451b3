// ABOUTME: Registration, login, profile and account-management handlers
// ABOUTME: Unknown phone and wrong password share one response and one bcrypt cost

package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kisanmitra/kisanmitra-gateway/internal/auth"
	"github.com/kisanmitra/kisanmitra-gateway/internal/store"
)

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	FullName          string  `json:"full_name" validate:"required,max=100"`
	Email             string  `json:"email" validate:"required,email"`
	PhoneNumber       string  `json:"phone_number" validate:"required,min=10,max=15,digits"`
	CountryCode       string  `json:"country_code" validate:"omitempty,max=5"`
	Password          string  `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword   string  `json:"confirm_password" validate:"required,eqfield=Password"`
	TermsAccepted     bool    `json:"terms_and_condition_followed" validate:"required"` // required on a bool means true
	FatherHusbandName string  `json:"father_husband_name" validate:"omitempty,max=100"`
	AadhaarNumber     string  `json:"aadhaar_number" validate:"omitempty,len=12,digits"`
	Gender            string  `json:"gender" validate:"omitempty,oneof=male female other"`
	CurrentAddress    string  `json:"current_address" validate:"omitempty,max=255"`
	CurrentVillage    string  `json:"current_village" validate:"omitempty,max=100"`
	CurrentDistrict   string  `json:"current_district" validate:"omitempty,max=100"`
	CurrentState      string  `json:"current_state" validate:"omitempty,max=100"`
	CurrentPincode    string  `json:"current_pincode" validate:"omitempty,len=6,digits"`
	TotalLandHoldings float64 `json:"total_land_holdings" validate:"gte=0"`
	PrimaryLandType   string  `json:"primary_land_type" validate:"omitempty,oneof=irrigated rainfed semi_irrigated horticulture orchard"`
	PrimarySoilType   string  `json:"primary_soil_type" validate:"omitempty,oneof=alluvial black red laterite mountain desert"`
	HasIrrigation     bool    `json:"has_irrigation_facility"`
	IrrigationType    string  `json:"irrigation_type" validate:"omitempty,max=50"`
	PreferredLanguage string  `json:"preferred_language" validate:"omitempty,max=10"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=10,max=15,digits"`
	Password    string `json:"password" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
	Role        string `json:"role"`
	FullName    string `json:"full_name"`
	ExpiresIn   int64  `json:"expires_in"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID                  int64      `json:"id"`
	Role                string     `json:"role"`
	IsActive            bool       `json:"is_active"`
	FullName            string     `json:"full_name"`
	Email               string     `json:"email"`
	PhoneNumber         string     `json:"phone_number"`
	CountryCode         string     `json:"country_code"`
	FatherHusbandName   string     `json:"father_husband_name,omitempty"`
	Gender              string     `json:"gender,omitempty"`
	AadhaarNumber       string     `json:"aadhaar_number,omitempty"`
	CurrentAddress      string     `json:"current_address,omitempty"`
	CurrentVillage      string     `json:"current_village,omitempty"`
	CurrentDistrict     string     `json:"current_district,omitempty"`
	CurrentState        string     `json:"current_state,omitempty"`
	CurrentPincode      string     `json:"current_pincode,omitempty"`
	TotalLandHoldings   float64    `json:"total_land_holdings"`
	PrimaryLandType     string     `json:"primary_land_type,omitempty"`
	PrimarySoilType     string     `json:"primary_soil_type,omitempty"`
	HasIrrigation       bool       `json:"has_irrigation_facility"`
	IrrigationType      string     `json:"irrigation_type,omitempty"`
	PreferredLanguage   string     `json:"preferred_language"`
	NotificationEnabled bool       `json:"notification_enabled"`
	LastLogin           *time.Time `json:"last_login"`
	CreatedAt           time.Time  `json:"created_at"`
}

// maskAadhaar keeps only the last four digits.
func maskAadhaar(s string) string {
	if len(s) <= 4 {
		return s
	}
	return strings.Repeat("X", len(s)-4) + s[len(s)-4:]
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:                  u.ID,
		Role:                string(u.Role),
		IsActive:            u.IsActive,
		FullName:            u.FullName,
		Email:               u.Email,
		PhoneNumber:         u.PhoneNumber,
		CountryCode:         u.CountryCode,
		FatherHusbandName:   u.FatherHusbandName,
		Gender:              u.Gender,
		AadhaarNumber:       maskAadhaar(u.AadhaarNumber),
		CurrentAddress:      u.CurrentAddress,
		CurrentVillage:      u.CurrentVillage,
		CurrentDistrict:     u.CurrentDistrict,
		CurrentState:        u.CurrentState,
		CurrentPincode:      u.CurrentPincode,
		TotalLandHoldings:   u.TotalLandHoldings,
		PrimaryLandType:     u.PrimaryLandType,
		PrimarySoilType:     u.PrimarySoilType,
		HasIrrigation:       u.HasIrrigation,
		IrrigationType:      u.IrrigationType,
		PreferredLanguage:   u.PreferredLanguage,
		NotificationEnabled: u.NotificationEnabled,
		LastLogin:           u.LastLogin,
		CreatedAt:           u.CreatedAt,
	}
}

// handleRegister handles POST /auth/register.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeRequest(w, r, &req); err != nil {
		g.writeDecodeError(w, err)
		return
	}

	digest, err := g.hasher.Hash(req.Password)
	if err != nil {
		g.logger.Error("failed to hash password", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	u := &store.User{
		IsActive:            true,
		FullName:            strings.TrimSpace(req.FullName),
		Email:               strings.ToLower(strings.TrimSpace(req.Email)),
		PhoneNumber:         req.PhoneNumber,
		CountryCode:         req.CountryCode,
		PasswordHash:        digest,
		TermsAccepted:       req.TermsAccepted,
		FatherHusbandName:   req.FatherHusbandName,
		Gender:              req.Gender,
		AadhaarNumber:       req.AadhaarNumber,
		CurrentAddress:      req.CurrentAddress,
		CurrentVillage:      req.CurrentVillage,
		CurrentDistrict:     req.CurrentDistrict,
		CurrentState:        req.CurrentState,
		CurrentPincode:      req.CurrentPincode,
		TotalLandHoldings:   req.TotalLandHoldings,
		PrimaryLandType:     req.PrimaryLandType,
		PrimarySoilType:     req.PrimarySoilType,
		HasIrrigation:       req.HasIrrigation,
		IrrigationType:      req.IrrigationType,
		PreferredLanguage:   req.PreferredLanguage,
		NotificationEnabled: true,
	}

	if err := g.store.RegisterUser(r.Context(), u); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			g.sendJSONError(w, http.StatusBadRequest, "Email already registered")
		case errors.Is(err, store.ErrDuplicatePhone):
			g.sendJSONError(w, http.StatusBadRequest, "Phone number already registered")
		case errors.Is(err, store.ErrDuplicateAadhaar):
			g.sendJSONError(w, http.StatusBadRequest, "Aadhaar number already registered")
		default:
			g.logger.Error("failed to register user", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	g.logger.Info("user registered", "user_id", u.ID, "role", u.Role)
	g.sendJSON(w, http.StatusCreated, toUserResponse(u))
}

// handleLogin handles POST /auth/login.
// The phone number identifies the account; an email, when supplied, must match too.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeRequest(w, r, &req); err != nil {
		g.writeDecodeError(w, err)
		return
	}

	reject := func(reason string) {
		g.metrics.AuthFailure(reason)
		g.logger.Warn("login rejected", "reason", reason, "remote_addr", r.RemoteAddr)
		g.sendJSONError(w, http.StatusUnauthorized, "Invalid credentials")
	}

	u, err := g.store.GetUserByPhone(r.Context(), req.PhoneNumber)
	if errors.Is(err, store.ErrNotFound) {
		g.hasher.Burn(req.Password)
		reject("bad_credentials")
		return
	}
	if err != nil {
		g.logger.Error("failed to look up user", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ok, err := g.hasher.Verify(req.Password, u.PasswordHash)
	if err != nil {
		g.logger.Error("stored credential is unreadable", "user_id", u.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		reject("bad_credentials")
		return
	}
	if req.Email != "" && !strings.EqualFold(strings.TrimSpace(req.Email), u.Email) {
		reject("email_mismatch")
		return
	}
	if !u.IsActive {
		g.metrics.AuthFailure("disabled")
		g.sendJSONError(w, http.StatusForbidden, "Account is disabled")
		return
	}

	token, err := g.tokens.Issue(strconv.FormatInt(u.ID, 10), string(u.Role), u.PhoneNumber, 0)
	if err != nil {
		g.logger.Error("failed to issue token", "user_id", u.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := g.store.RecordLogin(r.Context(), u.ID, g.now()); err != nil {
		g.logger.Warn("failed to record login time", "user_id", u.ID, "error", err)
	}

	g.sendJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      u.ID,
		Role:        string(u.Role),
		FullName:    u.FullName,
		ExpiresIn:   int64(g.tokens.TTL().Seconds()),
	})
}

// handleMe handles GET /users/me.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	g.writeUser(w, r, auth.MustFromContext(r.Context()).PrincipalID)
}

// handleGetUser handles GET /users/{id}; callers may read themselves, admins anyone.
func (g *Gateway) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	caller := auth.MustFromContext(r.Context())
	if caller.PrincipalID != id && !caller.IsAdmin() {
		g.sendJSONError(w, http.StatusForbidden, "Not allowed to view this user")
		return
	}
	g.writeUser(w, r, id)
}

func (g *Gateway) writeUser(w http.ResponseWriter, r *http.Request, id int64) {
	u, err := g.store.GetUserByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load user", "user_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusOK, toUserResponse(u))
}

// handleListUsers handles GET /admin/users.
func (g *Gateway) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := g.store.ListUsers(r.Context())
	if err != nil {
		g.logger.Error("failed to list users", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"users": out})
}

// handleSetActive handles POST /admin/users/{id}/activate and /deactivate.
// Deactivation takes effect on the target's next request.
func (g *Gateway) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			g.sendJSONError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		caller := auth.MustFromContext(r.Context())
		if !active && caller.PrincipalID == id {
			g.sendJSONError(w, http.StatusBadRequest, "cannot deactivate your own account")
			return
		}

		err := g.store.SetUserActive(r.Context(), id, active)
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			g.logger.Error("failed to update user", "user_id", id, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		action := store.AuditDeactivateUser
		if active {
			action = store.AuditActivateUser
		}
		g.audit(r.Context(), caller.PrincipalID, action, id, nil)

		g.logger.Info("account status changed", "user_id", id, "active", active, "by", caller.PrincipalID)
		g.sendJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": active})
	}
}
