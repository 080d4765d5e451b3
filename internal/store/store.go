// ABOUTME: Store interface and data types for kisanmitra-gateway persistence
// ABOUTME: Defines users, feedback, notifications and advisory records

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Registration conflicts, one per unique user attribute.
var (
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrDuplicatePhone   = errors.New("phone number already registered")
	ErrDuplicateAadhaar = errors.New("aadhaar number already registered")
)

// ErrPersistence wraps durable-store write failures on the chat log.
var ErrPersistence = errors.New("persistence failure")

// Role is the closed set of principal roles.
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleExpert Role = "expert"
	RoleAdmin  Role = "admin"
)

// User is a registered principal together with its profile and land data.
type User struct {
	ID                  int64
	Role                Role
	IsActive            bool
	FullName            string
	Email               string
	PhoneNumber         string
	CountryCode         string
	PasswordHash        string
	TermsAccepted       bool
	FatherHusbandName   string
	Gender              string
	AadhaarNumber       string
	CurrentAddress      string
	CurrentVillage      string
	CurrentDistrict     string
	CurrentState        string
	CurrentPincode      string
	TotalLandHoldings   float64
	PrimaryLandType     string
	PrimarySoilType     string
	HasIrrigation       bool
	IrrigationType      string
	PreferredLanguage   string
	NotificationEnabled bool
	LastLogin           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Feedback is a rating and comment left by a user.
type Feedback struct {
	ID        int64
	UserID    int64
	Rating    int
	Comment   string
	Category  string
	CreatedAt time.Time
}

// Notification is a message addressed to one user.
type Notification struct {
	ID        int64
	UserID    int64
	Title     string
	Message   string
	Type      string
	IsRead    bool
	CreatedAt time.Time
}

// CropRecommendation is a classifier result plus its enrichment.
type CropRecommendation struct {
	ID            int64
	UserID        int64
	PredictedCrop string
	Inputs        map[string]float64
	Details       map[string]any
	CreatedAt     time.Time
}

// YieldPrediction is a regressor result plus its enrichment.
type YieldPrediction struct {
	ID             int64
	UserID         int64
	Item           string
	Area           string
	Year           int
	PredictedYield float64
	Unit           string
	Details        map[string]any
	CreatedAt      time.Time
}

// Fertilizer describes the fertilizer plan submitted with a guidance request.
type Fertilizer struct {
	Type     string `json:"type"`
	Amount   string `json:"amount"`
	Schedule string `json:"schedule"`
}

// CropGuidance is a guidance request and the generated guidance document.
type CropGuidance struct {
	ID               int64
	UserID           int64
	CropName         string
	LandSize         float64
	SoilType         string
	Location         string
	IrrigationMethod string
	Fertilizer       *Fertilizer
	Equipment        string
	PlantingDate     string // YYYY-MM-DD, empty when not given
	GrowingSeason    string
	Guidance         map[string]any
	CreatedAt        time.Time
}

// Store defines the interface for the relational store
type Store interface {
	// Users
	RegisterUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	SetUserActive(ctx context.Context, id int64, active bool) error
	RecordLogin(ctx context.Context, id int64, at time.Time) error

	// Feedback
	CreateFeedback(ctx context.Context, f *Feedback) error
	ListFeedback(ctx context.Context, userID int64) ([]*Feedback, error)

	// Notifications
	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID int64) ([]*Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id int64) error
	DeleteNotification(ctx context.Context, userID, id int64) error

	// Advisory records
	SaveCropRecommendation(ctx context.Context, r *CropRecommendation) error
	ListCropRecommendations(ctx context.Context, userID int64) ([]*CropRecommendation, error)
	SaveYieldPrediction(ctx context.Context, p *YieldPrediction) error
	ListYieldPredictions(ctx context.Context, userID int64) ([]*YieldPrediction, error)
	SaveCropGuidance(ctx context.Context, g *CropGuidance) error
	ListCropGuidance(ctx context.Context, userID int64) ([]*CropGuidance, error)

	// Audit log
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)

	Ping(ctx context.Context) error
	Close() error
}
