// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu              sync.RWMutex
	nextID          int64
	users           map[int64]*User
	feedback        []*Feedback
	notifications   map[int64]*Notification
	recommendations []*CropRecommendation
	yields          []*YieldPrediction
	guidance        []*CropGuidance
	audit           []AuditEntry
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[int64]*User),
		notifications: make(map[int64]*Notification),
	}
}

func (m *MockStore) id() int64 {
	m.nextID++
	return m.nextID
}

// RegisterUser stores a copy of u, applying the first-user-is-admin rule.
func (m *MockStore) RegisterUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(u.Email)
	for _, existing := range m.users {
		switch {
		case existing.Email == email:
			return ErrDuplicateEmail
		case existing.PhoneNumber == u.PhoneNumber:
			return ErrDuplicatePhone
		case u.AadhaarNumber != "" && existing.AadhaarNumber == u.AadhaarNumber:
			return ErrDuplicateAadhaar
		}
	}

	u.Role = RoleFarmer
	if len(m.users) == 0 {
		u.Role = RoleAdmin
	}
	if u.CountryCode == "" {
		u.CountryCode = "+91"
	}
	if u.PreferredLanguage == "" {
		u.PreferredLanguage = "hi"
	}
	u.Email = email
	u.ID = m.id()
	u.IsActive = true
	u.CreatedAt = time.Now().UTC().Truncate(time.Second)
	u.UpdatedAt = u.CreatedAt

	copied := *u
	m.users[u.ID] = &copied
	return nil
}

// GetUserByID retrieves a user by ID.
func (m *MockStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// GetUserByPhone retrieves a user by phone number.
func (m *MockStore) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.PhoneNumber == phone {
			result := *u
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

// ListUsers returns all users ordered by ID.
func (m *MockStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		copied := *u
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetUserActive toggles a user's active flag.
func (m *MockStore) SetUserActive(ctx context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	return nil
}

// RecordLogin stores the time of a successful login.
func (m *MockStore) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	u.LastLogin = &t
	return nil
}

// CreateFeedback stores a copy of f.
func (m *MockStore) CreateFeedback(ctx context.Context, f *Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f.ID = m.id()
	f.CreatedAt = time.Now().UTC()
	copied := *f
	m.feedback = append(m.feedback, &copied)
	return nil
}

// ListFeedback returns a user's feedback, newest first.
func (m *MockStore) ListFeedback(ctx context.Context, userID int64) ([]*Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Feedback
	for i := len(m.feedback) - 1; i >= 0; i-- {
		if m.feedback[i].UserID == userID {
			copied := *m.feedback[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

// CreateNotification stores a copy of n.
func (m *MockStore) CreateNotification(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n.ID = m.id()
	n.IsRead = false
	n.CreatedAt = time.Now().UTC()
	copied := *n
	m.notifications[n.ID] = &copied
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (m *MockStore) ListNotifications(ctx context.Context, userID int64) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			copied := *n
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// MarkNotificationRead flags a notification owned by userID as read.
func (m *MockStore) MarkNotificationRead(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	n.IsRead = true
	return nil
}

// DeleteNotification removes a notification owned by userID.
func (m *MockStore) DeleteNotification(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	delete(m.notifications, id)
	return nil
}

// SaveCropRecommendation stores a copy of r.
func (m *MockStore) SaveCropRecommendation(ctx context.Context, r *CropRecommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.ID = m.id()
	r.CreatedAt = time.Now().UTC()
	copied := *r
	m.recommendations = append(m.recommendations, &copied)
	return nil
}

// ListCropRecommendations returns a user's recommendations, newest first.
func (m *MockStore) ListCropRecommendations(ctx context.Context, userID int64) ([]*CropRecommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*CropRecommendation
	for i := len(m.recommendations) - 1; i >= 0; i-- {
		if m.recommendations[i].UserID == userID {
			copied := *m.recommendations[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

// SaveYieldPrediction stores a copy of p.
func (m *MockStore) SaveYieldPrediction(ctx context.Context, p *YieldPrediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.id()
	if p.Unit == "" {
		p.Unit = "hg/ha"
	}
	p.CreatedAt = time.Now().UTC()
	copied := *p
	m.yields = append(m.yields, &copied)
	return nil
}

// ListYieldPredictions returns a user's yield predictions, newest first.
func (m *MockStore) ListYieldPredictions(ctx context.Context, userID int64) ([]*YieldPrediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*YieldPrediction
	for i := len(m.yields) - 1; i >= 0; i-- {
		if m.yields[i].UserID == userID {
			copied := *m.yields[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

// SaveCropGuidance stores a copy of g.
func (m *MockStore) SaveCropGuidance(ctx context.Context, g *CropGuidance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g.ID = m.id()
	g.CreatedAt = time.Now().UTC()
	copied := *g
	m.guidance = append(m.guidance, &copied)
	return nil
}

// ListCropGuidance returns a user's guidance documents, newest first.
func (m *MockStore) ListCropGuidance(ctx context.Context, userID int64) ([]*CropGuidance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*CropGuidance
	for i := len(m.guidance) - 1; i >= 0; i-- {
		if m.guidance[i].UserID == userID {
			copied := *m.guidance[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

// AppendAuditLog records e in memory.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prepareAuditEntry(e)
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns matching entries, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeAuditLimit(f.Limit)
	out := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.audit[i]
		switch {
		case f.Since != nil && e.Timestamp.Before(*f.Since):
		case f.ActorID != nil && e.ActorID != *f.ActorID:
		case f.Action != nil && e.Action != *f.Action:
		case f.TargetID != nil && e.TargetID != *f.TargetID:
		default:
			out = append(out, e)
		}
	}
	return out, nil
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)
