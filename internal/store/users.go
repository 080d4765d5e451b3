// ABOUTME: User persistence for registration, login and account management
// ABOUTME: The first registered user becomes admin inside a single INSERT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const userColumns = `
	id, role, is_active, full_name, email, phone_number, country_code, password_hash,
	terms_accepted, father_husband_name, gender, aadhaar_number, current_address,
	current_village, current_district, current_state, current_pincode,
	total_land_holdings, primary_land_type, primary_soil_type, has_irrigation,
	irrigation_type, preferred_language, notification_enabled, last_login,
	created_at, updated_at`

// RegisterUser inserts u and fills in its ID, Role and timestamps.
// The role is admin when the table is empty and farmer otherwise; both the
// count and the insert run as one statement so two concurrent first
// registrations cannot both become admin.
func (s *SQLiteStore) RegisterUser(ctx context.Context, u *User) error {
	now := time.Now().UTC().Truncate(time.Second)
	if u.CountryCode == "" {
		u.CountryCode = "+91"
	}
	if u.PreferredLanguage == "" {
		u.PreferredLanguage = "hi"
	}

	query := `
		INSERT INTO users (
			role, is_active, full_name, email, phone_number, country_code, password_hash,
			terms_accepted, father_husband_name, gender, aadhaar_number, current_address,
			current_village, current_district, current_state, current_pincode,
			total_land_holdings, primary_land_type, primary_soil_type, has_irrigation,
			irrigation_type, preferred_language, notification_enabled, created_at, updated_at
		)
		VALUES (
			CASE WHEN (SELECT COUNT(*) FROM users) = 0 THEN 'admin' ELSE 'farmer' END,
			1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)
		RETURNING id, role
	`

	var role string
	err := s.db.QueryRowContext(ctx, query,
		u.FullName,
		strings.ToLower(u.Email),
		u.PhoneNumber,
		u.CountryCode,
		u.PasswordHash,
		boolToInt(u.TermsAccepted),
		nullString(u.FatherHusbandName),
		nullString(u.Gender),
		nullString(u.AadhaarNumber),
		nullString(u.CurrentAddress),
		nullString(u.CurrentVillage),
		nullString(u.CurrentDistrict),
		nullString(u.CurrentState),
		nullString(u.CurrentPincode),
		u.TotalLandHoldings,
		nullString(u.PrimaryLandType),
		nullString(u.PrimarySoilType),
		boolToInt(u.HasIrrigation),
		nullString(u.IrrigationType),
		u.PreferredLanguage,
		boolToInt(u.NotificationEnabled),
		formatTime(now),
		formatTime(now),
	).Scan(&u.ID, &role)
	if err != nil {
		if dup := duplicateUserError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	u.Email = strings.ToLower(u.Email)
	u.Role = Role(role)
	u.IsActive = true
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// duplicateUserError maps a unique violation to the matching sentinel.
func duplicateUserError(err error) error {
	if !isConstraintViolation(err) {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		return ErrDuplicateEmail
	case strings.Contains(msg, "users.phone_number"):
		return ErrDuplicatePhone
	case strings.Contains(msg, "users.aadhaar_number"):
		return ErrDuplicateAadhaar
	default:
		return nil
	}
}

// GetUserByID retrieves a user by primary key.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByPhone retrieves a user by phone number.
// Returns ErrNotFound if no user has that number.
func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE phone_number = ?`, phone)
	return scanUser(row)
}

// ListUsers returns all users ordered by id.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetUserActive toggles a user's active flag.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating user %d: %w", id, err)
	}
	return requireAffected(res)
}

// RecordLogin stores the time of a successful login.
func (s *SQLiteStore) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("recording login for user %d: %w", id, err)
	}
	return requireAffected(res)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var role string
	var isActive, terms, irrigation, notify int
	var fatherName, gender, aadhaar, address, village, district, state, pincode sql.NullString
	var landType, soilType, irrigationType, lastLogin sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&u.ID, &role, &isActive, &u.FullName, &u.Email, &u.PhoneNumber, &u.CountryCode, &u.PasswordHash,
		&terms, &fatherName, &gender, &aadhaar, &address,
		&village, &district, &state, &pincode,
		&u.TotalLandHoldings, &landType, &soilType, &irrigation,
		&irrigationType, &u.PreferredLanguage, &notify, &lastLogin,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.IsActive = isActive != 0
	u.TermsAccepted = terms != 0
	u.HasIrrigation = irrigation != 0
	u.NotificationEnabled = notify != 0
	u.FatherHusbandName = fatherName.String
	u.Gender = gender.String
	u.AadhaarNumber = aadhaar.String
	u.CurrentAddress = address.String
	u.CurrentVillage = village.String
	u.CurrentDistrict = district.String
	u.CurrentState = state.String
	u.CurrentPincode = pincode.String
	u.PrimaryLandType = landType.String
	u.PrimarySoilType = soilType.String
	u.IrrigationType = irrigationType.String

	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t, err := parseTime(lastLogin.String)
		if err != nil {
			return nil, err
		}
		u.LastLogin = &t
	}
	return &u, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
