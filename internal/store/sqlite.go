// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, creates the schema, and applies column migrations

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// openSQLite opens path with WAL, foreign keys and a busy timeout applied to
// every pooled connection. Parent directories are created if needed.
func openSQLite(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			role                TEXT NOT NULL DEFAULT 'farmer',
			is_active           INTEGER NOT NULL DEFAULT 1,
			full_name           TEXT NOT NULL,
			email               TEXT NOT NULL UNIQUE,
			phone_number        TEXT NOT NULL UNIQUE,
			country_code        TEXT NOT NULL DEFAULT '+91',
			password_hash       TEXT NOT NULL,
			terms_accepted      INTEGER NOT NULL,
			father_husband_name TEXT,
			gender              TEXT,
			aadhaar_number      TEXT UNIQUE,
			current_address     TEXT,
			current_village     TEXT,
			current_district    TEXT,
			current_state       TEXT,
			current_pincode     TEXT,
			total_land_holdings REAL NOT NULL DEFAULT 0,
			primary_land_type   TEXT,
			primary_soil_type   TEXT,
			has_irrigation      INTEGER NOT NULL DEFAULT 0,
			irrigation_type     TEXT,
			preferred_language  TEXT NOT NULL DEFAULT 'hi',
			last_login          TEXT,
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL,

			CHECK (role IN ('farmer', 'expert', 'admin'))
		);

		CREATE TABLE IF NOT EXISTS feedbacks (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			rating     INTEGER,
			comment    TEXT,
			category   TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_feedbacks_user ON feedbacks(user_id);

		CREATE TABLE IF NOT EXISTS notifications (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title      TEXT NOT NULL,
			message    TEXT NOT NULL,
			type       TEXT,
			is_read    INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);

		CREATE TABLE IF NOT EXISTS crop_recommendations (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id        INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			predicted_crop TEXT NOT NULL,
			inputs_json    TEXT NOT NULL,
			details_json   TEXT NOT NULL,
			created_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_crop_recommendations_user ON crop_recommendations(user_id);

		CREATE TABLE IF NOT EXISTS yield_predictions (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			item            TEXT NOT NULL,
			area            TEXT NOT NULL,
			year            INTEGER NOT NULL,
			predicted_yield REAL NOT NULL,
			unit            TEXT NOT NULL DEFAULT 'hg/ha',
			details_json    TEXT NOT NULL,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_yield_predictions_user ON yield_predictions(user_id);

		CREATE TABLE IF NOT EXISTS crop_guidance (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id           INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			crop_name         TEXT NOT NULL,
			land_size         REAL NOT NULL,
			soil_type         TEXT NOT NULL,
			location          TEXT NOT NULL,
			irrigation_method TEXT NOT NULL,
			fertilizer_json   TEXT,
			equipment         TEXT,
			planting_date     TEXT,
			growing_season    TEXT,
			guidance_json     TEXT NOT NULL,
			created_at        TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_crop_guidance_user ON crop_guidance(user_id);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id    TEXT PRIMARY KEY,
			actor_id    INTEGER NOT NULL,
			action      TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			ts          TEXT NOT NULL,
			detail_json TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies additive column changes to databases created by
// earlier builds. SQLite has no ADD COLUMN IF NOT EXISTS, so each is checked first.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		check  string
		apply  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('users') WHERE name = 'notification_enabled'`,
			apply:  `ALTER TABLE users ADD COLUMN notification_enabled INTEGER NOT NULL DEFAULT 1`,
			column: "notification_enabled",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking column %s: %w", m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding column %s: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column)
	}

	return nil
}

// Ping verifies the database connection is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if an error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// encodeJSON marshals v for a *_json column, storing an empty object for nil maps.
func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding json column: %w", err)
	}
	if string(data) == "null" {
		return "{}", nil
	}
	return string(data), nil
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
