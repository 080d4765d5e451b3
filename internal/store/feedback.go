// ABOUTME: Feedback and notification persistence scoped to the owning user
// ABOUTME: Lists are newest first; mutations on foreign rows report ErrNotFound

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateFeedback stores f and fills in its ID and CreatedAt.
func (s *SQLiteStore) CreateFeedback(ctx context.Context, f *Feedback) error {
	f.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO feedbacks (user_id, rating, comment, category, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.UserID, f.Rating, nullString(f.Comment), nullString(f.Category), formatTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	f.ID, err = res.LastInsertId()
	return err
}

// ListFeedback returns a user's feedback, newest first.
func (s *SQLiteStore) ListFeedback(ctx context.Context, userID int64) ([]*Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, rating, comment, category, created_at
		FROM feedbacks
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	defer rows.Close()

	var out []*Feedback
	for rows.Next() {
		var f Feedback
		var rating sql.NullInt64
		var comment, category sql.NullString
		var createdAt string
		if err := rows.Scan(&f.ID, &f.UserID, &rating, &comment, &category, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		f.Rating = int(rating.Int64)
		f.Comment = comment.String
		f.Category = category.String
		if f.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// CreateNotification stores n and fills in its ID and CreatedAt.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *Notification) error {
	n.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, title, message, type, is_read, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, n.UserID, n.Title, n.Message, nullString(n.Type), formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	n.IsRead = false
	n.ID, err = res.LastInsertId()
	return err
}

// ListNotifications returns a user's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID int64) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, message, type, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		var typ sql.NullString
		var isRead int
		var createdAt string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &typ, &isRead, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.Type = typ.String
		n.IsRead = isRead != 0
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags one of the user's notifications as read.
// Returns ErrNotFound when the notification does not belong to userID.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("marking notification %d read: %w", id, err)
	}
	return requireAffected(res)
}

// DeleteNotification removes one of the user's notifications.
// Returns ErrNotFound when the notification does not belong to userID.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting notification %d: %w", id, err)
	}
	return requireAffected(res)
}
