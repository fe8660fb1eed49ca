package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yogaflow/attendance/internal/models"
)

// CreateNotification stores an inbox entry
func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = orNow(n.CreatedAt)

	_, err := db.exec(ctx, `
		INSERT INTO notifications (id, username, title, message, kind, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Username, n.Title, n.Message, n.Kind, n.Read, n.CreatedAt,
	)
	return mapError(err)
}

// ListNotifications returns a user's inbox, newest first
func (db *DB) ListNotifications(ctx context.Context, username string) ([]*models.Notification, error) {
	rows, err := db.query(ctx, `
		SELECT id, username, title, message, kind, is_read, created_at
		FROM notifications WHERE username = ? ORDER BY created_at DESC`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.Username, &n.Title, &n.Message, &n.Kind, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &n)
	}
	return list, rows.Err()
}

// MarkNotificationRead flags one of the user's notifications as read
func (db *DB) MarkNotificationRead(ctx context.Context, id, username string) error {
	res, err := db.exec(ctx, `UPDATE notifications SET is_read = ? WHERE id = ? AND username = ?`, true, id, username)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// HasNotificationSince reports whether the user received a notification of
// kind at or after since
func (db *DB) HasNotificationSince(ctx context.Context, username, kind string, since time.Time) (bool, error) {
	var n int
	err := db.queryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE username = ? AND kind = ? AND created_at >= ?`,
		username, kind, since.UTC()).Scan(&n)
	return n > 0, err
}

// DeleteNotificationsBefore removes notifications of kind older than before
func (db *DB) DeleteNotificationsBefore(ctx context.Context, kind string, before time.Time) (int64, error) {
	res, err := db.exec(ctx, `DELETE FROM notifications WHERE kind = ? AND created_at < ?`, kind, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
