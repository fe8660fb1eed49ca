package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yogaflow/attendance/internal/models"
)

const sessionColumns = `id, username, token_hash, device_info, ip_address, created_at, last_activity, active`

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.Username, &s.TokenHash, &s.Device, &s.IPAddress, &s.CreatedAt, &s.LastActivity, &s.Active)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts an active session
func (db *DB) CreateSession(ctx context.Context, s *models.Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = orNow(s.CreatedAt)
	if s.LastActivity.IsZero() {
		s.LastActivity = s.CreatedAt
	}

	_, err := db.exec(ctx, `
		INSERT INTO user_sessions (id, username, token_hash, device_info, ip_address, created_at, last_activity, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Username, s.TokenHash, s.Device, s.IPAddress, s.CreatedAt, s.LastActivity.UTC(), s.Active,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", mapError(err))
	}
	return nil
}

// GetSession retrieves a session by id, active or not
func (db *DB) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s, err := scanSession(db.queryRow(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE id = ?`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return s, nil
}

// ListActiveSessions returns the user's active sessions, newest first
func (db *DB) ListActiveSessions(ctx context.Context, username string) ([]*models.Session, error) {
	rows, err := db.query(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions WHERE username = ? AND active = ? ORDER BY created_at DESC`,
		username, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeactivateSession closes exactly one session
func (db *DB) DeactivateSession(ctx context.Context, id string) error {
	res, err := db.exec(ctx, `UPDATE user_sessions SET active = ? WHERE id = ?`, false, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeactivateSessionsByUsername closes every active session of a user
func (db *DB) DeactivateSessionsByUsername(ctx context.Context, username string) (int64, error) {
	res, err := db.exec(ctx, `UPDATE user_sessions SET active = ? WHERE username = ? AND active = ?`, false, username, true)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TouchSession records activity on the active session holding tokenHash
func (db *DB) TouchSession(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := db.exec(ctx, `UPDATE user_sessions SET last_activity = ? WHERE token_hash = ? AND active = ?`,
		at.UTC(), tokenHash, true)
	return err
}
