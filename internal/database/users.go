package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yogaflow/attendance/internal/models"
)

const userColumns = `id, name, username, email, phone, password_hash, role, level, approved,
	email_verified, reset_code_hash, reset_code_expiry, reset_attempts, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u      models.User
		role   string
		expiry sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Username,
		&u.Email,
		&u.Phone,
		&u.PasswordHash,
		&role,
		&u.Level,
		&u.Approved,
		&u.EmailVerified,
		&u.ResetCodeHash,
		&expiry,
		&u.ResetAttempts,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if expiry.Valid {
		t := expiry.Time
		u.ResetCodeExpiry = &t
	}
	return &u, nil
}

func (db *DB) queryUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser stores a new user. Username and email must be unique.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Level == 0 {
		u.Level = models.MinLevel
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	u.CreatedAt = orNow(u.CreatedAt)
	u.UpdatedAt = u.CreatedAt

	_, err := db.exec(ctx, `
		INSERT INTO users (id, name, username, email, phone, password_hash, role, level,
			approved, email_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Username, u.Email, u.Phone, u.PasswordHash, string(u.Role), u.Level,
		u.Approved, u.EmailVerified, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Username, mapError(err))
	}
	return nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(db.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email address
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(db.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

// ListUsersByRole returns every user holding role, oldest first
func (db *DB) ListUsersByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	return db.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY created_at, username`, string(role))
}

// ListPendingUsers returns users waiting for approval
func (db *DB) ListPendingUsers(ctx context.Context) ([]*models.User, error) {
	return db.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE approved = ? ORDER BY created_at, username`, false)
}

// ListUsersBelowLevel returns non-admin users whose level is below max
func (db *DB) ListUsersBelowLevel(ctx context.Context, max int) ([]*models.User, error) {
	return db.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE role <> ? AND level < ? ORDER BY username`,
		string(models.RoleAdmin), max)
}

// ApproveUser opens the approval gate of a user
func (db *DB) ApproveUser(ctx context.Context, username string) error {
	res, err := db.exec(ctx, `UPDATE users SET approved = ?, updated_at = ? WHERE username = ?`, true, now(), username)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// UpdatePassword replaces the password digest and clears any reset code
func (db *DB) UpdatePassword(ctx context.Context, username, hash string) error {
	res, err := db.exec(ctx, `
		UPDATE users SET password_hash = ?, reset_code_hash = '', reset_code_expiry = NULL, reset_attempts = 0, updated_at = ?
		WHERE username = ?`,
		hash, now(), username,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetResetCode stores the hash of a password reset code and its expiry and
// starts a fresh attempt count
func (db *DB) SetResetCode(ctx context.Context, username, codeHash string, expiry time.Time) error {
	res, err := db.exec(ctx, `UPDATE users SET reset_code_hash = ?, reset_code_expiry = ?, reset_attempts = 0, updated_at = ? WHERE username = ?`,
		codeHash, expiry.UTC(), now(), username)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ConsumeResetAttempt counts one guess against the user's reset code. It
// reports false once max guesses were used or when no code is set, so a
// guess is counted before it is checked even under concurrent requests.
func (db *DB) ConsumeResetAttempt(ctx context.Context, username string, max int) (bool, error) {
	res, err := db.exec(ctx, `
		UPDATE users SET reset_attempts = reset_attempts + 1, updated_at = ?
		WHERE username = ? AND reset_code_hash <> '' AND reset_attempts < ?`,
		now(), username, max,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClearResetCode drops any pending reset code
func (db *DB) ClearResetCode(ctx context.Context, username string) error {
	_, err := db.exec(ctx, `UPDATE users SET reset_code_hash = '', reset_code_expiry = NULL, updated_at = ? WHERE username = ?`,
		now(), username)
	return err
}

// AdvanceLevel moves a user from level from to level to. It only succeeds
// while the stored level still equals from, so concurrent evaluations of the
// same user advance it at most once.
func (db *DB) AdvanceLevel(ctx context.Context, username string, from, to int) (bool, error) {
	res, err := db.exec(ctx, `UPDATE users SET level = ?, updated_at = ? WHERE username = ? AND level = ?`,
		to, now(), username, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteUser removes a user with their attendance, progress, tokens and
// notifications. Sessions are closed but kept as an audit trail.
func (db *DB) DeleteUser(ctx context.Context, username string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, db.rebind(`DELETE FROM users WHERE username = ?`), username)
		if err != nil {
			return err
		}
		if err := requireAffected(res); err != nil {
			return err
		}

		for _, stmt := range []string{
			`DELETE FROM attendance WHERE username = ?`,
			`DELETE FROM daily_progress WHERE username = ?`,
			`DELETE FROM level_cursors WHERE username = ?`,
			`DELETE FROM refresh_tokens WHERE username = ?`,
			`DELETE FROM notifications WHERE username = ?`,
		} {
			if _, err := tx.ExecContext(ctx, db.rebind(stmt), username); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, db.rebind(`UPDATE user_sessions SET active = ? WHERE username = ?`), false, username)
		return err
	})
}

// ResetLevelCursor sets the user's content cursor to the start of level
func (db *DB) ResetLevelCursor(ctx context.Context, username string, level int) error {
	_, err := db.exec(ctx, `
		INSERT INTO level_cursors (username, level, current_index, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (username) DO UPDATE SET level = excluded.level, current_index = 0, updated_at = excluded.updated_at`,
		username, level, now(),
	)
	return err
}

// GetLevelCursor returns the user's content cursor
func (db *DB) GetLevelCursor(ctx context.Context, username string) (*models.LevelCursor, error) {
	var c models.LevelCursor
	err := db.queryRow(ctx, `SELECT username, level, current_index, updated_at FROM level_cursors WHERE username = ?`, username).
		Scan(&c.Username, &c.Level, &c.CurrentIndex, &c.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}
