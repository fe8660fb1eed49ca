package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yogaflow/attendance/internal/models"
)

// CreateRefreshToken stores a refresh token record
func (db *DB) CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = orNow(t.CreatedAt)

	_, err := db.exec(ctx, `
		INSERT INTO refresh_tokens (id, token_hash, username, expires_at, created_at, device_info, ip_address)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.Username, t.ExpiresAt.UTC(), t.CreatedAt, t.Device, t.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", mapError(err))
	}
	return nil
}

// GetRefreshTokenByHash looks a refresh token up by the hash of its value
func (db *DB) GetRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	err := db.queryRow(ctx, `
		SELECT id, token_hash, username, expires_at, created_at, device_info, ip_address
		FROM refresh_tokens WHERE token_hash = ?`, hash,
	).Scan(&t.ID, &t.TokenHash, &t.Username, &t.ExpiresAt, &t.CreatedAt, &t.Device, &t.IPAddress)
	if err != nil {
		return nil, mapError(err)
	}
	return &t, nil
}

// DeleteRefreshToken removes one refresh token
func (db *DB) DeleteRefreshToken(ctx context.Context, id string) error {
	res, err := db.exec(ctx, `DELETE FROM refresh_tokens WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteRefreshTokensByUsername removes every refresh token of a user
func (db *DB) DeleteRefreshTokensByUsername(ctx context.Context, username string) (int64, error) {
	res, err := db.exec(ctx, `DELETE FROM refresh_tokens WHERE username = ?`, username)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredRefreshTokens removes tokens whose expiry is not after now
func (db *DB) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountRefreshTokens counts the stored refresh tokens of a user
func (db *DB) CountRefreshTokens(ctx context.Context, username string) (int, error) {
	var n int
	err := db.queryRow(ctx, `SELECT COUNT(*) FROM refresh_tokens WHERE username = ?`, username).Scan(&n)
	return n, err
}
