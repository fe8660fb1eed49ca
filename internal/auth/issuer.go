package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yogaflow/attendance/internal/database"
	"github.com/yogaflow/attendance/internal/models"
)

// RefreshTokenTTL is the lifetime of a refresh token
const RefreshTokenTTL = 7 * 24 * time.Hour

// TokenPair is the result of a login or a refresh
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Issuer mints access tokens and stored refresh tokens
type Issuer struct {
	signer     *TokenManager
	tokens     RefreshTokenStore
	users      UserStore
	refreshTTL time.Duration
	log        *slog.Logger
	now        func() time.Time
}

func NewIssuer(signer *TokenManager, tokens RefreshTokenStore, users UserStore, refreshTTL time.Duration, log *slog.Logger) *Issuer {
	if refreshTTL <= 0 {
		refreshTTL = RefreshTokenTTL
	}
	return &Issuer{
		signer:     signer,
		tokens:     tokens,
		users:      users,
		refreshTTL: refreshTTL,
		log:        log,
		now:        time.Now,
	}
}

// Issue signs an access token for user and stores a new refresh token
// bound to the device and origin address.
func (i *Issuer) Issue(ctx context.Context, user *models.User, device, ip string) (*TokenPair, error) {
	const op = "auth.Issuer.Issue"

	access, err := i.signer.Sign(user)
	if err != nil {
		return nil, fmt.Errorf("%s: sign: %w", op, err)
	}

	plain, hash, err := NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := i.now()
	err = i.tokens.CreateRefreshToken(ctx, &models.RefreshToken{
		TokenHash: hash,
		Username:  user.Username,
		ExpiresAt: now.Add(i.refreshTTL),
		CreatedAt: now,
		Device:    device,
		IPAddress: ip,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: plain}, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token is returned unchanged. An expired token is deleted so it cannot be
// presented again.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	const op = "auth.Issuer.Refresh"
	log := i.log.With(slog.String("op", op))

	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	stored, err := i.tokens.GetRefreshTokenByHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if stored.Expired(i.now()) {
		if err := i.tokens.DeleteRefreshToken(ctx, stored.ID); err != nil && !errors.Is(err, database.ErrNotFound) {
			log.Error("failed to delete expired refresh token", slog.String("username", stored.Username), slog.Any("error", err))
		}
		return nil, ErrRefreshTokenExpired
	}

	user, err := i.users.GetUserByUsername(ctx, stored.Username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	access, err := i.signer.Sign(user)
	if err != nil {
		return nil, fmt.Errorf("%s: sign: %w", op, err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}
