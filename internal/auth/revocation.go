package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// RevocationCoordinator revokes credentials across refresh tokens and
// sessions.
type RevocationCoordinator struct {
	tokens   RefreshTokenStore
	sessions *SessionRegistry
	log      *slog.Logger
}

func NewRevocationCoordinator(tokens RefreshTokenStore, sessions *SessionRegistry, log *slog.Logger) *RevocationCoordinator {
	return &RevocationCoordinator{tokens: tokens, sessions: sessions, log: log}
}

// LogoutAllDevices deletes every refresh token of username and closes every
// session. Both steps run even when one of them fails.
func (c *RevocationCoordinator) LogoutAllDevices(ctx context.Context, username string) error {
	const op = "auth.RevocationCoordinator.LogoutAllDevices"
	log := c.log.With(slog.String("op", op), slog.String("username", username))

	deleted, tokenErr := c.tokens.DeleteRefreshTokensByUsername(ctx, username)
	closed, sessionErr := c.sessions.LogoutAll(ctx, username)

	if err := errors.Join(tokenErr, sessionErr); err != nil {
		log.Error("revocation incomplete", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("revoked all credentials", slog.Int64("refresh_tokens", deleted), slog.Int64("sessions", closed))
	return nil
}

// Logout is the same operation as LogoutAllDevices
func (c *RevocationCoordinator) Logout(ctx context.Context, username string) error {
	return c.LogoutAllDevices(ctx, username)
}

// LogoutSession closes one session. Refresh tokens are left untouched.
func (c *RevocationCoordinator) LogoutSession(ctx context.Context, sessionID string) error {
	return c.sessions.Logout(ctx, sessionID)
}
