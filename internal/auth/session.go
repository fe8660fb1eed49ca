package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yogaflow/attendance/internal/database"
	"github.com/yogaflow/attendance/internal/models"
)

// SessionRegistry records one session per login. Sessions are closed,
// never deleted.
type SessionRegistry struct {
	store SessionStore
	now   func() time.Time
}

func NewSessionRegistry(store SessionStore) *SessionRegistry {
	return &SessionRegistry{store: store, now: time.Now}
}

// Create opens an active session for the access token
func (r *SessionRegistry) Create(ctx context.Context, username, accessToken, device, ip string) (*models.Session, error) {
	now := r.now()
	s := &models.Session{
		Username:     username,
		TokenHash:    HashToken(accessToken),
		Device:       device,
		IPAddress:    ip,
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
	}
	if err := r.store.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("auth.SessionRegistry.Create: %w", err)
	}
	return s, nil
}

func (r *SessionRegistry) Active(ctx context.Context, username string) ([]*models.Session, error) {
	sessions, err := r.store.ListActiveSessions(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("auth.SessionRegistry.Active: %w", err)
	}
	return sessions, nil
}

func (r *SessionRegistry) Get(ctx context.Context, id string) (*models.Session, error) {
	s, err := r.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("auth.SessionRegistry.Get: %w", err)
	}
	return s, nil
}

// Logout closes exactly one session
func (r *SessionRegistry) Logout(ctx context.Context, id string) error {
	if err := r.store.DeactivateSession(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("auth.SessionRegistry.Logout: %w", err)
	}
	return nil
}

// LogoutAll closes every active session of username
func (r *SessionRegistry) LogoutAll(ctx context.Context, username string) (int64, error) {
	n, err := r.store.DeactivateSessionsByUsername(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("auth.SessionRegistry.LogoutAll: %w", err)
	}
	return n, nil
}

// Touch records activity on the session holding accessToken. It is
// informational only; no session expires on idleness.
func (r *SessionRegistry) Touch(ctx context.Context, accessToken string) error {
	return r.store.TouchSession(ctx, HashToken(accessToken), r.now())
}
