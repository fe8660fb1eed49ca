package auth

import (
	"context"
	"time"

	"github.com/yogaflow/attendance/internal/models"
)

// UserStore reads and mutates accounts. *database.DB satisfies it.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsersByRole(ctx context.Context, role models.Role) ([]*models.User, error)
	ListPendingUsers(ctx context.Context) ([]*models.User, error)
	ApproveUser(ctx context.Context, username string) error
	UpdatePassword(ctx context.Context, username, hash string) error
	SetResetCode(ctx context.Context, username, codeHash string, expiry time.Time) error
	ConsumeResetAttempt(ctx context.Context, username string, max int) (bool, error)
	ClearResetCode(ctx context.Context, username string) error
	DeleteUser(ctx context.Context, username string) error
}

// RefreshTokenStore persists refresh token records
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, id string) error
	DeleteRefreshTokensByUsername(ctx context.Context, username string) (int64, error)
}

// SessionStore persists session records
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListActiveSessions(ctx context.Context, username string) ([]*models.Session, error)
	DeactivateSession(ctx context.Context, id string) error
	DeactivateSessionsByUsername(ctx context.Context, username string) (int64, error)
	TouchSession(ctx context.Context, tokenHash string, at time.Time) error
}

// Notifier delivers fire-and-forget notifications
type Notifier interface {
	Notify(ctx context.Context, target, title, body, kind string)
}

// Mailer sends account mails
type Mailer interface {
	SendPasswordResetCode(ctx context.Context, to, code string, ttl time.Duration) error
	SendApproval(ctx context.Context, to, name string) error
}
