package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yogaflow/attendance/internal/apperrors"
	"github.com/yogaflow/attendance/internal/metrics"
	"github.com/yogaflow/attendance/internal/models"
)

// Principal is the authenticated caller of a request
type Principal struct {
	Username string
	Role     models.Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// CanActFor reports whether the caller may act on username's resources
func (p Principal) CanActFor(username string) bool {
	return p.Username == username || p.IsAdmin()
}

// LoginResult is returned by a successful login
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	Username     string
	Role         models.Role
	Level        int
}

// Service ties credential verification, token issuance, sessions and
// revocation together.
type Service struct {
	verifier   *Verifier
	issuer     *Issuer
	sessions   *SessionRegistry
	revocation *RevocationCoordinator
	metrics    *metrics.Metrics
	log        *slog.Logger
}

func NewService(verifier *Verifier, issuer *Issuer, sessions *SessionRegistry, revocation *RevocationCoordinator, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		verifier:   verifier,
		issuer:     issuer,
		sessions:   sessions,
		revocation: revocation,
		metrics:    m,
		log:        log,
	}
}

// Login verifies credentials, issues a token pair and records a session.
// A failure to record the session does not fail the login.
func (s *Service) Login(ctx context.Context, username, password, device, ip string) (*LoginResult, error) {
	const op = "auth.Service.Login"
	log := s.log.With(slog.String("op", op), slog.String("username", username))

	if username == "" || password == "" {
		s.metrics.LoginAttempt("invalid")
		return nil, apperrors.Validation("username and password are required")
	}

	user, err := s.verifier.Verify(ctx, username, password)
	if err != nil {
		switch {
		case errors.Is(err, ErrPendingApproval):
			s.metrics.LoginAttempt("pending")
		case apperrors.KindOf(err) == apperrors.KindAuthentication:
			s.metrics.LoginAttempt("rejected")
		default:
			s.metrics.LoginAttempt("error")
		}
		return nil, err
	}

	pair, err := s.issuer.Issue(ctx, user, device, ip)
	if err != nil {
		s.metrics.LoginAttempt("error")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Username:     user.Username,
		Role:         user.Role,
		Level:        user.Level,
	}

	session, err := s.sessions.Create(ctx, user.Username, pair.AccessToken, device, ip)
	if err != nil {
		log.Warn("login succeeded without a session record", slog.Any("error", err))
	} else {
		result.SessionID = session.ID
	}

	s.metrics.LoginAttempt("success")
	log.Info("user logged in", slog.String("device", device))
	return result, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := s.issuer.Refresh(ctx, refreshToken)
	switch {
	case err == nil:
		s.metrics.TokenRefresh("success")
	case errors.Is(err, ErrRefreshTokenExpired):
		s.metrics.TokenRefresh("expired")
	case errors.Is(err, ErrInvalidRefreshToken):
		s.metrics.TokenRefresh("invalid")
	default:
		s.metrics.TokenRefresh("error")
	}
	return pair, err
}

// Logout revokes every credential of the caller
func (s *Service) Logout(ctx context.Context, caller Principal) error {
	return s.revocation.Logout(ctx, caller.Username)
}

// LogoutAllDevices revokes every credential of username
func (s *Service) LogoutAllDevices(ctx context.Context, caller Principal, username string) error {
	if !caller.CanActFor(username) {
		return ErrForbidden
	}
	return s.revocation.LogoutAllDevices(ctx, username)
}

// ActiveSessions lists username's open sessions
func (s *Service) ActiveSessions(ctx context.Context, caller Principal, username string) ([]*models.Session, error) {
	if !caller.CanActFor(username) {
		return nil, ErrForbidden
	}
	return s.sessions.Active(ctx, username)
}

// LogoutSession closes one session owned by the caller, or any session for
// an administrator.
func (s *Service) LogoutSession(ctx context.Context, caller Principal, sessionID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !caller.CanActFor(session.Username) {
		return ErrForbidden
	}
	return s.revocation.LogoutSession(ctx, sessionID)
}

// Authenticate turns a bearer access token into a principal
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.issuer.signer.Verify(accessToken)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return Principal{}, apperrors.Wrap(apperrors.KindAuthentication, "access token expired", err)
		}
		return Principal{}, apperrors.Wrap(apperrors.KindAuthentication, "invalid access token", err)
	}

	if err := s.sessions.Touch(ctx, accessToken); err != nil {
		s.log.Debug("failed to record session activity", slog.String("username", claims.Username), slog.Any("error", err))
	}
	return Principal{Username: claims.Username, Role: claims.Role}, nil
}
