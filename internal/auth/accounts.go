package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/yogaflow/attendance/internal/apperrors"
	"github.com/yogaflow/attendance/internal/database"
	"github.com/yogaflow/attendance/internal/models"
)

const (
	// ResetCodeTTL is how long a password reset code stays valid
	ResetCodeTTL = 10 * time.Minute
	// MaxResetAttempts is how many guesses one reset code allows
	MaxResetAttempts = 5

	mailTimeout = 2 * time.Minute

	ForgotPasswordAck = "If the email is registered, a reset code has been sent"
	RegistrationAck   = "Registration successful. Your account is pending admin approval."
)

// Registration is the input of a self-service sign up
type Registration struct {
	Name     string
	Username string
	Email    string
	Phone    string
	Password string
}

// Accounts handles registration, approval and password recovery
type Accounts struct {
	users        UserStore
	hasher       PasswordHasher
	revocation   *RevocationCoordinator
	notifier     Notifier
	mailer       Mailer
	resetCodeTTL time.Duration
	log          *slog.Logger
	now          func() time.Time
	mail         sync.WaitGroup
}

// NewAccounts creates the account service. mailer may be nil.
func NewAccounts(users UserStore, hasher PasswordHasher, revocation *RevocationCoordinator, notifier Notifier, mailer Mailer, resetCodeTTL time.Duration, log *slog.Logger) *Accounts {
	if resetCodeTTL <= 0 {
		resetCodeTTL = ResetCodeTTL
	}
	return &Accounts{
		users:        users,
		hasher:       hasher,
		revocation:   revocation,
		notifier:     notifier,
		mailer:       mailer,
		resetCodeTTL: resetCodeTTL,
		log:          log,
		now:          time.Now,
	}
}

// Register creates an unapproved level 1 user and tells the administrators
func (a *Accounts) Register(ctx context.Context, reg Registration) (*models.User, error) {
	const op = "auth.Accounts.Register"

	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	reg.Name = strings.TrimSpace(reg.Name)

	if reg.Name == "" {
		return nil, apperrors.Validation("name is required")
	}
	if err := ValidateUsername(reg.Username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(reg.Email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(reg.Password); err != nil {
		return nil, err
	}

	if err := a.ensureAvailable(ctx, reg.Username, reg.Email); err != nil {
		return nil, err
	}

	digest, err := a.hasher.Hash(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		Name:         reg.Name,
		Username:     reg.Username,
		Email:        reg.Email,
		Phone:        reg.Phone,
		PasswordHash: digest,
		Role:         models.RoleUser,
		Level:        models.MinLevel,
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return nil, apperrors.Wrap(apperrors.KindValidation, "username or email already taken", err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.notifyAdmins(ctx, user)
	a.log.Info("user registered", slog.String("op", op), slog.String("username", user.Username))
	return user, nil
}

func (a *Accounts) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := a.users.GetUserByUsername(ctx, username); err == nil {
		return apperrors.Validation("username already taken")
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}
	if _, err := a.users.GetUserByEmail(ctx, email); err == nil {
		return apperrors.Validation("email already registered")
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}
	return nil
}

func (a *Accounts) notifyAdmins(ctx context.Context, user *models.User) {
	admins, err := a.users.ListUsersByRole(ctx, models.RoleAdmin)
	if err != nil {
		a.log.Warn("could not list admins for registration notice", slog.Any("error", err))
		return
	}
	body := fmt.Sprintf("%s (%s) registered and is waiting for approval", user.Name, user.Username)
	for _, admin := range admins {
		a.notifier.Notify(ctx, admin.Username, "New User Registration", body, models.KindRegistration)
	}
}

// PendingUsers lists accounts waiting for approval
func (a *Accounts) PendingUsers(ctx context.Context) ([]*models.User, error) {
	return a.users.ListPendingUsers(ctx)
}

// Users lists every non-admin account
func (a *Accounts) Users(ctx context.Context) ([]*models.User, error) {
	return a.users.ListUsersByRole(ctx, models.RoleUser)
}

// Approve opens the approval gate and tells the user
func (a *Accounts) Approve(ctx context.Context, username string) error {
	const op = "auth.Accounts.Approve"
	log := a.log.With(slog.String("op", op), slog.String("username", username))

	user, err := a.lookup(ctx, username)
	if err != nil {
		return err
	}
	if err := a.users.ApproveUser(ctx, username); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.notifier.Notify(ctx, username, "Account Approved",
		"Your account has been approved. You can now log in.", models.KindApproval)
	if a.mailer != nil && user.Email != "" {
		a.deliver(ctx, log, "approval", func(ctx context.Context) error {
			return a.mailer.SendApproval(ctx, user.Email, user.Name)
		})
	}

	log.Info("user approved")
	return nil
}

// Reject removes a registration that has not been approved
func (a *Accounts) Reject(ctx context.Context, username string) error {
	user, err := a.lookup(ctx, username)
	if err != nil {
		return err
	}
	if user.Approved {
		return apperrors.Validation("user is already approved")
	}
	return a.remove(ctx, username)
}

// Delete removes a non-admin account
func (a *Accounts) Delete(ctx context.Context, username string) error {
	user, err := a.lookup(ctx, username)
	if err != nil {
		return err
	}
	if user.IsAdmin() {
		return apperrors.New(apperrors.KindForbidden, "administrators cannot be deleted")
	}
	return a.remove(ctx, username)
}

func (a *Accounts) remove(ctx context.Context, username string) error {
	if err := a.users.DeleteUser(ctx, username); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("auth.Accounts.remove: %w", err)
	}
	a.log.Info("user deleted", slog.String("username", username))
	return nil
}

func (a *Accounts) lookup(ctx context.Context, username string) (*models.User, error) {
	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ForgotPassword stores a one-time reset code and mails it. The result is
// the same whether or not the email belongs to an account.
func (a *Accounts) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.Accounts.ForgotPassword"
	log := a.log.With(slog.String("op", op))

	email = strings.ToLower(strings.TrimSpace(email))
	if err := ValidateEmail(email); err != nil {
		return err
	}

	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	code, err := newResetCode()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := a.users.SetResetCode(ctx, user.Username, HashToken(code), a.now().Add(a.resetCodeTTL)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if a.mailer == nil {
		log.Warn("no mailer configured, reset code not delivered", slog.String("username", user.Username))
		return nil
	}
	a.deliver(ctx, log.With(slog.String("username", user.Username)), "reset code", func(ctx context.Context) error {
		return a.mailer.SendPasswordResetCode(ctx, user.Email, code, a.resetCodeTTL)
	})
	return nil
}

// deliver sends a mail in the background. The request that triggered it
// never waits on the SMTP server.
func (a *Accounts) deliver(ctx context.Context, log *slog.Logger, what string, send func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
	a.mail.Add(1)
	go func() {
		defer a.mail.Done()
		defer cancel()
		if err := send(ctx); err != nil {
			log.Warn(what+" mail not sent", slog.Any("error", err))
		}
	}()
}

// Wait blocks until every mail started so far has been handed off or failed
func (a *Accounts) Wait() {
	a.mail.Wait()
}

// ResetPassword replaces the password when code matches, then revokes every
// credential of the account.
func (a *Accounts) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	const op = "auth.Accounts.ResetPassword"

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := a.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrInvalidResetCode
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if user.ResetCodeHash == "" || user.ResetCodeExpiry == nil || !a.now().Before(*user.ResetCodeExpiry) {
		return ErrInvalidResetCode
	}

	allowed, err := a.users.ConsumeResetAttempt(ctx, user.Username, MaxResetAttempts)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !allowed {
		return ErrInvalidResetCode
	}
	if subtle.ConstantTimeCompare([]byte(HashToken(code)), []byte(user.ResetCodeHash)) != 1 {
		if user.ResetAttempts+1 >= MaxResetAttempts {
			if err := a.users.ClearResetCode(ctx, user.Username); err != nil {
				a.log.Warn("could not clear exhausted reset code", slog.String("op", op), slog.Any("error", err))
			}
			a.log.Warn("reset code exhausted", slog.String("op", op), slog.String("username", user.Username))
		}
		return ErrInvalidResetCode
	}

	digest, err := a.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := a.users.UpdatePassword(ctx, user.Username, digest); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return a.revocation.LogoutAllDevices(ctx, user.Username)
}

// CreateAdmin stores an approved administrator account
func (a *Accounts) CreateAdmin(ctx context.Context, name, username, email, password string) (*models.User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	digest, err := a.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Name:          name,
		Username:      username,
		Email:         strings.ToLower(email),
		PasswordHash:  digest,
		Role:          models.RoleAdmin,
		Level:         models.MinLevel,
		Approved:      true,
		EmailVerified: true,
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func newResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
