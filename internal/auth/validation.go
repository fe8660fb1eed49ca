package auth

import (
	"regexp"
	"strings"

	"github.com/yogaflow/attendance/internal/apperrors"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordBytes = 72
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)

	ErrPasswordTooLong = apperrors.Validation("password must be at most 72 bytes")
)

// ValidateEmail checks if an email is valid
func ValidateEmail(email string) error {
	if len(email) >= 255 || !emailRegex.MatchString(email) {
		return apperrors.Validation("invalid email format")
	}
	return nil
}

// ValidateUsername checks length and allowed characters
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return apperrors.Validation("username must be 3-50 characters of letters, digits, '_', '.' or '-'")
	}
	return nil
}

// ValidatePassword checks if a password is acceptable
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.Validation("password must be at least 8 characters long")
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	if strings.TrimSpace(password) == "" {
		return apperrors.Validation("password must not be blank")
	}
	return nil
}
