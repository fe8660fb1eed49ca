package auth

import (
	"github.com/yogaflow/attendance/internal/apperrors"
)

var (
	// ErrUnknownUser and ErrWrongPassword render identically so a caller
	// cannot tell which usernames exist.
	ErrUnknownUser   = apperrors.New(apperrors.KindAuthentication, "invalid credentials")
	ErrWrongPassword = apperrors.New(apperrors.KindAuthentication, "invalid credentials")

	ErrPendingApproval     = apperrors.New(apperrors.KindPendingApproval, "account pending admin approval")
	ErrInvalidRefreshToken = apperrors.New(apperrors.KindAuthentication, "invalid refresh token")
	ErrRefreshTokenExpired = apperrors.New(apperrors.KindTokenExpired, "refresh token expired, please login again")
	ErrUnauthenticated     = apperrors.New(apperrors.KindAuthentication, "authentication required")
	ErrForbidden           = apperrors.New(apperrors.KindForbidden, "access denied")
	ErrUserNotFound        = apperrors.New(apperrors.KindNotFound, "user not found")
	ErrSessionNotFound     = apperrors.New(apperrors.KindNotFound, "session not found")
	ErrInvalidResetCode    = apperrors.New(apperrors.KindValidation, "invalid or expired reset code")
)
