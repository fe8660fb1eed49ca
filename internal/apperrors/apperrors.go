// Package apperrors defines the error taxonomy shared by the domain packages
// and translated into HTTP statuses at the API boundary.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the caller
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindForbidden
	KindPendingApproval
	KindDuplicateAttendance
	KindNotFound
	KindTokenExpired
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindInternal:            "INTERNAL",
	KindValidation:          "VALIDATION_ERROR",
	KindAuthentication:      "AUTHENTICATION_FAILED",
	KindForbidden:           "FORBIDDEN",
	KindPendingApproval:     "PENDING_APPROVAL",
	KindDuplicateAttendance: "DUPLICATE_ATTENDANCE",
	KindNotFound:            "NOT_FOUND",
	KindTokenExpired:        "TOKEN_EXPIRED",
	KindRateLimited:         "RATE_LIMITED",
}

var kindStatus = map[Kind]int{
	KindInternal:            http.StatusInternalServerError,
	KindValidation:          http.StatusBadRequest,
	KindAuthentication:      http.StatusUnauthorized,
	KindForbidden:           http.StatusForbidden,
	KindPendingApproval:     http.StatusLocked,
	KindDuplicateAttendance: http.StatusConflict,
	KindNotFound:            http.StatusNotFound,
	KindTokenExpired:        http.StatusGone,
	KindRateLimited:         http.StatusTooManyRequests,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindInternal]
}

// HTTPStatus returns the response status for errors of this kind
func (k Kind) HTTPStatus() int {
	if status, ok := kindStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is a classified error. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the stable machine-readable code of the error
func (e *Error) Code() string {
	return e.Kind.String()
}

// New creates a classified error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err, keeping it in the chain for errors.Is
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation is shorthand for a KindValidation error
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// As returns the first classified error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal when it is unclassified
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
