package models

import (
	"time"
)

// Role is the authorization class of an account
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

const (
	MinLevel = 1
	MaxLevel = 3
)

// User represents an account in the system
type User struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Username      string    `json:"username" db:"username"`
	Email         string    `json:"email" db:"email"`
	Phone         string    `json:"phone" db:"phone"`
	PasswordHash  string    `json:"-" db:"password_hash"` // never sent to client
	Role          Role      `json:"role" db:"role"`
	Level         int       `json:"level" db:"level"`
	Approved      bool      `json:"approved" db:"approved"`
	EmailVerified bool      `json:"emailVerified" db:"email_verified"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`

	ResetCodeHash   string     `json:"-" db:"reset_code_hash"`
	ResetCodeExpiry *time.Time `json:"-" db:"reset_code_expiry"`
	ResetAttempts   int        `json:"-" db:"reset_attempts"`
}

// IsAdmin returns true if the user holds the administrator role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// AtMaxLevel returns true if the user cannot advance any further
func (u *User) AtMaxLevel(max int) bool {
	return u.Level >= max
}

// LevelCursor tracks a user's position in the content of their current level.
// It is reset to zero whenever the level advances.
type LevelCursor struct {
	Username     string    `json:"username" db:"username"`
	Level        int       `json:"level" db:"level"`
	CurrentIndex int       `json:"currentIndex" db:"current_index"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
