package models

import "time"

// Notification kinds
const (
	KindRegistration = "REGISTRATION"
	KindApproval     = "APPROVAL"
	KindLevelUp      = "LEVEL_UP"
	KindReminder     = "REMINDER"
	KindInfo         = "INFO"
)

// Notification is an inbox entry for a user
type Notification struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	Kind      string    `json:"type" db:"kind"`
	Read      bool      `json:"read" db:"is_read"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
