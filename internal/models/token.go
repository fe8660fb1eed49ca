package models

import "time"

// RefreshToken is a server-side record of an issued refresh token.
// Only the SHA-256 hash of the opaque value is stored.
type RefreshToken struct {
	ID        string    `json:"id" db:"id"`
	TokenHash string    `json:"-" db:"token_hash"`
	Username  string    `json:"username" db:"username"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	Device    string    `json:"deviceInfo" db:"device_info"`
	IPAddress string    `json:"ipAddress" db:"ip_address"`
}

// Expired reports whether the token is past its expiry at now
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Session records one authenticated login on one device.
// Sessions are closed by clearing Active and are never deleted.
type Session struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	TokenHash    string    `json:"-" db:"token_hash"`
	Device       string    `json:"deviceInfo" db:"device_info"`
	IPAddress    string    `json:"ipAddress" db:"ip_address"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	LastActivity time.Time `json:"lastActivity" db:"last_activity"`
	Active       bool      `json:"active" db:"active"`
}
