package models

import "time"

// Session is a device-level login independent of JWTs.
type Session struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	KeyHash      string    `db:"key_hash" json:"-"`
	IPAddress    string    `db:"ip_address" json:"ip_address"`
	UserAgent    string    `db:"user_agent" json:"user_agent"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	LastActiveAt time.Time `db:"last_active_at" json:"last_active_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// OwnerID implements Ownable.
func (s *Session) OwnerID() (string, bool) {
	if s == nil || s.UserID == "" {
		return "", false
	}
	return s.UserID, true
}

// SessionLookup pairs a state with the session it was computed from.
type SessionLookup struct {
	State   TokenState
	Session *Session
}
