package models

import "time"

// Login failure reasons recorded on LoginAttempt rows.
const (
	LoginReasonInvalidCredentials = "invalid_credentials"
	LoginReasonInactiveAccount    = "inactive_account"
	LoginReasonIPBlocked          = "ip_blocked"
)

// LoginAttempt is an immutable audit row for one login attempt.
type LoginAttempt struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	IPAddress     string    `db:"ip_address" json:"ip_address"`
	UserAgent     string    `db:"user_agent" json:"user_agent"`
	Success       bool      `db:"success" json:"success"`
	FailureReason string    `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// LoginAttemptFilter narrows audit exports.
type LoginAttemptFilter struct {
	IPAddress string
	Email     string
	Success   *bool
	From      *time.Time
	To        *time.Time
	Limit     int
}
