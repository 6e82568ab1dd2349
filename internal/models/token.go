package models

import "time"

// AuthTokenType enumerates persisted credential kinds.
type AuthTokenType string

const (
	AuthTokenAccess  AuthTokenType = "access"
	AuthTokenRefresh AuthTokenType = "refresh"
)

// AuthToken is an issued credential. Refresh material is a bcrypt hash and
// access material, when persisted for audit, is a BLAKE3 digest; raw values are
// never stored.
type AuthToken struct {
	ID            string        `db:"id" json:"id"`
	UserID        string        `db:"user_id" json:"user_id"`
	Type          AuthTokenType `db:"token_type" json:"token_type"`
	TokenPrefix   string        `db:"token_prefix" json:"-"`
	TokenHash     string        `db:"token_hash" json:"-"`
	ExpiresAt     time.Time     `db:"expires_at" json:"expires_at"`
	IsBlacklisted bool          `db:"is_blacklisted" json:"is_blacklisted"`
	BlacklistedAt *time.Time    `db:"blacklisted_at" json:"blacklisted_at,omitempty"`
	IPAddress     string        `db:"ip_address" json:"ip_address"`
	UserAgent     string        `db:"user_agent" json:"user_agent"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// OneTimeTokenKind selects the single-use token family.
type OneTimeTokenKind string

const (
	OneTimeEmailVerification OneTimeTokenKind = "email_verification"
	OneTimePasswordReset     OneTimeTokenKind = "password_reset"
)

// OneTimeToken is a single-use token (email verification or password reset).
type OneTimeToken struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Kind      OneTimeTokenKind `db:"-" json:"kind"`
	TokenHash string           `db:"token_hash" json:"-"`
	ExpiresAt time.Time        `db:"expires_at" json:"expires_at"`
	IsUsed    bool             `db:"is_used" json:"is_used"`
	UsedAt    *time.Time       `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// TokenState is the outcome of a token lookup.
type TokenState int

const (
	TokenNotFound TokenState = iota
	TokenExpired
	TokenValid
)

func (s TokenState) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	default:
		return "not_found"
	}
}

// OneTimeLookup pairs a state with the record it was computed from. Token is
// nil when State is TokenNotFound.
type OneTimeLookup struct {
	State TokenState
	Token *OneTimeToken
}

// Classify derives the state of t at now. Used and expired are both terminal.
func (t *OneTimeToken) Classify(now time.Time) TokenState {
	if t == nil {
		return TokenNotFound
	}
	if t.IsUsed || !now.Before(t.ExpiresAt) {
		return TokenExpired
	}
	return TokenValid
}
