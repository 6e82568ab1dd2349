package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess is the only "type" claim accepted on bearer tokens.
const TokenTypeAccess = "access"

// AccessClaims is the JWT payload for access tokens.
type AccessClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	IsStaff     bool      `json:"is_staff"`
	IsSuperuser bool      `json:"is_superuser"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Elevated reports whether the principal bypasses access rules.
func (p *Principal) Elevated() bool {
	return p != nil && (p.IsStaff || p.IsSuperuser)
}

// RequestMeta carries audit fields of the originating request.
type RequestMeta struct {
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Username        string `json:"username" validate:"required,min=3,max=150,alphanum"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"max=150"`
	LastName        string `json:"last_name" validate:"max=150"`
	RequestMeta
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
	RequestMeta
}

// TokenPair is what login, registration and refresh hand back.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	TokenPair
	User       UserInfo `json:"user"`
	SessionKey string   `json:"session_key,omitempty"`
}

// RefreshTokenRequest exchanges a refresh token for a new pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	RequestMeta
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72,nefield=OldPassword"`
	RequestMeta
}

// ResetPasswordRequest payload for initiating reset flow.
type ResetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
	RequestMeta
}

// ConfirmResetPasswordRequest completes reset flow.
type ConfirmResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
	RequestMeta
}

// VerifyEmailRequest confirms ownership of the registered address.
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Username    string   `json:"username"`
	FullName    string   `json:"full_name"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperuser bool     `json:"is_superuser"`
	IsVerified  bool     `json:"is_verified"`
	Roles       []string `json:"roles"`
}

// NewUserInfo projects a user and its role names.
func NewUserInfo(u *User, roles []string) UserInfo {
	if roles == nil {
		roles = []string{}
	}
	return UserInfo{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		FullName:    u.FullName(),
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		IsVerified:  u.IsVerified,
		Roles:       roles,
	}
}

// MessageResponse is the generic body for flows that must not leak account existence.
type MessageResponse struct {
	Message string `json:"message"`
}
