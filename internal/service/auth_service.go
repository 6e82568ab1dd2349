package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/pkg/database"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
	"github.com/noah-isme/bookhub-api/pkg/secure"
)

// genericResetMessage is returned for every reset request so the response
// never reveals whether the address is registered.
const genericResetMessage = "if the address is registered, a reset link has been sent"

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateWithRole(ctx context.Context, user *models.User, roleName string) (bool, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	MarkVerified(ctx context.Context, id string, ts time.Time) error
}

type oneTimeTokenRepository interface {
	Create(ctx context.Context, token *models.OneTimeToken) error
	Lookup(ctx context.Context, kind models.OneTimeTokenKind, hash string, now time.Time) (models.OneTimeLookup, error)
	Consume(ctx context.Context, kind models.OneTimeTokenKind, id string, now time.Time) (bool, error)
	InvalidateForUser(ctx context.Context, kind models.OneTimeTokenKind, userID string, now time.Time) error
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
	VerifyDummy(password string)
	NeedsRehash(hash string) bool
}

// LockoutError carries how long a blocked IP has to wait.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("login blocked for %s", e.RetryAfter.Round(time.Second))
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	DefaultRole      string
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
}

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Users       authUserRepository
	Roles       userRoleLister
	OneTime     oneTimeTokenRepository
	Credentials passwordHasher
	Tokens      *TokenIssuer
	Guard       *LoginGuard
	Sessions    *SessionService
	Notifier    Notifier
	Audit       auditWriter
}

// AuthService provides authentication use cases.
type AuthService struct {
	AuthDeps
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(deps AuthDeps, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.DefaultRole == "" {
		config.DefaultRole = models.RoleCustomer
	}
	if config.VerificationTTL <= 0 {
		config.VerificationTTL = 24 * time.Hour
	}
	if config.PasswordResetTTL <= 0 {
		config.PasswordResetTTL = time.Hour
	}
	return &AuthService{
		AuthDeps:  deps,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account with the default role, issues an email
// verification token and logs the new user in.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	email := normalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)

	if _, err := s.Users.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email or username already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check email")
	}
	if _, err := s.Users.FindByUsername(ctx, username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email or username already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check username")
	}

	hash, err := s.Credentials.Hash(req.Password)
	if err != nil {
		if IsPasswordTooLong(err) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "password is too long")
		}
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		IsActive:     true,
	}
	assigned, err := s.Users.CreateWithRole(ctx, user, s.config.DefaultRole)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email or username already registered")
		}
		return nil, appErrors.Internal(err, "failed to create user")
	}
	if !assigned {
		s.logger.Warn("default role missing, user falls back to guest", zap.String("role", s.config.DefaultRole), zap.String("user_id", user.ID))
	}

	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Warn("failed to issue verification token", zap.String("user_id", user.ID), zap.Error(err))
	}

	pair, err := s.Tokens.IssuePair(ctx, user, req.RequestMeta)
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, s.Audit, s.logger, models.Actor{UserID: user.ID, IP: req.IP, UserAgent: req.UserAgent},
		models.AuditActionRegister, "users", user.ID, map[string]string{"email": user.Email})

	return &models.LoginResponse{TokenPair: *pair, User: s.userInfo(ctx, user)}, nil
}

// Login authenticates a user and returns issued tokens. The guard is checked
// before any password work; a blocked IP never reaches the hash compare.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	email := normalizeEmail(req.Email)
	attempt := &models.LoginAttempt{Email: email, IPAddress: req.IP, UserAgent: req.UserAgent}

	status, err := s.Guard.IsBlocked(ctx, req.IP)
	if err != nil {
		return nil, err
	}
	if status.Blocked {
		attempt.FailureReason = models.LoginReasonIPBlocked
		s.recordAttempt(ctx, attempt)
		s.logger.Warn("login blocked", zap.String("ip", req.IP), zap.Int("failures", status.Failures))
		return nil, appErrors.Wrap(&LockoutError{RetryAfter: status.RetryAfter}, appErrors.ErrRateLimited.Code, appErrors.ErrRateLimited.Status, appErrors.ErrRateLimited.Message)
	}

	user, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to fetch user")
		}
		s.Credentials.VerifyDummy(req.Password)
		attempt.FailureReason = models.LoginReasonInvalidCredentials
		s.recordAttempt(ctx, attempt)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if !s.Credentials.Verify(req.Password, user.PasswordHash) {
		attempt.FailureReason = models.LoginReasonInvalidCredentials
		s.recordAttempt(ctx, attempt)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	if !user.Alive() {
		attempt.FailureReason = models.LoginReasonInactiveAccount
		s.recordAttempt(ctx, attempt)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	pair, err := s.Tokens.IssuePair(ctx, user, req.RequestMeta)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.Users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	if s.Credentials.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user.ID, req.Password)
	}
	attempt.Success = true
	s.recordAttempt(ctx, attempt)

	resp := &models.LoginResponse{TokenPair: *pair, User: s.userInfo(ctx, user)}
	if req.RememberMe && s.Sessions != nil {
		key, _, err := s.Sessions.Create(ctx, user.ID, req.RequestMeta)
		if err != nil {
			s.logger.Warn("failed to create session", zap.String("user_id", user.ID), zap.Error(err))
		} else {
			resp.SessionKey = key
		}
	}
	return resp, nil
}

// Refresh rotates a refresh token into a new pair.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}
	return s.Tokens.Redeem(ctx, strings.TrimSpace(req.RefreshToken), req.RequestMeta)
}

// Logout revokes every token and session of the user.
func (s *AuthService) Logout(ctx context.Context, userID string, meta models.RequestMeta) error {
	if err := s.revokeEverywhere(ctx, userID); err != nil {
		return err
	}
	recordAudit(ctx, s.Audit, s.logger, models.Actor{UserID: userID, IP: meta.IP, UserAgent: meta.UserAgent},
		models.AuditActionLogout, "auth", userID, nil)
	return nil
}

// ChangePassword verifies the current password, stores the new one and
// forces re-login everywhere. The caller receives a fresh pair.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "user not found", "failed to load user")
	}
	if !s.Credentials.Verify(req.OldPassword, user.PasswordHash) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "current password is incorrect")
	}
	if err := s.setPassword(ctx, user, req.NewPassword); err != nil {
		return nil, err
	}
	if err := s.revokeEverywhere(ctx, user.ID); err != nil {
		return nil, err
	}

	s.notify(ctx, AuthEvent{Type: EventPasswordChanged, UserID: user.ID, Email: user.Email})
	recordAudit(ctx, s.Audit, s.logger, models.Actor{UserID: user.ID, IP: req.IP, UserAgent: req.UserAgent},
		models.AuditActionPasswordChange, "users", user.ID, nil)

	return s.Tokens.IssuePair(ctx, user, req.RequestMeta)
}

// RequestPasswordReset issues a reset token when the address belongs to a
// live account. The response is identical either way.
func (s *AuthService) RequestPasswordReset(ctx context.Context, req models.ResetPasswordRequest) (*models.MessageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}
	generic := &models.MessageResponse{Message: genericResetMessage}

	user, err := s.Users.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return generic, nil
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	if !user.Alive() {
		return generic, nil
	}

	raw, expiresAt, err := s.issueOneTime(ctx, models.OneTimePasswordReset, user.ID, s.config.PasswordResetTTL)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, AuthEvent{Type: EventPasswordResetRequested, UserID: user.ID, Email: user.Email, Token: raw, ExpiresAt: expiresAt})
	return generic, nil
}

// ConfirmPasswordReset consumes a reset token, sets the new password and
// revokes every token and session of the user.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, req models.ConfirmResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}
	token, err := s.consumeOneTime(ctx, models.OneTimePasswordReset, req.Token)
	if err != nil {
		return err
	}
	user, err := s.Users.FindByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return appErrors.Internal(err, "failed to load user")
	}
	if !user.Alive() {
		return appErrors.Clone(appErrors.ErrInvalidToken, "")
	}
	if err := s.setPassword(ctx, user, req.NewPassword); err != nil {
		return err
	}
	if err := s.revokeEverywhere(ctx, user.ID); err != nil {
		return err
	}

	s.notify(ctx, AuthEvent{Type: EventPasswordChanged, UserID: user.ID, Email: user.Email})
	recordAudit(ctx, s.Audit, s.logger, models.Actor{UserID: user.ID, IP: req.IP, UserAgent: req.UserAgent},
		models.AuditActionPasswordReset, "users", user.ID, nil)
	return nil
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *AuthService) VerifyEmail(ctx context.Context, req models.VerifyEmailRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}
	token, err := s.consumeOneTime(ctx, models.OneTimeEmailVerification, req.Token)
	if err != nil {
		return err
	}
	if err := s.Users.MarkVerified(ctx, token.UserID, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return appErrors.Internal(err, "failed to verify email")
	}
	return nil
}

// ResendVerification replaces any outstanding verification token.
func (s *AuthService) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return notFoundOr(err, "user not found", "failed to load user")
	}
	if user.IsVerified {
		return appErrors.Clone(appErrors.ErrConflict, "email already verified")
	}
	return s.sendVerification(ctx, user)
}

// Me returns the profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "user not found", "failed to load user")
	}
	info := s.userInfo(ctx, user)
	return &info, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *models.User) error {
	raw, expiresAt, err := s.issueOneTime(ctx, models.OneTimeEmailVerification, user.ID, s.config.VerificationTTL)
	if err != nil {
		return err
	}
	s.notify(ctx, AuthEvent{Type: EventEmailVerificationRequested, UserID: user.ID, Email: user.Email, Token: raw, ExpiresAt: expiresAt})
	return nil
}

// issueOneTime invalidates older tokens of the same kind and stores a new one.
func (s *AuthService) issueOneTime(ctx context.Context, kind models.OneTimeTokenKind, userID string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	if err := s.OneTime.InvalidateForUser(ctx, kind, userID, now); err != nil {
		return "", time.Time{}, appErrors.Internal(err, "failed to invalidate previous tokens")
	}
	raw, err := secure.RandomToken(secure.TokenBytes)
	if err != nil {
		return "", time.Time{}, appErrors.Internal(err, "failed to generate token")
	}
	token := &models.OneTimeToken{
		UserID:    userID,
		Kind:      kind,
		TokenHash: secure.Digest(raw),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.OneTime.Create(ctx, token); err != nil {
		return "", time.Time{}, appErrors.Internal(err, "failed to store token")
	}
	return raw, token.ExpiresAt, nil
}

// consumeOneTime resolves raw and marks it used. Missing, expired, used and
// concurrently consumed tokens all yield ErrInvalidToken.
func (s *AuthService) consumeOneTime(ctx context.Context, kind models.OneTimeTokenKind, raw string) (*models.OneTimeToken, error) {
	now := s.now()
	lookup, err := s.OneTime.Lookup(ctx, kind, secure.Digest(strings.TrimSpace(raw)), now)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load token")
	}
	switch lookup.State {
	case models.TokenValid:
	case models.TokenExpired:
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "token has expired or was already used")
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
	}
	ok, err := s.OneTime.Consume(ctx, kind, lookup.Token.ID, now)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to consume token")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "token has expired or was already used")
	}
	return lookup.Token, nil
}

func (s *AuthService) setPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := s.Credentials.Hash(password)
	if err != nil {
		if IsPasswordTooLong(err) {
			return appErrors.Clone(appErrors.ErrValidation, "password is too long")
		}
		return appErrors.Internal(err, "failed to hash password")
	}
	if err := s.Users.UpdatePassword(ctx, user.ID, hash, s.now()); err != nil {
		return appErrors.Internal(err, "failed to update password")
	}
	user.PasswordHash = hash
	return nil
}

func (s *AuthService) rehash(ctx context.Context, userID, password string) {
	hash, err := s.Credentials.Hash(password)
	if err == nil {
		err = s.Users.UpdatePassword(ctx, userID, hash, s.now())
	}
	if err != nil {
		s.logger.Warn("failed to upgrade password hash", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *AuthService) revokeEverywhere(ctx context.Context, userID string) error {
	if _, err := s.Tokens.BlacklistAll(ctx, userID); err != nil {
		return err
	}
	if s.Sessions != nil {
		if _, err := s.Sessions.RevokeAll(ctx, userID); err != nil {
			s.logger.Warn("failed to revoke sessions", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

func (s *AuthService) recordAttempt(ctx context.Context, attempt *models.LoginAttempt) {
	if err := s.Guard.Record(ctx, attempt); err != nil {
		s.logger.Warn("failed to record login attempt", zap.String("ip", attempt.IPAddress), zap.Error(err))
	}
}

func (s *AuthService) notify(ctx context.Context, event AuthEvent) {
	if s.Notifier != nil {
		s.Notifier.Notify(ctx, event)
	}
}

func (s *AuthService) userInfo(ctx context.Context, user *models.User) models.UserInfo {
	var names []string
	if s.Roles != nil {
		roles, err := s.Roles.ListRolesForUser(ctx, user.ID)
		if err != nil {
			s.logger.Warn("failed to load user roles", zap.String("user_id", user.ID), zap.Error(err))
		}
		for _, r := range roles {
			names = append(names, r.Name)
		}
	}
	return models.NewUserInfo(user, names)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
