package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/repository"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
	"github.com/noah-isme/bookhub-api/pkg/secure"
)

type tokenRepository interface {
	Create(ctx context.Context, token *models.AuthToken) error
	ListRefreshCandidates(ctx context.Context, prefix string, now time.Time) ([]models.AuthToken, error)
	ListRevokedRefreshCandidates(ctx context.Context, prefix string, now time.Time) ([]models.AuthToken, error)
	RotateRefresh(ctx context.Context, oldID string, replacement *models.AuthToken, now time.Time) error
	BlacklistAllForUser(ctx context.Context, userID string, now time.Time) (int64, error)
}

type tokenUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type secretHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
}

// TokenConfig configures token lifetimes and signing.
type TokenConfig struct {
	Secret              string
	Issuer              string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	PersistAccessTokens bool
}

// TokenIssuer signs access tokens and manages the refresh token lifecycle.
type TokenIssuer struct {
	tokens  tokenRepository
	users   tokenUserReader
	hasher  secretHasher
	metrics *MetricsService
	logger  *zap.Logger
	config  TokenConfig
	now     func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(tokens tokenRepository, users tokenUserReader, hasher secretHasher, metrics *MetricsService, logger *zap.Logger, config TokenConfig) *TokenIssuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.AccessTTL <= 0 {
		config.AccessTTL = 30 * time.Minute
	}
	if config.RefreshTTL <= 0 {
		config.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenIssuer{
		tokens:  tokens,
		users:   users,
		hasher:  hasher,
		metrics: metrics,
		logger:  logger,
		config:  config,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// IssueAccess signs an HS256 access token for user.
func (s *TokenIssuer) IssueAccess(user *models.User) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.config.AccessTTL)
	claims := &models.AccessClaims{
		UserID: user.ID,
		Email:  user.Email,
		Type:   models.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify validates an access token and resolves its principal. Expired tokens
// yield ErrTokenExpired; every other rejection yields ErrUnauthenticated.
func (s *TokenIssuer) Verify(ctx context.Context, raw string) (*models.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}

	claims := &models.AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrTokenExpired, "access token expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthenticated.Code, appErrors.ErrUnauthenticated.Status, "invalid token")
	}

	if claims.IssuedAt == nil || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid token claims")
	}
	if claims.Type != models.TokenTypeAccess {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid token type")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	if !user.Alive() {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "user is inactive")
	}

	return &models.Principal{
		UserID:      user.ID,
		Email:       user.Email,
		IsStaff:     user.IsStaff,
		IsSuperuser: user.IsSuperuser,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// IssueRefresh creates a refresh token. Only its bcrypt hash and a short
// prefix are stored; the raw value is returned once.
func (s *TokenIssuer) IssueRefresh(ctx context.Context, user *models.User, meta models.RequestMeta) (string, *models.AuthToken, error) {
	raw, record, err := s.newRefresh(user.ID, meta)
	if err != nil {
		return "", nil, err
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return "", nil, appErrors.Internal(err, "failed to persist refresh token")
	}
	return raw, record, nil
}

// IssuePair issues an access token and a refresh token for user.
func (s *TokenIssuer) IssuePair(ctx context.Context, user *models.User, meta models.RequestMeta) (*models.TokenPair, error) {
	access, accessExp, err := s.IssueAccess(user)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}
	refresh, record, err := s.IssueRefresh(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	s.persistAccess(ctx, user.ID, access, accessExp, meta)
	return s.pair(access, accessExp, refresh, record.ExpiresAt), nil
}

// Redeem exchanges a refresh token for a new pair and blacklists the old one.
// A token that was already redeemed yields ErrTokenReused; an unknown token
// yields ErrUnauthenticated.
func (s *TokenIssuer) Redeem(ctx context.Context, raw string, meta models.RequestMeta) (*models.TokenPair, error) {
	now := s.now()
	prefix := secure.Prefix(raw)

	candidates, err := s.tokens.ListRefreshCandidates(ctx, prefix, now)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load refresh tokens")
	}
	matched := s.match(raw, candidates)
	if matched == nil {
		return nil, s.classifyMiss(ctx, raw, prefix, now)
	}

	user, err := s.users.FindByID(ctx, matched.UserID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load user")
	}
	if err != nil || !user.Alive() {
		s.metrics.RecordTokenRefresh("inactive_user")
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid refresh token")
	}

	access, accessExp, err := s.IssueAccess(user)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}
	newRaw, replacement, err := s.newRefresh(user.ID, meta)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.RotateRefresh(ctx, matched.ID, replacement, now); err != nil {
		if errors.Is(err, repository.ErrTokenAlreadyRevoked) {
			s.metrics.RecordTokenRefresh("reused")
			s.logger.Warn("refresh_token_reuse", zap.String("user_id", user.ID), zap.String("token_id", matched.ID))
			return nil, appErrors.Clone(appErrors.ErrTokenReused, "")
		}
		return nil, appErrors.Internal(err, "failed to rotate refresh token")
	}

	s.persistAccess(ctx, user.ID, access, accessExp, meta)
	s.metrics.RecordTokenRefresh("rotated")
	return s.pair(access, accessExp, newRaw, replacement.ExpiresAt), nil
}

// BlacklistAll revokes every live token of userID.
func (s *TokenIssuer) BlacklistAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.tokens.BlacklistAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, appErrors.Internal(err, "failed to revoke tokens")
	}
	return n, nil
}

// AccessTTL exposes the configured access token lifetime.
func (s *TokenIssuer) AccessTTL() time.Duration {
	return s.config.AccessTTL
}

func (s *TokenIssuer) newRefresh(userID string, meta models.RequestMeta) (string, *models.AuthToken, error) {
	raw, err := secure.RandomToken(secure.TokenBytes)
	if err != nil {
		return "", nil, appErrors.Internal(err, "failed to create refresh token")
	}
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return "", nil, appErrors.Internal(err, "failed to hash refresh token")
	}
	now := s.now()
	return raw, &models.AuthToken{
		UserID:      userID,
		Type:        models.AuthTokenRefresh,
		TokenPrefix: secure.Prefix(raw),
		TokenHash:   hash,
		ExpiresAt:   now.Add(s.config.RefreshTTL),
		IPAddress:   meta.IP,
		UserAgent:   meta.UserAgent,
		CreatedAt:   now,
	}, nil
}

func (s *TokenIssuer) match(raw string, candidates []models.AuthToken) *models.AuthToken {
	for i := range candidates {
		if s.hasher.Verify(raw, candidates[i].TokenHash) {
			return &candidates[i]
		}
	}
	return nil
}

func (s *TokenIssuer) classifyMiss(ctx context.Context, raw, prefix string, now time.Time) error {
	revoked, err := s.tokens.ListRevokedRefreshCandidates(ctx, prefix, now)
	if err != nil {
		s.logger.Warn("failed to load revoked refresh tokens", zap.Error(err))
	} else if hit := s.match(raw, revoked); hit != nil {
		s.metrics.RecordTokenRefresh("reused")
		s.logger.Warn("refresh_token_reuse", zap.String("user_id", hit.UserID), zap.String("token_id", hit.ID))
		return appErrors.Clone(appErrors.ErrTokenReused, "")
	}
	s.metrics.RecordTokenRefresh("unknown")
	return appErrors.Clone(appErrors.ErrUnauthenticated, "invalid refresh token")
}

func (s *TokenIssuer) persistAccess(ctx context.Context, userID, access string, expiresAt time.Time, meta models.RequestMeta) {
	if !s.config.PersistAccessTokens {
		return
	}
	record := &models.AuthToken{
		UserID:    userID,
		Type:      models.AuthTokenAccess,
		TokenHash: secure.Digest(access),
		ExpiresAt: expiresAt,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: s.now(),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		s.logger.Warn("failed to record access token", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *TokenIssuer) pair(access string, accessExp time.Time, refresh string, refreshExp time.Time) *models.TokenPair {
	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.config.AccessTTL.Seconds()),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
}
