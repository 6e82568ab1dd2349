package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/models"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
	"github.com/noah-isme/bookhub-api/pkg/secure"
)

type sessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByKeyHash(ctx context.Context, hash string) (*models.Session, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]models.Session, error)
	Touch(ctx context.Context, id string, lastActive, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID, keepID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionService tracks device sessions created by "remember me" logins.
// Raw keys are handed out once; only their BLAKE3 digest is stored.
type SessionService struct {
	repo   sessionRepository
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionService constructs a SessionService. ttl defaults to 30 days.
func NewSessionService(repo sessionRepository, logger *zap.Logger, ttl time.Duration) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &SessionService{repo: repo, logger: logger, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// TTL is the sliding lifetime of a session.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Create opens a session for userID and returns its raw key.
func (s *SessionService) Create(ctx context.Context, userID string, meta models.RequestMeta) (string, *models.Session, error) {
	raw, err := secure.RandomToken(secure.TokenBytes)
	if err != nil {
		return "", nil, appErrors.Internal(err, "failed to create session key")
	}
	now := s.now()
	session := &models.Session{
		UserID:       userID,
		KeyHash:      secure.Digest(raw),
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
		ExpiresAt:    now.Add(s.ttl),
		LastActiveAt: now,
		CreatedAt:    now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return "", nil, appErrors.Internal(err, "failed to create session")
	}
	return raw, session, nil
}

// Touch resolves rawKey and, when the session is live, slides its expiry and
// records activity.
func (s *SessionService) Touch(ctx context.Context, rawKey string) (models.SessionLookup, error) {
	if rawKey == "" {
		return models.SessionLookup{State: models.TokenNotFound}, nil
	}
	session, err := s.repo.FindByKeyHash(ctx, secure.Digest(rawKey))
	if errors.Is(err, sql.ErrNoRows) {
		return models.SessionLookup{State: models.TokenNotFound}, nil
	}
	if err != nil {
		return models.SessionLookup{}, appErrors.Internal(err, "failed to load session")
	}

	now := s.now()
	if !now.Before(session.ExpiresAt) {
		return models.SessionLookup{State: models.TokenExpired, Session: session}, nil
	}
	session.LastActiveAt = now
	session.ExpiresAt = now.Add(s.ttl)
	if err := s.repo.Touch(ctx, session.ID, session.LastActiveAt, session.ExpiresAt); err != nil {
		s.logger.Warn("failed to touch session", zap.String("session_id", session.ID), zap.Error(err))
	}
	return models.SessionLookup{State: models.TokenValid, Session: session}, nil
}

// List returns the live sessions of userID.
func (s *SessionService) List(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := s.repo.ListActiveByUser(ctx, userID, s.now())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list sessions")
	}
	return sessions, nil
}

// Revoke ends one session of userID. Sessions of other users report not found.
func (s *SessionService) Revoke(ctx context.Context, userID, id string) error {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "session not found", "failed to load session")
	}
	if owner, ok := session.OwnerID(); !ok || owner != userID {
		return appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "session not found", "failed to revoke session")
	}
	return nil
}

// RevokeAll ends every session of userID.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.DeleteByUser(ctx, userID, "")
	if err != nil {
		return 0, appErrors.Internal(err, "failed to revoke sessions")
	}
	return n, nil
}

// CleanupExpired purges expired sessions.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired sessions purged", zap.Int64("count", n))
	}
	return n, nil
}
