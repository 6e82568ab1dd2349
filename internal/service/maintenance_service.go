package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type expiredTokenPurger interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type loginAttemptPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MaintenanceConfig controls the periodic cleanup loop.
type MaintenanceConfig struct {
	Interval         time.Duration
	AttemptRetention time.Duration
	TokenGracePeriod time.Duration
}

// MaintenanceService purges expired credentials and old login attempts.
// Attempts younger than the guard window are always kept.
type MaintenanceService struct {
	tokens   expiredTokenPurger
	sessions *SessionService
	attempts loginAttemptPruner
	logger   *zap.Logger
	cfg      MaintenanceConfig
	now      func() time.Time
}

// NewMaintenanceService constructs the service.
func NewMaintenanceService(tokens expiredTokenPurger, sessions *SessionService, attempts loginAttemptPruner, logger *zap.Logger, cfg MaintenanceConfig) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.AttemptRetention <= 0 {
		cfg.AttemptRetention = 90 * 24 * time.Hour
	}
	if cfg.TokenGracePeriod <= 0 {
		cfg.TokenGracePeriod = 24 * time.Hour
	}
	return &MaintenanceService{tokens: tokens, sessions: sessions, attempts: attempts, logger: logger, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// RunOnce performs one cleanup pass. Failures are logged and do not stop the
// remaining steps.
func (s *MaintenanceService) RunOnce(ctx context.Context) {
	now := s.now()
	if n, err := s.tokens.DeleteExpired(ctx, now.Add(-s.cfg.TokenGracePeriod)); err != nil {
		s.logger.Warn("failed to purge expired tokens", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("expired tokens purged", zap.Int64("count", n))
	}
	if s.sessions != nil {
		if _, err := s.sessions.CleanupExpired(ctx); err != nil {
			s.logger.Warn("failed to purge expired sessions", zap.Error(err))
		}
	}
	if n, err := s.attempts.DeleteBefore(ctx, now.Add(-s.cfg.AttemptRetention)); err != nil {
		s.logger.Warn("failed to prune login attempts", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("login attempts pruned", zap.Int64("count", n))
	}
}

// Run repeats RunOnce every interval until ctx is done.
func (s *MaintenanceService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
