package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/models"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

type loginAttemptRepository interface {
	Create(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailuresSince(ctx context.Context, ip string, since time.Time) (int, error)
	OldestFailureSince(ctx context.Context, ip string, since time.Time) (time.Time, bool, error)
}

// LoginGuardConfig holds the sliding-window limits.
type LoginGuardConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// BlockStatus describes the guard's verdict for an IP.
type BlockStatus struct {
	Blocked    bool
	Failures   int
	RetryAfter time.Duration
}

// LoginGuard throttles logins per IP using the trailing window of failed
// attempts. There is no unblock operation; blocks lift as the window slides.
type LoginGuard struct {
	repo    loginAttemptRepository
	metrics *MetricsService
	logger  *zap.Logger
	config  LoginGuardConfig
	now     func() time.Time
}

// NewLoginGuard constructs a guard. Zero limits fall back to 5 attempts per 15 minutes.
func NewLoginGuard(repo loginAttemptRepository, metrics *MetricsService, logger *zap.Logger, config LoginGuardConfig) *LoginGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.Window <= 0 {
		config.Window = 15 * time.Minute
	}
	return &LoginGuard{repo: repo, metrics: metrics, logger: logger, config: config, now: func() time.Time { return time.Now().UTC() }}
}

// IsBlocked reports whether ip reached the failure limit inside the window.
func (g *LoginGuard) IsBlocked(ctx context.Context, ip string) (BlockStatus, error) {
	now := g.now()
	since := now.Add(-g.config.Window)
	failures, err := g.repo.CountFailuresSince(ctx, ip, since)
	if err != nil {
		return BlockStatus{}, appErrors.Internal(err, "failed to check login attempts")
	}
	status := BlockStatus{Failures: failures, Blocked: failures >= g.config.MaxAttempts}
	if !status.Blocked {
		return status, nil
	}

	status.RetryAfter = g.config.Window
	oldest, ok, err := g.repo.OldestFailureSince(ctx, ip, since)
	if err != nil {
		g.logger.Warn("failed to compute login block expiry", zap.String("ip", ip), zap.Error(err))
	} else if ok {
		if wait := oldest.Add(g.config.Window).Sub(now); wait > 0 {
			status.RetryAfter = wait
		}
	}
	return status, nil
}

// Record appends an attempt. Blocked attempts are recorded too, with the
// ip_blocked reason.
func (g *LoginGuard) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = g.now()
	}
	if err := g.repo.Create(ctx, attempt); err != nil {
		return appErrors.Internal(err, "failed to record login attempt")
	}
	outcome := "success"
	if !attempt.Success {
		outcome = attempt.FailureReason
	}
	g.metrics.RecordLoginAttempt(outcome)
	return nil
}
