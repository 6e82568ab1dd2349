package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/bookhub-api/internal/models"
)

func TestMaintenanceServiceRunOnce(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tokens := newFakeTokens()
	_ = tokens.Create(ctx, &models.AuthToken{ID: "long-gone", UserID: "u1", ExpiresAt: now.Add(-48 * time.Hour)})
	_ = tokens.Create(ctx, &models.AuthToken{ID: "in-grace", UserID: "u1", ExpiresAt: now.Add(-time.Hour)})
	_ = tokens.Create(ctx, &models.AuthToken{ID: "live", UserID: "u1", ExpiresAt: now.Add(time.Hour)})

	sessionRepo := newFakeSessions()
	sessionRepo.sessions["old"] = &models.Session{ID: "old", UserID: "u1", ExpiresAt: now.Add(-time.Minute)}
	sessionRepo.sessions["fresh"] = &models.Session{ID: "fresh", UserID: "u1", ExpiresAt: now.Add(time.Hour)}
	sessions := NewSessionService(sessionRepo, nil, time.Hour)
	sessions.now = func() time.Time { return now }

	attempts := &fakeAttempts{attempts: []models.LoginAttempt{
		{ID: "ancient", CreatedAt: now.Add(-100 * 24 * time.Hour)},
		{ID: "recent", CreatedAt: now.Add(-time.Hour)},
	}}

	svc := NewMaintenanceService(tokens, sessions, attempts, nil, MaintenanceConfig{})
	svc.now = func() time.Time { return now }
	svc.RunOnce(ctx)

	assert.NotContains(t, tokens.tokens, "long-gone")
	assert.Contains(t, tokens.tokens, "in-grace")
	assert.Contains(t, tokens.tokens, "live")
	assert.Equal(t, 1, sessionRepo.count("u1"))
	assert.Len(t, attempts.attempts, 1)
	assert.Equal(t, "recent", attempts.attempts[0].ID)
}

func TestMaintenanceServiceDefaults(t *testing.T) {
	svc := NewMaintenanceService(newFakeTokens(), nil, &fakeAttempts{}, nil, MaintenanceConfig{})
	assert.Equal(t, time.Hour, svc.cfg.Interval)
	assert.Equal(t, 90*24*time.Hour, svc.cfg.AttemptRetention)
	assert.Equal(t, 24*time.Hour, svc.cfg.TokenGracePeriod)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
