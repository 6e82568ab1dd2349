package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookhub-api/internal/models"
)

func TestLoginGuardBlocksAfterLimit(t *testing.T) {
	repo := &fakeAttempts{}
	guard := NewLoginGuard(repo, nil, nil, LoginGuardConfig{MaxAttempts: 3, Window: 10 * time.Minute})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, guard.Record(ctx, &models.LoginAttempt{IPAddress: "1.2.3.4", FailureReason: models.LoginReasonInvalidCredentials, CreatedAt: now.Add(time.Duration(i-5) * time.Minute)}))
	}
	status, err := guard.IsBlocked(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, status.Blocked)
	assert.Equal(t, 2, status.Failures)

	require.NoError(t, guard.Record(ctx, &models.LoginAttempt{IPAddress: "1.2.3.4", FailureReason: models.LoginReasonInvalidCredentials}))
	status, err = guard.IsBlocked(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, status.Blocked)
	// oldest failure was five minutes ago, so the block lifts in five minutes
	assert.Equal(t, 5*time.Minute, status.RetryAfter)

	other, err := guard.IsBlocked(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.False(t, other.Blocked)
}

func TestLoginGuardWindowSlides(t *testing.T) {
	repo := &fakeAttempts{}
	guard := NewLoginGuard(repo, nil, nil, LoginGuardConfig{MaxAttempts: 2, Window: time.Minute})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, guard.Record(ctx, &models.LoginAttempt{IPAddress: "1.2.3.4", FailureReason: models.LoginReasonInvalidCredentials}))
	}
	status, err := guard.IsBlocked(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, status.Blocked)

	now = now.Add(61 * time.Second)
	status, err = guard.IsBlocked(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, status.Blocked)
}

func TestLoginGuardIgnoresSuccesses(t *testing.T) {
	repo := &fakeAttempts{}
	guard := NewLoginGuard(repo, nil, nil, LoginGuardConfig{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, guard.Record(ctx, &models.LoginAttempt{IPAddress: "1.2.3.4", Success: true}))
	}
	status, err := guard.IsBlocked(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, status.Blocked)
	assert.Zero(t, status.Failures)
	assert.Equal(t, 5, guard.config.MaxAttempts)
	assert.Equal(t, 15*time.Minute, guard.config.Window)
}
