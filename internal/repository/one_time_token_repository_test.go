package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookhub-api/internal/models"
)

func TestOneTimeTokenStates(t *testing.T) {
	db := newSQLite(t)
	seedUser(t, db, "u1")
	repo := NewOneTimeTokenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	fresh := &models.OneTimeToken{UserID: "u1", Kind: models.OneTimePasswordReset, TokenHash: "fresh", ExpiresAt: now.Add(time.Hour)}
	stale := &models.OneTimeToken{UserID: "u1", Kind: models.OneTimePasswordReset, TokenHash: "stale", ExpiresAt: now.Add(-time.Second)}
	require.NoError(t, repo.Create(ctx, fresh))
	require.NoError(t, repo.Create(ctx, stale))

	tests := []struct {
		name string
		hash string
		want models.TokenState
	}{
		{"valid", "fresh", models.TokenValid},
		{"expired", "stale", models.TokenExpired},
		{"unknown", "nope", models.TokenNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Lookup(ctx, models.OneTimePasswordReset, tt.hash, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.State)
		})
	}

	// the same digest in the other family is unknown
	other, err := repo.Lookup(ctx, models.OneTimeEmailVerification, "fresh", now)
	require.NoError(t, err)
	assert.Equal(t, models.TokenNotFound, other.State)

	ok, err := repo.Consume(ctx, models.OneTimePasswordReset, fresh.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Consume(ctx, models.OneTimePasswordReset, fresh.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	used, err := repo.Lookup(ctx, models.OneTimePasswordReset, "fresh", now)
	require.NoError(t, err)
	assert.Equal(t, models.TokenExpired, used.State)
}

func TestOneTimeTokenInvalidateForUser(t *testing.T) {
	db := newSQLite(t)
	seedUser(t, db, "u1")
	repo := NewOneTimeTokenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	tok := &models.OneTimeToken{UserID: "u1", Kind: models.OneTimeEmailVerification, TokenHash: "v1", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, tok))
	require.NoError(t, repo.InvalidateForUser(ctx, models.OneTimeEmailVerification, "u1", now))

	got, err := repo.Lookup(ctx, models.OneTimeEmailVerification, "v1", now)
	require.NoError(t, err)
	assert.Equal(t, models.TokenExpired, got.State)
}

func TestOneTimeTokenUnknownKind(t *testing.T) {
	db := newSQLite(t)
	repo := NewOneTimeTokenRepository(db)
	err := repo.Create(context.Background(), &models.OneTimeToken{Kind: "magic_link"})
	assert.Error(t, err)
}
