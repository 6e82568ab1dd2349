package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/repository"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

const testSecret = "test-secret-with-enough-entropy"

func newTestIssuer(users *fakeUsers, tokens *fakeTokens) *TokenIssuer {
	return NewTokenIssuer(tokens, users, NewCredentialStore(bcrypt.MinCost), nil, nil, TokenConfig{
		Secret:     testSecret,
		Issuer:     "bookhub",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
}

func signClaims(t *testing.T, method jwt.SigningMethod, claims *models.AccessClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestTokenIssuerVerifyAcceptsIssuedToken(t *testing.T) {
	user := testUser("u1")
	user.IsStaff = true
	issuer := newTestIssuer(newFakeUsers(user), newFakeTokens())

	raw, expiresAt, err := issuer.IssueAccess(user)
	require.NoError(t, err)

	principal, err := issuer.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.UserID)
	assert.Equal(t, user.Email, principal.Email)
	assert.True(t, principal.Elevated())
	assert.WithinDuration(t, expiresAt, principal.ExpiresAt, time.Second)
}

func TestTokenIssuerVerifyRejections(t *testing.T) {
	user := testUser("u1")
	inactive := testUser("u2")
	inactive.IsActive = false
	users := newFakeUsers(user, inactive)
	issuer := newTestIssuer(users, newFakeTokens())
	now := time.Now().UTC()

	claims := func(userID, typ string) *models.AccessClaims {
		return &models.AccessClaims{
			UserID: userID,
			Type:   typ,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "bookhub",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
				IssuedAt:  jwt.NewNumericDate(now),
			},
		}
	}

	noIssuedAt := claims("u1", models.TokenTypeAccess)
	noIssuedAt.IssuedAt = nil
	noExpiry := claims("u1", models.TokenTypeAccess)
	noExpiry.ExpiresAt = nil
	wrongIssuer := claims("u1", models.TokenTypeAccess)
	wrongIssuer.Issuer = "someone-else"

	cases := map[string]string{
		"garbage":        "not-a-jwt",
		"wrong alg":      signClaims(t, jwt.SigningMethodHS512, claims("u1", models.TokenTypeAccess)),
		"refresh type":   signClaims(t, jwt.SigningMethodHS256, claims("u1", "refresh")),
		"missing type":   signClaims(t, jwt.SigningMethodHS256, claims("u1", "")),
		"missing user":   signClaims(t, jwt.SigningMethodHS256, claims("", models.TokenTypeAccess)),
		"missing iat":    signClaims(t, jwt.SigningMethodHS256, noIssuedAt),
		"missing exp":    signClaims(t, jwt.SigningMethodHS256, noExpiry),
		"wrong issuer":   signClaims(t, jwt.SigningMethodHS256, wrongIssuer),
		"unknown user":   signClaims(t, jwt.SigningMethodHS256, claims("ghost", models.TokenTypeAccess)),
		"inactive user":  signClaims(t, jwt.SigningMethodHS256, claims("u2", models.TokenTypeAccess)),
		"unsigned token": mustNoneToken(t, claims("u1", models.TokenTypeAccess)),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			principal, err := issuer.Verify(context.Background(), raw)
			assert.Nil(t, principal)
			assert.ErrorIs(t, err, appErrors.ErrUnauthenticated)
		})
	}

	wrongSecret, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims("u1", models.TokenTypeAccess)).SignedString([]byte("other"))
	require.NoError(t, err)
	_, err = issuer.Verify(context.Background(), wrongSecret)
	assert.ErrorIs(t, err, appErrors.ErrUnauthenticated)
}

func mustNoneToken(t *testing.T, claims *models.AccessClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return signed
}

func TestTokenIssuerVerifyExpired(t *testing.T) {
	user := testUser("u1")
	issuer := newTestIssuer(newFakeUsers(user), newFakeTokens())

	issuer.now = func() time.Time { return time.Now().UTC().Add(-time.Hour) }
	raw, _, err := issuer.IssueAccess(user)
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().UTC() }
	_, err = issuer.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, appErrors.ErrTokenExpired)
	assert.NotErrorIs(t, err, appErrors.ErrUnauthenticated)
}

func TestTokenIssuerRedeemRotates(t *testing.T) {
	user := testUser("u1")
	tokens := newFakeTokens()
	issuer := newTestIssuer(newFakeUsers(user), tokens)
	ctx := context.Background()

	pair, err := issuer.IssuePair(ctx, user, models.RequestMeta{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	rotated, err := issuer.Redeem(ctx, pair.RefreshToken, models.RequestMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, 1, tokens.live("u1", models.AuthTokenRefresh))

	_, err = issuer.Redeem(ctx, pair.RefreshToken, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrTokenReused)

	again, err := issuer.Redeem(ctx, rotated.RefreshToken, models.RequestMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, again.AccessToken)
}

func TestTokenIssuerRedeemRejectsUnknownAndInactive(t *testing.T) {
	user := testUser("u1")
	users := newFakeUsers(user)
	issuer := newTestIssuer(users, newFakeTokens())
	ctx := context.Background()

	_, err := issuer.Redeem(ctx, "never-issued-token", models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrUnauthenticated)

	pair, err := issuer.IssuePair(ctx, user, models.RequestMeta{})
	require.NoError(t, err)
	user.IsActive = false
	_, err = issuer.Redeem(ctx, pair.RefreshToken, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrUnauthenticated)
}

func TestTokenIssuerRedeemLosingRaceIsReuse(t *testing.T) {
	user := testUser("u1")
	tokens := newFakeTokens()
	issuer := newTestIssuer(newFakeUsers(user), tokens)
	ctx := context.Background()

	pair, err := issuer.IssuePair(ctx, user, models.RequestMeta{})
	require.NoError(t, err)

	tokens.rotateErr = repository.ErrTokenAlreadyRevoked
	_, err = issuer.Redeem(ctx, pair.RefreshToken, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrTokenReused)
}

func TestTokenIssuerBlacklistAll(t *testing.T) {
	user := testUser("u1")
	tokens := newFakeTokens()
	issuer := newTestIssuer(newFakeUsers(user), tokens)
	issuer.config.PersistAccessTokens = true
	ctx := context.Background()

	first, err := issuer.IssuePair(ctx, user, models.RequestMeta{})
	require.NoError(t, err)
	_, err = issuer.IssuePair(ctx, user, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 2, tokens.live("u1", models.AuthTokenAccess))

	n, err := issuer.BlacklistAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Zero(t, tokens.live("u1", models.AuthTokenRefresh))

	_, err = issuer.Redeem(ctx, first.RefreshToken, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrTokenReused)
}
