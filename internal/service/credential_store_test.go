package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCredentialStoreHashAndVerify(t *testing.T) {
	store := NewCredentialStore(bcrypt.MinCost)

	hash, err := store.Hash("correct horse")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmBcrypt, Algorithm(hash))
	assert.NotContains(t, hash, "correct horse")

	assert.True(t, store.Verify("correct horse", hash))
	assert.False(t, store.Verify("wrong horse", hash))
	assert.False(t, store.NeedsRehash(hash))
}

func TestCredentialStoreFailsClosed(t *testing.T) {
	store := NewCredentialStore(bcrypt.MinCost)

	for _, hash := range []string{"", "plaintext", "$2a$", "pbkdf2_sha256$260000$salt$hash", "$2a$99$broken"} {
		assert.NotPanics(t, func() {
			assert.False(t, store.Verify("anything", hash), hash)
		})
		assert.True(t, store.NeedsRehash(hash), hash)
	}
}

func TestCredentialStoreDefaultsCost(t *testing.T) {
	store := NewCredentialStore(0)
	assert.Equal(t, bcrypt.DefaultCost, store.cost)
}

func TestCredentialStoreRejectsOverlongPassword(t *testing.T) {
	store := NewCredentialStore(bcrypt.MinCost)
	_, err := store.Hash(strings.Repeat("a", 73))
	require.Error(t, err)
	assert.True(t, IsPasswordTooLong(err))
}

func TestVerifyDummyDoesNotPanic(t *testing.T) {
	store := NewCredentialStore(bcrypt.MinCost)
	assert.NotPanics(t, func() { store.VerifyDummy("whatever") })
}
