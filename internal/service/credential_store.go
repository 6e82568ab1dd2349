package service

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AlgorithmBcrypt names the only hashing scheme currently issued.
const AlgorithmBcrypt = "bcrypt"

// CredentialStore hashes and verifies passwords.
type CredentialStore struct {
	cost  int
	dummy []byte
}

// NewCredentialStore builds a store with the given bcrypt cost; out-of-range
// costs fall back to bcrypt.DefaultCost.
func NewCredentialStore(cost int) *CredentialStore {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("bookhub-dummy-password"), cost)
	if err != nil {
		panic(fmt.Sprintf("generate dummy hash: %v", err))
	}
	return &CredentialStore{cost: cost, dummy: dummy}
}

// Hash returns a salted bcrypt hash. The "$2a$" style prefix identifies the
// algorithm and cost.
func (s *CredentialStore) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. Unrecognised hash formats
// verify as false.
func (s *CredentialStore) Verify(password, hash string) bool {
	if Algorithm(hash) != AlgorithmBcrypt {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// VerifyDummy spends the same work as a real comparison. Login calls it for
// unknown accounts.
func (s *CredentialStore) VerifyDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
}

// NeedsRehash reports whether hash was produced with another algorithm or cost.
func (s *CredentialStore) NeedsRehash(hash string) bool {
	if Algorithm(hash) != AlgorithmBcrypt {
		return true
	}
	cost, err := bcrypt.Cost([]byte(hash))
	return err != nil || cost != s.cost
}

// Algorithm identifies the scheme of a stored hash, or "" when unknown.
func Algorithm(hash string) string {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(hash, prefix) {
			if _, err := bcrypt.Cost([]byte(hash)); err != nil {
				return ""
			}
			return AlgorithmBcrypt
		}
	}
	return ""
}

// IsPasswordTooLong reports whether err came from bcrypt's 72-byte input limit.
func IsPasswordTooLong(err error) bool {
	return errors.Is(err, bcrypt.ErrPasswordTooLong)
}
