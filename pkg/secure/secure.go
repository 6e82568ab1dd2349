// Package secure generates opaque credentials and the digests stored in their place.
package secure

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// TokenBytes is the entropy of every opaque credential the service hands out.
const TokenBytes = 32

// PrefixLength is how much of a raw token is kept in clear as a lookup hint.
const PrefixLength = 8

// RandomToken returns n crypto-random bytes encoded as unpadded URL-safe base64.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		n = TokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Digest computes the hex BLAKE3 digest of raw. Only the digest is stored.
func Digest(raw string) string {
	hasher := blake3.New()
	_, _ = hasher.Write([]byte(raw))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Prefix returns the non-secret lookup prefix of raw.
func Prefix(raw string) string {
	if len(raw) <= PrefixLength {
		return raw
	}
	return raw[:PrefixLength]
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
