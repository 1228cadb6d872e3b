// Package credential turns PINs and recovery phrases into the digests kept in
// the account table.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash returns the lowercase hex SHA-256 of secret. It is unsalted so that
// rows can be located by digest.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether secret hashes to digest.
func Matches(secret, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(secret)), []byte(digest)) == 1
}
