// Package password wraps bcrypt for credential storage. Each Hash call draws
// a fresh salt, so two digests of the same password differ while both verify.
package password

import "golang.org/x/crypto/bcrypt"

// Hash produces a salted one-way digest of the plaintext suitable for
// storage. The plaintext itself is never persisted.
func Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether the plaintext matches the digest. The comparison is
// timing-safe. A malformed digest verifies as false; Verify never fails.
func Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
