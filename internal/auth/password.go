package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const passwordSaltLength = 16

// HashPassword derives a salted digest for storage. The stored value is the
// hex-encoded salt followed by the hex-encoded SHA-256 of the password with
// the salt's hex form appended, so the prefix length is fixed at 32 chars.
func HashPassword(password string) (string, error) {
	salt := make([]byte, passwordSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)
	return saltHex + digestHex(password, saltHex), nil
}

// VerifyPassword reports whether the password matches the stored hash. It
// never returns an error; malformed stored values simply fail verification.
func VerifyPassword(password, stored string) bool {
	if len(stored) <= 2*passwordSaltLength {
		return false
	}
	saltHex := stored[:2*passwordSaltLength]
	expected := stored[2*passwordSaltLength:]
	computed := digestHex(password, saltHex)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1
}

func digestHex(password, saltHex string) string {
	sum := sha256.Sum256([]byte(password + saltHex))
	return hex.EncodeToString(sum[:])
}
