package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultIterations is the PBKDF2 iteration count for new hashes.
const DefaultIterations = 200000

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomToken returns a random alphanumeric string of the given length.
func RandomToken(length int) (string, error) {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// ShareTokenLength returns a random share token length between 8 and 10.
func ShareTokenLength() int {
	n, err := rand.Int(rand.Reader, big.NewInt(3))
	if err != nil {
		return 8
	}
	return 8 + int(n.Int64())
}

// SessionToken returns a high-entropy opaque session identifier.
func SessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random source: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashPassword derives a PBKDF2-HMAC-SHA256 hash for the password.
// Returns base64 salt, base64 hash, and the iteration count used.
func HashPassword(password string, iterations int) (salt, hash string, iters int, err error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	rawSalt := make([]byte, 16)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", 0, fmt.Errorf("failed to generate salt: %w", err)
	}
	dk := pbkdf2.Key([]byte(password), rawSalt, iterations, sha256.Size, sha256.New)
	return base64.StdEncoding.EncodeToString(rawSalt),
		base64.StdEncoding.EncodeToString(dk),
		iterations, nil
}

// VerifyPassword checks a password against a stored base64 salt and hash.
// Comparison is constant time.
func VerifyPassword(password, salt, storedHash string, iterations int) bool {
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(storedHash)
	if err != nil {
		return false
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	dk := pbkdf2.Key([]byte(password), rawSalt, iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(dk, expected) == 1
}
