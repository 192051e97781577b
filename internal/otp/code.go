package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Digit bounds accepted by GenerateCode.
const (
	MinDigits = 4
	MaxDigits = 10
)

// GenerateCode returns a numeric code of exactly digits characters, drawn uniformly
// from [0, 10^digits) with crypto/rand and zero-padded (e.g. "004217").
func GenerateCode(digits int) (string, error) {
	if digits < MinDigits || digits > MaxDigits {
		return "", fmt.Errorf("otp: digits must be between %d and %d, got %d", MinDigits, MaxDigits, digits)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

// HashCode returns a SHA-256 hash of the code, hex-encoded. Only this form is stored.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// DigestEqual compares two code digests in constant time.
func DigestEqual(providedHash, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
