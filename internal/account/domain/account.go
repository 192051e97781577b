package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Account is a registered identity with its credential digest and activation flag.
// Identity is compared exactly: no case folding or trimming is applied.
type Account struct {
	ID           string
	Identity     string
	PasswordHash string // bcrypt digest; never the plaintext
	DisplayName  string
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	VerifiedAt   *time.Time
}

// Profile is the public view of an account returned to authenticated callers.
type Profile struct {
	ID          string
	Identity    string
	DisplayName string
	Verified    bool
	CreatedAt   time.Time
}

// Profile returns the public view of a.
func (a *Account) Profile() Profile {
	return Profile{
		ID:          a.ID,
		Identity:    a.Identity,
		DisplayName: a.DisplayName,
		Verified:    a.Verified,
		CreatedAt:   a.CreatedAt,
	}
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateIdentity checks that identity is a non-empty email address.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return errors.New("email is required")
	}
	if !emailPattern.MatchString(identity) {
		return errors.New("invalid email format")
	}
	return nil
}

// MaxPasswordBytes is the longest password bcrypt can digest.
const MaxPasswordBytes = 72

// ValidatePassword checks that password is between minLen characters and MaxPasswordBytes bytes.
func ValidatePassword(password string, minLen int) error {
	if password == "" {
		return errors.New("password is required")
	}
	if minLen > 0 && len([]rune(password)) < minLen {
		return errors.New("password is too short")
	}
	if len(password) > MaxPasswordBytes {
		return errors.New("password must be at most 72 bytes")
	}
	return nil
}

// Validate validates the account for persistence. Returns an error describing the first validation failure.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("id is required")
	}
	if err := ValidateIdentity(a.Identity); err != nil {
		return err
	}
	if a.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// Domain returns the part of an email identity after the last '@', or "".
func Domain(identity string) string {
	i := strings.LastIndexByte(identity, '@')
	if i < 0 {
		return ""
	}
	return identity[i+1:]
}
