// Package otp issues and consumes one-time passcodes, one pending challenge per identity.
package otp

import (
	"context"
	"time"
)

// Challenge is a pending verification for one identity. Only the code hash is kept.
type Challenge struct {
	CodeHash  string
	IssuedAt  time.Time
	ExpiresAt time.Time // zero means the challenge does not expire
	Attempts  int
}

// Expired reports whether the challenge is past its expiry at now.
func (c Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Outcome is the result of a consume attempt. Callers outside this package should treat
// everything but OutcomeAccepted as a single rejection.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeMismatch
	OutcomeAbsent
	OutcomeExpired
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeAbsent:
		return "absent"
	case OutcomeExpired:
		return "expired"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Store is the per-identity challenge table. Implementations must make ConsumeIfMatch
// atomic with respect to Put for the same identity.
type Store interface {
	// Put stores c for identity, replacing any pending challenge.
	Put(ctx context.Context, identity string, c Challenge) error
	// ConsumeIfMatch removes the challenge when codeHash matches and it has not expired.
	// A mismatch increments Attempts; once Attempts reaches maxAttempts (when > 0) the
	// challenge is removed. Expired challenges are removed.
	ConsumeIfMatch(ctx context.Context, identity, codeHash string, maxAttempts int, now time.Time) (Outcome, error)
}
