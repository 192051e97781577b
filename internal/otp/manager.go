package otp

import (
	"context"
	"time"
)

// Options configures a Manager.
type Options struct {
	Digits      int           // code length; 6 when zero
	TTL         time.Duration // zero disables expiry
	MaxAttempts int           // mismatches before the challenge is dropped; zero means unlimited
}

// Manager issues and consumes challenges over a Store.
// State per identity: none → pending → consumed (none).
type Manager struct {
	store       Store
	digits      int
	ttl         time.Duration
	maxAttempts int
	nowF        func() time.Time
}

// NewManager returns a Manager backed by store.
func NewManager(store Store, opts Options) *Manager {
	digits := opts.Digits
	if digits == 0 {
		digits = 6
	}
	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &Manager{
		store:       store,
		digits:      digits,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// TTL returns the challenge lifetime (zero when challenges do not expire).
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue generates a fresh code for identity and stores its hash, replacing any pending
// challenge so the previous code can no longer be used. The plaintext code is returned
// for delivery and is not retained.
func (m *Manager) Issue(ctx context.Context, identity string) (string, error) {
	code, err := GenerateCode(m.digits)
	if err != nil {
		return "", err
	}
	now := m.nowF()
	c := Challenge{CodeHash: HashCode(code), IssuedAt: now}
	if m.ttl > 0 {
		c.ExpiresAt = now.Add(m.ttl)
	}
	if err := m.store.Put(ctx, identity, c); err != nil {
		return "", err
	}
	return code, nil
}

// Check consumes the challenge for identity when code matches and reports the detailed
// outcome. Only store failures are returned as errors.
func (m *Manager) Check(ctx context.Context, identity, code string) (Outcome, error) {
	if code == "" {
		return OutcomeMismatch, nil
	}
	return m.store.ConsumeIfMatch(ctx, identity, HashCode(code), m.maxAttempts, m.nowF())
}

// Consume reports whether code was accepted for identity. Wrong, absent, expired and
// exhausted challenges are all a plain false.
func (m *Manager) Consume(ctx context.Context, identity, code string) (bool, error) {
	outcome, err := m.Check(ctx, identity, code)
	if err != nil {
		return false, err
	}
	return outcome == OutcomeAccepted, nil
}
