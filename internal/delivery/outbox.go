package delivery

import (
	"context"
	"sync"
	"time"
)

// DevOutbox keeps the last plaintext code per identity for dev-only retrieval
// (GET /dev/otp when OTP_RETURN_TO_CLIENT is set). Never enabled in production.
type DevOutbox struct {
	mu   sync.RWMutex
	m    map[string]outboxEntry
	nowF func() time.Time
}

type outboxEntry struct {
	code      string
	expiresAt time.Time
}

// NewDevOutbox returns an empty outbox.
func NewDevOutbox() *DevOutbox {
	return &DevOutbox{
		m:    make(map[string]outboxEntry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put records code for identity until expiresAt. A zero expiresAt never expires.
func (o *DevOutbox) Put(ctx context.Context, identity, code string, expiresAt time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.m[identity] = outboxEntry{code: code, expiresAt: expiresAt}
}

// Get returns the code for identity if present and not expired.
func (o *DevOutbox) Get(ctx context.Context, identity string) (string, bool) {
	o.mu.RLock()
	e, ok := o.m[identity]
	o.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(o.nowF()) {
		o.mu.Lock()
		delete(o.m, identity)
		o.mu.Unlock()
		return "", false
	}
	return e.code, true
}

// Forget removes the code for identity, e.g. once it was accepted.
func (o *DevOutbox) Forget(ctx context.Context, identity string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.m, identity)
}
