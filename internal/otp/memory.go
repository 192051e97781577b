package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. A single mutex serializes every Put and
// ConsumeIfMatch, so issue/consume pairs for one identity cannot interleave.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]Challenge
}

// NewMemoryStore returns an empty in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]Challenge)}
}

// Put stores c for identity, replacing any pending challenge.
func (s *MemoryStore) Put(ctx context.Context, identity string, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[identity] = c
	return nil
}

// ConsumeIfMatch implements Store.
func (s *MemoryStore) ConsumeIfMatch(ctx context.Context, identity, codeHash string, maxAttempts int, now time.Time) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[identity]
	if !ok {
		return OutcomeAbsent, nil
	}
	if c.Expired(now) {
		delete(s.m, identity)
		return OutcomeExpired, nil
	}
	if DigestEqual(codeHash, c.CodeHash) {
		delete(s.m, identity)
		return OutcomeAccepted, nil
	}
	c.Attempts++
	if maxAttempts > 0 && c.Attempts >= maxAttempts {
		delete(s.m, identity)
		return OutcomeExhausted, nil
	}
	s.m[identity] = c
	return OutcomeMismatch, nil
}

// Peek returns the pending challenge for identity. Intended for tests and diagnostics.
func (s *MemoryStore) Peek(identity string) (Challenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[identity]
	return c, ok
}

// Sweep removes challenges expired at now and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.m {
		if c.Expired(now) {
			delete(s.m, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now.UTC())
		}
	}
}
