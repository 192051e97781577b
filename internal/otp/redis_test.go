package otp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRedisStore_StoresHashOnly(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "test:otp")
	m := NewManager(s, Options{TTL: 10 * time.Minute})

	code, err := m.Issue(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	key := "test:otp:alice@example.com"
	if !mr.Exists(key) {
		t.Fatalf("key %q should exist", key)
	}
	if got := mr.HGet(key, "hash"); got != HashCode(code) {
		t.Errorf("stored hash = %q, want HashCode(code)", got)
	}
	fields, err := mr.HKeys(key)
	if err != nil {
		t.Fatalf("HKeys: %v", err)
	}
	for _, field := range fields {
		if mr.HGet(key, field) == code {
			t.Errorf("field %q stores the plaintext code", field)
		}
	}
	ttl := mr.TTL(key)
	if ttl <= 0 || ttl > 10*time.Minute {
		t.Errorf("key TTL = %v, want (0, 10m]", ttl)
	}
}

func TestRedisStore_NoTTLWhenNoExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "")
	if err := s.Put(context.Background(), "alice@example.com", Challenge{CodeHash: "h", IssuedAt: time.Now()}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ttl := mr.TTL("orbit:otp:alice@example.com"); ttl != 0 {
		t.Errorf("TTL = %v, want none", ttl)
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, "test:otp")
	mr.Close()

	err := s.Put(context.Background(), "alice@example.com", Challenge{CodeHash: "h"})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Put err = %v, want ErrStoreUnavailable", err)
	}
	_, err = s.ConsumeIfMatch(context.Background(), "alice@example.com", "h", 5, time.Now())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("ConsumeIfMatch err = %v, want ErrStoreUnavailable", err)
	}
}

func TestConnect(t *testing.T) {
	mr, _ := newTestRedis(t)
	ctx := context.Background()

	for _, addr := range []string{mr.Addr(), "redis://" + mr.Addr() + "/0"} {
		client, err := Connect(ctx, addr)
		if err != nil {
			t.Fatalf("Connect(%q): %v", addr, err)
		}
		_ = client.Close()
	}

	if _, err := Connect(ctx, "redis://%zz"); err == nil {
		t.Error("Connect with bad URL should fail")
	}
}
