package interceptors

import (
	"context"
	"testing"
)

func TestWithIdentity_SetsValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "acc-1", "user@example.com")

	id, ok := GetAccountID(ctx)
	if !ok || id != "acc-1" {
		t.Errorf("GetAccountID = %q, %v; want %q, true", id, ok, "acc-1")
	}
	identity, ok := GetIdentity(ctx)
	if !ok || identity != "user@example.com" {
		t.Errorf("GetIdentity = %q, %v; want %q, true", identity, ok, "user@example.com")
	}
}

func TestGetters_NotSet(t *testing.T) {
	ctx := context.Background()
	if v, ok := GetAccountID(ctx); ok || v != "" {
		t.Errorf("GetAccountID = %q, %v; want empty, false", v, ok)
	}
	if v, ok := GetIdentity(ctx); ok || v != "" {
		t.Errorf("GetIdentity = %q, %v; want empty, false", v, ok)
	}
}

func TestWithIdentity_Chaining(t *testing.T) {
	ctx := WithIdentity(context.Background(), "acc-1", "first@example.com")
	ctx = WithIdentity(ctx, "acc-2", "second@example.com")
	if id, _ := GetAccountID(ctx); id != "acc-2" {
		t.Errorf("GetAccountID = %q, want %q", id, "acc-2")
	}
	if identity, _ := GetIdentity(ctx); identity != "second@example.com" {
		t.Errorf("GetIdentity = %q, want %q", identity, "second@example.com")
	}
}

func TestContext_Isolation(t *testing.T) {
	parent := context.Background()
	_ = WithIdentity(parent, "acc-1", "user@example.com")
	if _, ok := GetIdentity(parent); ok {
		t.Error("parent context should not carry identity")
	}
}
