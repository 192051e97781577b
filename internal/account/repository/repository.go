package repository

import (
	"context"
	"errors"

	"orbit-account/backend/internal/account/domain"
)

var (
	// ErrDuplicateIdentity is returned by Create when an account with the same identity exists.
	ErrDuplicateIdentity = errors.New("identity already registered")
	// ErrNotFound is returned when no account has the requested identity.
	ErrNotFound = errors.New("account not found")
	// ErrInvalidAccount is returned by Create when the account fails domain validation.
	ErrInvalidAccount = errors.New("invalid account")
)

// Repository defines persistence for accounts. Identity uniqueness is enforced by the
// store itself, so concurrent Create calls for one identity yield exactly one success.
type Repository interface {
	Create(ctx context.Context, a *domain.Account) error
	GetByIdentity(ctx context.Context, identity string) (*domain.Account, error)
	// MarkVerified sets the activation flag. Idempotent; ErrNotFound when the identity is absent.
	MarkVerified(ctx context.Context, identity string) error
}
