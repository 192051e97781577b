package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"orbit-account/backend/internal/account/domain"
)

const pgUniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the account. The account must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, identity, password_hash, display_name, verified, created_at, updated_at, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Identity, a.PasswordHash, a.DisplayName, a.Verified, a.CreatedAt, a.UpdatedAt, nullTime(a.VerifiedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateIdentity
		}
		return err
	}
	return nil
}

// GetByIdentity returns the account with the given identity, or ErrNotFound.
func (r *PostgresRepository) GetByIdentity(ctx context.Context, identity string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, identity, password_hash, display_name, verified, created_at, updated_at, verified_at
		FROM accounts WHERE identity = $1`, identity)
	var (
		a          domain.Account
		verifiedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Identity, &a.PasswordHash, &a.DisplayName, &a.Verified, &a.CreatedAt, &a.UpdatedAt, &verifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		a.VerifiedAt = &t
	}
	return &a, nil
}

// MarkVerified sets verified on the account. verified_at keeps the first verification time.
func (r *PostgresRepository) MarkVerified(ctx context.Context, identity string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET verified = TRUE, verified_at = COALESCE(verified_at, $2), updated_at = $2
		WHERE identity = $1`, identity, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
