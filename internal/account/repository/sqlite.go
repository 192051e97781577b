package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"orbit-account/backend/internal/account/domain"
)

// SQLiteRepository stores accounts in an embedded SQLite file. Timestamps are kept as
// UTC unix milliseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns an account repository backed by db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Create persists the account. The account must have ID set.
func (r *SQLiteRepository) Create(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	var verifiedAt sql.NullInt64
	if a.VerifiedAt != nil {
		verifiedAt = sql.NullInt64{Int64: toMillis(*a.VerifiedAt), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, identity, password_hash, display_name, verified, created_at, updated_at, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Identity, a.PasswordHash, a.DisplayName, a.Verified, toMillis(a.CreatedAt), toMillis(a.UpdatedAt), verifiedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdentity
		}
		return err
	}
	return nil
}

// GetByIdentity returns the account with the given identity, or ErrNotFound.
func (r *SQLiteRepository) GetByIdentity(ctx context.Context, identity string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, identity, password_hash, display_name, verified, created_at, updated_at, verified_at
		FROM accounts WHERE identity = ?`, identity)
	var (
		a                    domain.Account
		createdAt, updatedAt int64
		verifiedAt           sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.Identity, &a.PasswordHash, &a.DisplayName, &a.Verified, &createdAt, &updatedAt, &verifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	if verifiedAt.Valid {
		t := fromMillis(verifiedAt.Int64)
		a.VerifiedAt = &t
	}
	return &a, nil
}

// MarkVerified sets verified on the account. verified_at keeps the first verification time.
func (r *SQLiteRepository) MarkVerified(ctx context.Context, identity string) error {
	now := toMillis(time.Now())
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET verified = 1, verified_at = COALESCE(verified_at, ?), updated_at = ?
		WHERE identity = ?`, now, now, identity)
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

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
