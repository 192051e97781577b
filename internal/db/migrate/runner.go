// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"orbit-account/backend/internal/db"
)

// Run applies the migrations for driver in the given direction on conn.
// direction must be "up" or "down". Returns nil on success, including when already
// at latest (up) or with no migrations to downgrade (down). conn is left open.
func Run(conn *sql.DB, driver, direction string) error {
	if conn == nil {
		return errors.New("migrate: database connection is required")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	target, err := databaseDriver(conn, driver)
	if err != nil {
		return err
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	// m.Close would also close conn; only the source is released here.
	defer func() { _ = sourceDriver.Close() }()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, driver, target)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	switch direction {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	}
	return nil
}

// Version returns the current schema version and whether it is dirty. Version is 0 when
// no migration has been applied.
func Version(conn *sql.DB, driver string) (uint, bool, error) {
	target, err := databaseDriver(conn, driver)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := target.Version()
	if err != nil {
		return 0, false, err
	}
	if v == database.NilVersion {
		return 0, false, nil
	}
	return uint(v), dirty, nil
}

func databaseDriver(conn *sql.DB, driver string) (database.Driver, error) {
	if conn == nil {
		return nil, errors.New("migrate: database connection is required")
	}
	var (
		target database.Driver
		err    error
	)
	switch driver {
	case db.DriverPostgres:
		target, err = postgres.WithInstance(conn, &postgres.Config{})
	case db.DriverSQLite:
		target, err = sqlite.WithInstance(conn, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("migrate: unknown driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return target, nil
}
