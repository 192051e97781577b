package db

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Driver names accepted by OpenDriver and the migrate runner.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open opens a Postgres connection using the given DSN. Caller must call Close when done.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenDriver opens the store selected by driver: dsn for postgres, sqlitePath for sqlite.
func OpenDriver(driver, dsn, sqlitePath string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres:
		return Open(dsn)
	case DriverSQLite:
		return OpenSQLite(sqlitePath)
	default:
		return nil, fmt.Errorf("db: unknown driver %q", driver)
	}
}
