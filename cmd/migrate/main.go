// migrate applies the embedded SQL migrations for DATABASE_DRIVER; use with go run ./cmd/migrate.
package main

import (
	"flag"
	"fmt"
	"os"

	"orbit-account/backend/internal/config"
	"orbit-account/backend/internal/db"
	"orbit-account/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	conn, err := db.OpenDriver(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db:", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := migrate.Run(conn, cfg.DatabaseDriver, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	version, dirty, err := migrate.Version(conn, cfg.DatabaseDriver)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Printf("%s schema at version %d (dirty=%t)\n", cfg.DatabaseDriver, version, dirty)
}
