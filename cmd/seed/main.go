// seed inserts development accounts for local testing. Run via go run ./cmd/seed.
// Idempotent: existing accounts are left untouched.
package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"orbit-account/backend/internal/account/domain"
	"orbit-account/backend/internal/account/repository"
	"orbit-account/backend/internal/config"
	"orbit-account/backend/internal/db"
	"orbit-account/backend/internal/db/migrate"
	"orbit-account/backend/internal/security"
)

const devPassword = "password123"

// Seeded accounts: a verified user who can log in and one still awaiting its OTP.
var seedAccounts = []struct {
	identity string
	name     string
	verified bool
}{
	{"dev@example.com", "Dev User", true},
	{"pending@example.com", "Pending User", false},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Env == "production" {
		log.Fatal("seed: refusing to seed when APP_ENV=production")
	}

	conn, err := db.OpenDriver(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Run(conn, cfg.DatabaseDriver, "up"); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var repo repository.Repository
	if cfg.DatabaseDriver == config.DriverPostgres {
		repo = repository.NewPostgresRepository(conn)
	} else {
		repo = repository.NewSQLiteRepository(conn)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	digest, err := hasher.Hash(devPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()
	for _, s := range seedAccounts {
		a := &domain.Account{
			ID:           uuid.NewString(),
			Identity:     s.identity,
			PasswordHash: digest,
			DisplayName:  s.name,
			Verified:     s.verified,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if s.verified {
			a.VerifiedAt = &now
		}
		err := repo.Create(ctx, a)
		switch {
		case errors.Is(err, repository.ErrDuplicateIdentity):
			log.Printf("seed: %s already exists, skipping", s.identity)
		case err != nil:
			log.Fatalf("seed %s: %v", s.identity, err)
		default:
			log.Printf("seed: created %s (verified=%t)", s.identity, s.verified)
		}
	}
	log.Printf("Seed complete. Log in as dev@example.com / %s", devPassword)
}
