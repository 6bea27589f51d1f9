// Package postgres opens the database/sql pool over the pgx stdlib driver and
// owns the schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the tables if they do not exist. Idempotent; suitable
// for startup and for integration test containers.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS contacts (
			id              TEXT PRIMARY KEY,
			encrypted_value TEXT NOT NULL UNIQUE,
			contact_type    TEXT NOT NULL,
			status          TEXT NOT NULL,
			opt_out_all     BOOLEAN NOT NULL DEFAULT FALSE,
			comment         TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS verification_codes (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
			code        TEXT NOT NULL,
			channel     TEXT NOT NULL,
			sent_to     TEXT NOT NULL,
			purpose     TEXT NOT NULL,
			status      TEXT NOT NULL,
			expires_at  TIMESTAMPTZ NOT NULL,
			verified_at TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verification_codes_pending
			ON verification_codes (user_id, status, expires_at DESC)`,
		`CREATE TABLE IF NOT EXISTS programs (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			status     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS consents (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
			optin_id          TEXT NOT NULL REFERENCES programs(id),
			channel           TEXT NOT NULL,
			status            TEXT NOT NULL,
			consent_timestamp TIMESTAMPTZ,
			revoked_timestamp TIMESTAMPTZ,
			verification_id   TEXT NOT NULL DEFAULT '',
			record            TEXT NOT NULL DEFAULT '',
			notes             TEXT NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, optin_id, channel)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
