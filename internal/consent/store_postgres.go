package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"consentry/pkg/platform/sentinel"
)

// PostgresStore persists consent rows in PostgreSQL. The natural key
// (user_id, optin_id, channel) carries a unique constraint, so Upsert is a
// single ON CONFLICT statement.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, c *Consent) error {
	query := `
		INSERT INTO consents (id, user_id, optin_id, channel, status, consent_timestamp, revoked_timestamp, verification_id, record, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, optin_id, channel) DO UPDATE SET
			status = EXCLUDED.status,
			consent_timestamp = EXCLUDED.consent_timestamp,
			revoked_timestamp = EXCLUDED.revoked_timestamp,
			verification_id = EXCLUDED.verification_id,
			record = EXCLUDED.record,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		c.ID, c.ContactID, c.ProgramID, c.Channel, c.Status,
		c.ConsentTimestamp, c.RevokedTimestamp, c.VerificationID, c.Record, c.Notes,
		c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindCurrent(ctx context.Context, contactID, programID string, channel Channel) (*Consent, error) {
	query := selectConsent + `
		WHERE user_id = $1 AND optin_id = $2 AND channel = $3
	`
	c, err := scanConsent(s.db.QueryRowContext(ctx, query, contactID, programID, channel))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListByContact(ctx context.Context, contactID string) ([]*Consent, error) {
	query := selectConsent + `
		WHERE user_id = $1
		ORDER BY optin_id, channel
	`
	rows, err := s.db.QueryContext(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	var out []*Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("list consents: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RevokeAllForContact(ctx context.Context, contactID string, revokedAt time.Time) (int, error) {
	query := `
		UPDATE consents
		SET status = $2, revoked_timestamp = $3, consent_timestamp = NULL, updated_at = $3
		WHERE user_id = $1 AND status <> $2
	`
	result, err := s.db.ExecContext(ctx, query, contactID, StatusOptOut, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke consents: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke consents: %w", err)
	}
	return int(rows), nil
}

const selectConsent = `
	SELECT id, user_id, optin_id, channel, status, consent_timestamp, revoked_timestamp, verification_id, record, notes, created_at, updated_at
	FROM consents
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (*Consent, error) {
	var c Consent
	err := row.Scan(
		&c.ID, &c.ContactID, &c.ProgramID, &c.Channel, &c.Status,
		&c.ConsentTimestamp, &c.RevokedTimestamp, &c.VerificationID, &c.Record, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
