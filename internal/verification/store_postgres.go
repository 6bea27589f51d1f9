package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"consentry/pkg/platform/sentinel"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// PostgresStore persists verification codes in PostgreSQL. It runs over either
// a *sql.DB or an open transaction, so PostgresTx can hand a tx-bound store to
// RunInTx callbacks.
type PostgresStore struct {
	db dbtx
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, code *Code) error {
	supersede := `
		UPDATE verification_codes
		SET status = 'expired'
		WHERE user_id = $1 AND purpose = $2 AND channel = $3 AND status = 'pending'
	`
	if _, err := s.db.ExecContext(ctx, supersede, code.ContactID, code.Purpose, code.Channel); err != nil {
		return fmt.Errorf("supersede pending codes: %w", err)
	}

	insert := `
		INSERT INTO verification_codes (id, user_id, code, channel, sent_to, purpose, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, insert,
		code.ID, code.ContactID, code.Code, code.Channel, code.SentTo, code.Purpose, code.Status, code.ExpiresAt, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create verification code: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindCurrent(ctx context.Context, contactID, codeValue string, channel Channel) (*Code, error) {
	query := `
		SELECT id, user_id, code, channel, sent_to, purpose, status, expires_at, verified_at, created_at
		FROM verification_codes
		WHERE user_id = $1 AND code = $2 AND status = 'pending' AND ($3 = '' OR channel = $3)
		ORDER BY expires_at DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, contactID, codeValue, string(channel))
	var c Code
	var verifiedAt sql.NullTime
	err := row.Scan(&c.ID, &c.ContactID, &c.Code, &c.Channel, &c.SentTo, &c.Purpose, &c.Status, &c.ExpiresAt, &verifiedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find verification code: %w", err)
	}
	if verifiedAt.Valid {
		c.VerifiedAt = &verifiedAt.Time
	}
	return &c, nil
}

func (s *PostgresStore) MarkVerified(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE verification_codes
		SET status = 'verified', verified_at = $2
		WHERE id = $1 AND status = 'pending'
	`
	return s.transition(ctx, query, id, at)
}

func (s *PostgresStore) MarkExpired(ctx context.Context, id string) error {
	query := `
		UPDATE verification_codes
		SET status = 'expired'
		WHERE id = $1 AND status = 'pending'
	`
	return s.transition(ctx, query, id)
}

func (s *PostgresStore) transition(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition verification code: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition verification code: %w", err)
	}
	if rows == 0 {
		// Row missing or no longer pending; either way the transition did
		// not happen.
		return sentinel.ErrInvalidState
	}
	return nil
}

// PostgresTx wraps verify-then-mint in a database transaction.
type PostgresTx struct {
	db *sql.DB
}

func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db}
}

func (t *PostgresTx) RunInTx(ctx context.Context, _ string, fn func(store Store) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PostgresStore{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
