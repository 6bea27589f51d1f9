package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"consentry/pkg/platform/sentinel"
)

// PostgresStore persists contacts in PostgreSQL. Pure I/O — idempotent
// create-or-get orchestration lives in the service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c *Contact) error {
	query := `
		INSERT INTO contacts (id, encrypted_value, contact_type, status, opt_out_all, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		c.ID, c.EncryptedValue, c.Type, c.Status, c.OptOutAll, c.Comment, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	if rows == 0 {
		// The deterministic ID already exists: the expected collision path
		// under concurrent create-or-get, not a true error.
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Contact, error) {
	query := `
		SELECT id, encrypted_value, contact_type, status, opt_out_all, comment, created_at, updated_at
		FROM contacts
		WHERE id = $1
	`
	c, err := scanContact(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find contact: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Update(ctx context.Context, c *Contact) error {
	query := `
		UPDATE contacts
		SET status = $2, opt_out_all = $3, comment = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, c.ID, c.Status, c.OptOutAll, c.Comment, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*Contact, error) {
	var c Contact
	err := row.Scan(
		&c.ID, &c.EncryptedValue, &c.Type, &c.Status, &c.OptOutAll, &c.Comment, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
