package program

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"consentry/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *Program) error {
	query := `
		INSERT INTO programs (id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Program, error) {
	query := `SELECT id, name, status, created_at, updated_at FROM programs WHERE id = $1`
	var p Program
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find program: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *Program) error {
	query := `UPDATE programs SET name = $2, status = $3, updated_at = $4 WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.Status, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update program: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update program: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Program, error) {
	query := `SELECT id, name, status, created_at, updated_at FROM programs ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	var out []*Program
	for rows.Next() {
		var p Program
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return out, nil
}
