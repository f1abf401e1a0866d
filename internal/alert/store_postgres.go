package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vigil/pkg/sentinel"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, a *Alert) error {
	query := `
		INSERT INTO alerts (id, created_by, category, title, description, latitude, longitude, anonymous, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		a.ID, a.CreatedBy, a.Category, a.Title, a.Description,
		a.Latitude, a.Longitude, a.Anonymous, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	query := `
		SELECT id, created_by, category, title, description, latitude, longitude, anonymous, created_at
		FROM alerts WHERE id = $1
	`
	var a Alert
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.CreatedBy, &a.Category, &a.Title, &a.Description,
		&a.Latitude, &a.Longitude, &a.Anonymous, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	return &a, nil
}
