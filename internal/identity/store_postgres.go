package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

func (s *PostgresStore) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, display_name, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.pool.Exec(ctx, query, user.ID, strings.ToLower(user.Email), user.DisplayName, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, email, display_name, created_at
		FROM users
		WHERE id = $1
	`
	return s.scanOne(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, display_name, created_at
		FROM users
		WHERE email = $1
	`
	return s.scanOne(s.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

func (s *PostgresStore) scanOne(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}
