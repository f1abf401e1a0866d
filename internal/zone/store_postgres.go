package zone

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vigil/pkg/sentinel"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Put upserts on user_id so a user can never hold two zones.
func (s *PostgresStore) Put(ctx context.Context, zone *Zone) error {
	query := `
		INSERT INTO user_zones (id, user_id, center_lat, center_lon, radius_m, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			center_lat = EXCLUDED.center_lat,
			center_lon = EXCLUDED.center_lon,
			radius_m   = EXCLUDED.radius_m,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(ctx, query,
		zone.ID, zone.UserID, zone.CenterLat, zone.CenterLon, zone.RadiusM, zone.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert zone: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByUser(ctx context.Context, userID uuid.UUID) (*Zone, error) {
	query := `
		SELECT id, user_id, center_lat, center_lon, radius_m, updated_at
		FROM user_zones
		WHERE user_id = $1
	`
	var z Zone
	err := s.pool.QueryRow(ctx, query, userID).
		Scan(&z.ID, &z.UserID, &z.CenterLat, &z.CenterLon, &z.RadiusM, &z.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select zone: %w", err)
	}
	return &z, nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_zones WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete zone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) ([]Zone, error) {
	query := `
		SELECT id, user_id, center_lat, center_lon, radius_m, updated_at
		FROM user_zones
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()

	var out []Zone
	for rows.Next() {
		var z Zone
		if err := rows.Scan(&z.ID, &z.UserID, &z.CenterLat, &z.CenterLon, &z.RadiusM, &z.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}
