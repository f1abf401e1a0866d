package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const notificationColumns = `id, alert_id, user_id, channel, status, created_at, sent_at, delivered_at, read_at, deleted_at`

func (s *PostgresStore) Create(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, query,
		n.ID, n.AlertID, n.UserID, n.Channel, n.Status,
		n.CreatedAt, n.SentAt, n.DeliveredAt, n.ReadAt, n.DeletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	return scanNotification(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, n *Notification, prior Status) error {
	query := `
		UPDATE notifications
		SET status = $2, sent_at = $3, delivered_at = $4
		WHERE id = $1 AND status = $5
	`
	tag, err := s.pool.Exec(ctx, query,
		n.ID, n.Status, n.SentAt, n.DeliveredAt, prior)
	if err != nil {
		return fmt.Errorf("update notification status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or a concurrent transition got there first.
		if _, err := s.FindByID(ctx, n.ID); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) UpdateMarks(ctx context.Context, n *Notification) error {
	query := `
		UPDATE notifications
		SET read_at = $2, deleted_at = $3
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, n.ID, n.ReadAt, n.DeletedAt)
	if err != nil {
		return fmt.Errorf("update notification marks: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID uuid.UUID, page, size int) ([]Notification, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND deleted_at IS NULL`,
		userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.pool.Query(ctx, query, userID, size, (page-1)*size)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items, err := collectNotifications(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) ListQueued(ctx context.Context, channel Channel) ([]Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = 'QUEUED' AND deleted_at IS NULL
		  AND ($1 = '' OR channel = $1)
		ORDER BY created_at DESC
	`
	rows, err := s.pool.Query(ctx, query, string(channel))
	if err != nil {
		return nil, fmt.Errorf("list queued notifications: %w", err)
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (s *PostgresStore) CountUndelivered(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications
		WHERE user_id = $1 AND deleted_at IS NULL AND status IN ('QUEUED', 'SENT')
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count undelivered: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications
		WHERE user_id = $1 AND deleted_at IS NULL AND read_at IS NULL
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, userID uuid.UUID, readAt time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = $2
		WHERE user_id = $1 AND deleted_at IS NULL AND read_at IS NULL
	`, userID, readAt)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.AlertID, &n.UserID, &n.Channel, &n.Status,
		&n.CreatedAt, &n.SentAt, &n.DeliveredAt, &n.ReadAt, &n.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	return &n, nil
}

func collectNotifications(rows pgx.Rows) ([]Notification, error) {
	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.AlertID, &n.UserID, &n.Channel, &n.Status,
			&n.CreatedAt, &n.SentAt, &n.DeliveredAt, &n.ReadAt, &n.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
