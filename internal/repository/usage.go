package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/idxstock/stockapi/internal/model"
)

// InsertUsage bulk-inserts usage records. Records are idempotent by ID so
// redelivered stream entries are ignored.
func (r *Repository) InsertUsage(ctx context.Context, records []*model.APIUsage) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO api_usage (id, user_id, endpoint, method, status_code, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, u := range records {
		batch.Queue(query, u.ID, u.UserID, u.Endpoint, u.Method, u.StatusCode, u.Timestamp)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert usage %d: %w", i, err)
		}
	}
	return nil
}

// CountUsage returns the number of audited calls.
func (r *Repository) CountUsage(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM api_usage`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return n, nil
}

// RecentUsage returns the latest usage records with their owners.
func (r *Repository) RecentUsage(ctx context.Context, limit int) ([]*model.UsageWithUser, error) {
	if limit <= 0 {
		return nil, ErrInvalidPaging
	}

	query := `
		SELECT a.id, a.user_id, a.endpoint, a.method, a.status_code, a.timestamp, u.name, u.email
		FROM api_usage a
		JOIN users u ON u.id = a.user_id
		ORDER BY a.timestamp DESC, a.id DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent usage: %w", err)
	}
	defer rows.Close()

	out := make([]*model.UsageWithUser, 0, limit)
	for rows.Next() {
		var u model.UsageWithUser
		if err := rows.Scan(
			&u.ID, &u.UserID, &u.Endpoint, &u.Method, &u.StatusCode, &u.Timestamp, &u.UserName, &u.UserEmail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}
