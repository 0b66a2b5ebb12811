package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/idxstock/stockapi/internal/model"
)

// ListHistory returns the daily bars of a stock with from <= date <= to,
// oldest first.
func (r *Repository) ListHistory(ctx context.Context, stockID string, from, to time.Time) ([]*model.StockHistory, error) {
	query := `
		SELECT id, stock_id, date, open, high, low, close, volume
		FROM stock_history
		WHERE stock_id = $1 AND date >= $2::date AND date <= $3::date
		ORDER BY date ASC
	`

	rows, err := r.pool.Query(ctx, query, stockID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	bars := make([]*model.StockHistory, 0)
	for rows.Next() {
		var h model.StockHistory
		if err := rows.Scan(
			&h.ID, &h.StockID, &h.Date, &h.Open, &h.High, &h.Low, &h.Close, (*int64)(&h.Volume),
		); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		bars = append(bars, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return bars, nil
}

// InsertHistory batch-inserts bars, skipping any (stock, date) already
// stored. It returns the number of rows inserted.
func (r *Repository) InsertHistory(ctx context.Context, bars []*model.StockHistory) (int64, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO stock_history (id, stock_id, date, open, high, low, close, volume)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8)
		ON CONFLICT (stock_id, date) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, h := range bars {
		batch.Queue(query,
			h.ID, h.StockID, h.Date,
			numeric(h.Open), numeric(h.High), numeric(h.Low), numeric(h.Close),
			int64(h.Volume),
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for i := range bars {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("batch insert bar %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}
