package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/idxstock/stockapi/internal/quota"
)

// consumeQuotaQuery checks and increments the counters in one statement.
// Counters whose period began after last_reset count as zero. Under
// READ COMMITTED a concurrent update of the same row makes this statement
// re-check the WHERE clause against the committed row, so admission never
// overshoots a ceiling.
const consumeQuotaQuery = `
	UPDATE users SET
		daily_calls   = (CASE WHEN last_reset < $2 THEN 0 ELSE daily_calls END) + 1,
		monthly_calls = (CASE WHEN last_reset < $3 THEN 0 ELSE monthly_calls END) + 1,
		api_calls     = api_calls + 1,
		last_reset    = CASE WHEN last_reset < $2 THEN $4 ELSE last_reset END,
		updated_at    = $4
	WHERE id = $1
	  AND (NOT $5::boolean OR (
		(daily_quota = 0 OR (CASE WHEN last_reset < $2 THEN 0 ELSE daily_calls END) < daily_quota)
		AND
		(monthly_quota = 0 OR (CASE WHEN last_reset < $3 THEN 0 ELSE monthly_calls END) < monthly_quota)
	  ))
	RETURNING api_calls, daily_calls, monthly_calls, daily_quota, monthly_quota
`

const peekQuotaQuery = `
	SELECT api_calls,
		CASE WHEN last_reset < $2 THEN 0 ELSE daily_calls END,
		CASE WHEN last_reset < $3 THEN 0 ELSE monthly_calls END,
		daily_quota, monthly_quota
	FROM users
	WHERE id = $1
`

// ConsumeQuota implements quota.Store.
func (r *Repository) ConsumeQuota(ctx context.Context, userID string, w quota.Window, now time.Time, enforce bool) (*quota.Usage, error) {
	u := &quota.Usage{UserID: userID}

	err := r.pool.QueryRow(ctx, consumeQuotaQuery, userID, w.DayStart, w.MonthStart, now, enforce).Scan(
		&u.APICalls, &u.DailyCalls, &u.MonthlyCalls, &u.DailyQuota, &u.MonthlyQuota,
	)
	if err == nil {
		u.Admitted = true
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to consume quota: %w", err)
	}

	// Nothing updated: either the user is gone or a window is full.
	err = r.pool.QueryRow(ctx, peekQuotaQuery, userID, w.DayStart, w.MonthStart).Scan(
		&u.APICalls, &u.DailyCalls, &u.MonthlyCalls, &u.DailyQuota, &u.MonthlyQuota,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to read quota: %w", err)
	}
	return u, nil
}
