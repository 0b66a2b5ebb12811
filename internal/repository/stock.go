package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/idxstock/stockapi/internal/model"
)

// Common errors for stock repository operations.
var (
	ErrStockNotFound = errors.New("stock not found")
	ErrStockExists   = errors.New("stock symbol already exists")
	ErrInvalidSort   = errors.New("invalid sort column")
)

// stockSortColumns whitelists sortable columns by API name.
var stockSortColumns = map[string]string{
	model.SortSymbol:        "symbol",
	model.SortName:          "name",
	model.SortPrice:         "price",
	model.SortChangePercent: "change_percent",
	model.SortVolume:        "volume",
	model.SortValue:         "value",
	model.SortMarketCap:     "market_cap",
}

// StockListParams selects a page of stocks.
type StockListParams struct {
	Limit  int
	Offset int
	Sort   string
	Desc   bool
}

const stockColumns = `
	id, symbol, name, sector, subsector,
	price, open, high, low, close, change, change_percent,
	volume, value, market_cap, shares, foreign_buy, foreign_sell,
	last_update, created_at`

func scanStock(row pgx.Row) (*model.Stock, error) {
	var s model.Stock
	err := row.Scan(
		&s.ID, &s.Symbol, &s.Name, &s.Sector, &s.Subsector,
		&s.Price, &s.Open, &s.High, &s.Low, &s.Close, &s.Change, &s.ChangePercent,
		(*int64)(&s.Volume), (*int64)(&s.Value), (*int64)(&s.MarketCap),
		(*int64)(&s.Shares), (*int64)(&s.ForeignBuy), (*int64)(&s.ForeignSell),
		&s.LastUpdate, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectStocks(rows pgx.Rows) ([]*model.Stock, error) {
	defer rows.Close()

	stocks := make([]*model.Stock, 0)
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stocks: %w", err)
	}
	return stocks, nil
}

// ListStocks returns one page of stocks ordered by the requested column.
func (r *Repository) ListStocks(ctx context.Context, p StockListParams) ([]*model.Stock, error) {
	if p.Limit <= 0 || p.Offset < 0 {
		return nil, ErrInvalidPaging
	}
	col, ok := stockSortColumns[p.Sort]
	if !ok {
		return nil, ErrInvalidSort
	}
	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM stocks ORDER BY %s %s, symbol ASC LIMIT $1 OFFSET $2`, stockColumns, col, dir)
	rows, err := r.pool.Query(ctx, query, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	return collectStocks(rows)
}

// ListStocksNewest returns all stocks, most recently created first.
func (r *Repository) ListStocksNewest(ctx context.Context) ([]*model.Stock, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stockColumns+` FROM stocks ORDER BY created_at DESC, symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	return collectStocks(rows)
}

// CountStocks returns the number of stocks.
func (r *Repository) CountStocks(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stocks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count stocks: %w", err)
	}
	return n, nil
}

// SearchStocks matches the upper-cased query as a symbol substring or the
// raw query as a case-insensitive name substring.
func (r *Repository) SearchStocks(ctx context.Context, q string, limit int) ([]*model.Stock, error) {
	if limit <= 0 {
		return nil, ErrInvalidPaging
	}

	pattern := "%" + escapeLike(q) + "%"
	query := `SELECT ` + stockColumns + `
		FROM stocks
		WHERE symbol LIKE UPPER($1) OR name ILIKE $1
		ORDER BY symbol ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search stocks: %w", err)
	}
	return collectStocks(rows)
}

// escapeLike escapes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// GetStockBySymbol retrieves a stock by exact upper-case symbol.
func (r *Repository) GetStockBySymbol(ctx context.Context, symbol string) (*model.Stock, error) {
	return r.getStock(ctx, `SELECT `+stockColumns+` FROM stocks WHERE symbol = $1`, symbol)
}

// GetStockByID retrieves a stock by ID.
func (r *Repository) GetStockByID(ctx context.Context, id string) (*model.Stock, error) {
	return r.getStock(ctx, `SELECT `+stockColumns+` FROM stocks WHERE id = $1`, id)
}

func (r *Repository) getStock(ctx context.Context, query, arg string) (*model.Stock, error) {
	s, err := scanStock(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStockNotFound
		}
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return s, nil
}

// CreateStock inserts a new stock.
func (r *Repository) CreateStock(ctx context.Context, s *model.Stock) error {
	query := `
		INSERT INTO stocks (` + stockColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err := r.pool.Exec(ctx, query, stockArgs(s)...)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrStockExists
		}
		return fmt.Errorf("failed to create stock: %w", err)
	}
	return nil
}

// UpsertStock inserts a stock or refreshes its quote when the symbol exists.
// The stored ID is written back to s.
func (r *Repository) UpsertStock(ctx context.Context, s *model.Stock) error {
	query := `
		INSERT INTO stocks (` + stockColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			sector = EXCLUDED.sector,
			subsector = EXCLUDED.subsector,
			price = EXCLUDED.price,
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			change = EXCLUDED.change,
			change_percent = EXCLUDED.change_percent,
			volume = EXCLUDED.volume,
			value = EXCLUDED.value,
			market_cap = EXCLUDED.market_cap,
			shares = EXCLUDED.shares,
			foreign_buy = EXCLUDED.foreign_buy,
			foreign_sell = EXCLUDED.foreign_sell,
			last_update = EXCLUDED.last_update
		RETURNING id
	`
	if err := r.pool.QueryRow(ctx, query, stockArgs(s)...).Scan(&s.ID); err != nil {
		return fmt.Errorf("failed to upsert stock: %w", err)
	}
	return nil
}

func stockArgs(s *model.Stock) []any {
	return []any{
		s.ID, s.Symbol, s.Name, s.Sector, s.Subsector,
		numeric(s.Price), numeric(s.Open), numeric(s.High), numeric(s.Low),
		numeric(s.Close), numeric(s.Change), numeric(s.ChangePercent),
		int64(s.Volume), int64(s.Value), int64(s.MarketCap),
		int64(s.Shares), int64(s.ForeignBuy), int64(s.ForeignSell),
		s.LastUpdate, s.CreatedAt,
	}
}

// numeric passes a decimal as text so Postgres parses it without float
// conversion.
func numeric(d decimal.Decimal) string {
	return d.String()
}

// UpdateStock applies the non-nil fields of u and refreshes last_update.
func (r *Repository) UpdateStock(ctx context.Context, id string, u *model.StockUpdate, now time.Time) (*model.Stock, error) {
	sets := make([]string, 0, 18)
	args := []any{id}
	argIndex := 2

	set := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIndex))
		args = append(args, v)
		argIndex++
	}

	if u.Symbol != nil {
		set("symbol", *u.Symbol)
	}
	if u.Name != nil {
		set("name", *u.Name)
	}
	if u.Sector != nil {
		set("sector", *u.Sector)
	}
	if u.Subsector != nil {
		set("subsector", *u.Subsector)
	}
	if u.Price != nil {
		set("price", numeric(*u.Price))
	}
	if u.Open != nil {
		set("open", numeric(*u.Open))
	}
	if u.High != nil {
		set("high", numeric(*u.High))
	}
	if u.Low != nil {
		set("low", numeric(*u.Low))
	}
	if u.Close != nil {
		set("close", numeric(*u.Close))
	}
	if u.Change != nil {
		set("change", numeric(*u.Change))
	}
	if u.ChangePercent != nil {
		set("change_percent", numeric(*u.ChangePercent))
	}
	if u.Volume != nil {
		set("volume", int64(*u.Volume))
	}
	if u.Value != nil {
		set("value", int64(*u.Value))
	}
	if u.MarketCap != nil {
		set("market_cap", int64(*u.MarketCap))
	}
	if u.Shares != nil {
		set("shares", int64(*u.Shares))
	}
	if u.ForeignBuy != nil {
		set("foreign_buy", int64(*u.ForeignBuy))
	}
	if u.ForeignSell != nil {
		set("foreign_sell", int64(*u.ForeignSell))
	}
	set("last_update", now)

	query := `UPDATE stocks SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + stockColumns

	s, err := scanStock(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStockNotFound
		}
		if _, ok := uniqueViolation(err); ok {
			return nil, ErrStockExists
		}
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}
	return s, nil
}

// DeleteStock removes a stock and, by cascade, its history.
// It returns the deleted record.
func (r *Repository) DeleteStock(ctx context.Context, id string) (*model.Stock, error) {
	s, err := scanStock(r.pool.QueryRow(ctx, `DELETE FROM stocks WHERE id = $1 RETURNING `+stockColumns, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStockNotFound
		}
		return nil, fmt.Errorf("failed to delete stock: %w", err)
	}
	return s, nil
}

// MarketSummary aggregates the latest quote of every stock.
func (r *Repository) MarketSummary(ctx context.Context) (*model.MarketSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE change_percent > 0),
			COUNT(*) FILTER (WHERE change_percent < 0),
			COUNT(*) FILTER (WHERE change_percent = 0),
			COALESCE(SUM(volume), 0)::BIGINT,
			COALESCE(SUM(value), 0)::BIGINT,
			COALESCE(SUM(foreign_buy), 0)::BIGINT,
			COALESCE(SUM(foreign_sell), 0)::BIGINT,
			COALESCE(SUM(market_cap), 0)::BIGINT,
			COALESCE(MAX(last_update), NOW())
		FROM stocks
	`

	var m model.MarketSummary
	err := r.pool.QueryRow(ctx, query).Scan(
		&m.TotalStocks, &m.Advancing, &m.Declining, &m.Unchanged,
		(*int64)(&m.TotalVolume), (*int64)(&m.TotalValue),
		(*int64)(&m.ForeignBuy), (*int64)(&m.ForeignSell),
		(*int64)(&m.TotalMarketCap), &m.LastUpdate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize market: %w", err)
	}
	m.ForeignNet = m.ForeignBuy - m.ForeignSell
	return &m, nil
}
