package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/idxstock/stockapi/internal/events"
	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/repository"
)

// Listing limits.
const (
	DefaultStockLimit  = 50
	MaxStockLimit      = 100
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
	minQueryLength     = 2
	eventPublishWait   = 2 * time.Second
)

// StockService serves market data and administrative stock changes.
type StockService struct {
	stocks StockStore
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewStockService creates a StockService. A nil publisher disables events.
func NewStockService(stocks StockStore, publisher events.Publisher, logger *slog.Logger) *StockService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &StockService{
		stocks: stocks,
		events: publisher,
		logger: logger.With("component", "stocks"),
		now:    time.Now,
	}
}

// ListStocksInput selects a page of stocks.
type ListStocksInput struct {
	Page  int
	Limit int
	Sort  string
	Desc  bool
}

// StockPage is one page of stocks.
type StockPage struct {
	Stocks []*model.Stock
	Page
}

// List returns a page of stocks. Limit is clamped to MaxStockLimit.
func (s *StockService) List(ctx context.Context, in ListStocksInput) (*StockPage, error) {
	if in.Page < 1 || in.Limit < 1 {
		return nil, ErrInvalidPage
	}
	if in.Limit > MaxStockLimit {
		in.Limit = MaxStockLimit
	}
	if in.Sort == "" {
		in.Sort = model.SortSymbol
	}
	offset, err := pageOffset(in.Page, in.Limit)
	if err != nil {
		return nil, err
	}

	stocks, err := s.stocks.ListStocks(ctx, repository.StockListParams{
		Limit:  in.Limit,
		Offset: offset,
		Sort:   in.Sort,
		Desc:   in.Desc,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidSort) {
			return nil, ErrInvalidSort
		}
		return nil, fmt.Errorf("list stocks: %w", err)
	}

	total, err := s.stocks.CountStocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count stocks: %w", err)
	}

	return &StockPage{Stocks: stocks, Page: newPage(total, in.Page, in.Limit)}, nil
}

// Get returns a stock by symbol, case-insensitively.
func (s *StockService) Get(ctx context.Context, symbol string) (*model.Stock, error) {
	stock, err := s.stocks.GetStockBySymbol(ctx, normalizeSymbol(symbol))
	if err != nil {
		if errors.Is(err, repository.ErrStockNotFound) {
			return nil, ErrStockNotFound
		}
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return stock, nil
}

// Search matches q against symbols and names. Limit is clamped to
// MaxSearchLimit.
func (s *StockService) Search(ctx context.Context, q string, limit int) ([]*model.Stock, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrMissingQuery
	}
	if utf8.RuneCountInString(q) < minQueryLength {
		return nil, ErrInvalidQuery
	}
	if limit < 1 {
		return nil, ErrInvalidPage
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	stocks, err := s.stocks.SearchStocks(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search stocks: %w", err)
	}
	return stocks, nil
}

// HistoryInput selects a date range of daily bars.
type HistoryInput struct {
	From     time.Time
	To       time.Time
	Interval string
}

// History is the daily series of one stock.
type History struct {
	Symbol   string                `json:"symbol"`
	Interval string                `json:"interval"`
	Prices   []*model.StockHistory `json:"prices"`
}

// History returns the bars of symbol within [From, To], oldest first.
func (s *StockService) History(ctx context.Context, symbol string, in HistoryInput) (*History, error) {
	if in.Interval == "" {
		in.Interval = model.IntervalDaily
	}
	if in.Interval != model.IntervalDaily {
		return nil, ErrInvalidInterval
	}
	if in.From.After(in.To) {
		return nil, ErrInvalidDateRange
	}

	stock, err := s.Get(ctx, symbol)
	if err != nil {
		return nil, err
	}

	bars, err := s.stocks.ListHistory(ctx, stock.ID, in.From, in.To)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return &History{Symbol: stock.Symbol, Interval: in.Interval, Prices: bars}, nil
}

// MarketSummary aggregates the latest quotes.
func (s *StockService) MarketSummary(ctx context.Context) (*model.MarketSummary, error) {
	summary, err := s.stocks.MarketSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("market summary: %w", err)
	}
	return summary, nil
}

// ListAll returns every stock, newest first.
func (s *StockService) ListAll(ctx context.Context) ([]*model.Stock, error) {
	stocks, err := s.stocks.ListStocksNewest(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	return stocks, nil
}

// CreateStockInput defines input for creating a stock. Nil prices default to
// Price; nil change fields and counts default to zero.
type CreateStockInput struct {
	Symbol        string
	Name          string
	Sector        string
	Subsector     string
	Price         *decimal.Decimal
	Open          *decimal.Decimal
	High          *decimal.Decimal
	Low           *decimal.Decimal
	Close         *decimal.Decimal
	Change        *decimal.Decimal
	ChangePercent *decimal.Decimal
	Volume        model.BigInt
	Value         model.BigInt
	MarketCap     model.BigInt
	Shares        model.BigInt
	ForeignBuy    model.BigInt
	ForeignSell   model.BigInt
}

// Create adds a stock. Change and ChangePercent are stored as supplied.
func (s *StockService) Create(ctx context.Context, actor string, in CreateStockInput) (*model.Stock, error) {
	symbol := normalizeSymbol(in.Symbol)
	name := strings.TrimSpace(in.Name)
	if symbol == "" || name == "" || in.Price == nil {
		return nil, ErrMissingFields
	}

	price := *in.Price
	orPrice := func(d *decimal.Decimal) decimal.Decimal {
		if d == nil {
			return price
		}
		return *d
	}
	orZero := func(d *decimal.Decimal) decimal.Decimal {
		if d == nil {
			return decimal.Zero
		}
		return *d
	}

	now := s.now().UTC()
	stock := &model.Stock{
		ID:            ulid.Make().String(),
		Symbol:        symbol,
		Name:          name,
		Sector:        strings.TrimSpace(in.Sector),
		Subsector:     strings.TrimSpace(in.Subsector),
		Price:         price,
		Open:          orPrice(in.Open),
		High:          orPrice(in.High),
		Low:           orPrice(in.Low),
		Close:         orPrice(in.Close),
		Change:        orZero(in.Change),
		ChangePercent: orZero(in.ChangePercent),
		Volume:        in.Volume,
		Value:         in.Value,
		MarketCap:     in.MarketCap,
		Shares:        in.Shares,
		ForeignBuy:    in.ForeignBuy,
		ForeignSell:   in.ForeignSell,
		LastUpdate:    now,
		CreatedAt:     now,
	}

	if err := s.stocks.CreateStock(ctx, stock); err != nil {
		if errors.Is(err, repository.ErrStockExists) {
			return nil, ErrStockExists
		}
		return nil, fmt.Errorf("create stock: %w", err)
	}

	s.logger.Info("stock created", "symbol", stock.Symbol, "actor", actor)
	s.publish(ctx, events.StockCreated, actor, stock)
	return stock, nil
}

// Update applies an explicit partial update.
func (s *StockService) Update(ctx context.Context, actor, id string, u *model.StockUpdate) (*model.Stock, error) {
	if u == nil || u.IsEmpty() {
		return nil, ErrEmptyUpdate
	}
	if u.Symbol != nil {
		sym := normalizeSymbol(*u.Symbol)
		if sym == "" {
			return nil, ErrMissingFields
		}
		u.Symbol = &sym
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, ErrMissingFields
		}
		u.Name = &name
	}

	stock, err := s.stocks.UpdateStock(ctx, id, u, s.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStockNotFound):
			return nil, ErrStockNotFound
		case errors.Is(err, repository.ErrStockExists):
			return nil, ErrStockExists
		}
		return nil, fmt.Errorf("update stock: %w", err)
	}

	s.logger.Info("stock updated", "symbol", stock.Symbol, "actor", actor)
	s.publish(ctx, events.StockUpdated, actor, stock)
	return stock, nil
}

// Delete removes a stock and its history.
func (s *StockService) Delete(ctx context.Context, actor, id string) error {
	stock, err := s.stocks.DeleteStock(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStockNotFound) {
			return ErrStockNotFound
		}
		return fmt.Errorf("delete stock: %w", err)
	}

	s.logger.Info("stock deleted", "symbol", stock.Symbol, "actor", actor)
	s.publish(ctx, events.StockDeleted, actor, &model.Stock{ID: stock.ID, Symbol: stock.Symbol})
	return nil
}

// publish emits a change event. The database change has already committed,
// so a delivery failure is logged rather than returned.
func (s *StockService) publish(ctx context.Context, eventType, actor string, stock *model.Stock) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishWait)
	defer cancel()

	ev := events.StockEvent{
		EventType: eventType,
		Symbol:    stock.Symbol,
		StockID:   stock.ID,
		Actor:     actor,
		Timestamp: s.now().UTC(),
	}
	if eventType != events.StockDeleted {
		ev.Stock = stock
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish stock event", "type", eventType, "symbol", stock.Symbol, "error", err)
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
