package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/quota"
	"github.com/idxstock/stockapi/internal/repository"
)

// MemoryStore is an in-process stand-in for the Postgres repository.
// It mirrors the repository's error values and quota semantics.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]*model.User
	stocks  map[string]*model.Stock
	history map[string][]*model.StockHistory
	usage   []*model.APIUsage
	usageID map[string]struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*model.User),
		stocks:  make(map[string]*model.Stock),
		history: make(map[string][]*model.StockHistory),
		usageID: make(map[string]struct{}),
	}
}

func copyUser(u *model.User) *model.User {
	c := *u
	if u.APIKey != nil {
		k := *u.APIKey
		c.APIKey = &k
	}
	return &c
}

func copyStock(s *model.Stock) *model.Stock {
	c := *s
	return &c
}

// CreateUser inserts a user.
func (m *MemoryStore) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
		if user.APIKey != nil && u.APIKey != nil && *u.APIKey == *user.APIKey {
			return repository.ErrAPIKeyExists
		}
	}
	m.users[user.ID] = copyUser(user)
	return nil
}

// GetUserByID retrieves a user by ID.
func (m *MemoryStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return m.findUser(func(u *model.User) bool { return u.ID == id })
}

// GetUserByEmail retrieves a user by email.
func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return m.findUser(func(u *model.User) bool { return u.Email == email })
}

// GetUserByAPIKey retrieves the owner of key.
func (m *MemoryStore) GetUserByAPIKey(_ context.Context, key string) (*model.User, error) {
	return m.findUser(func(u *model.User) bool { return u.APIKey != nil && *u.APIKey == key })
}

func (m *MemoryStore) findUser(match func(*model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// APIKeyExists reports whether any user holds key.
func (m *MemoryStore) APIKeyExists(ctx context.Context, key string) (bool, error) {
	_, err := m.GetUserByAPIKey(ctx, key)
	return err == nil, nil
}

// UpdateUserAPIKey replaces a user's key and returns the previous one.
func (m *MemoryStore) UpdateUserAPIKey(_ context.Context, userID, key string) (*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	for _, other := range m.users {
		if other.ID != userID && other.APIKey != nil && *other.APIKey == key {
			return nil, repository.ErrAPIKeyExists
		}
	}
	previous := u.APIKey
	u.APIKey = &key
	return previous, nil
}

// SetUser overwrites a stored user, for arranging quota and role fixtures.
func (m *MemoryStore) SetUser(user *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = copyUser(user)
}

// ListUsers returns users newest first.
func (m *MemoryStore) ListUsers(_ context.Context, limit, offset int) ([]*model.User, error) {
	if limit <= 0 || offset < 0 {
		return nil, repository.ErrInvalidPaging
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*model.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, copyUser(u))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return page(all, limit, offset), nil
}

// CountUsers returns the number of users.
func (m *MemoryStore) CountUsers(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

// CountUsersByPlan counts users per plan.
func (m *MemoryStore) CountUsersByPlan(context.Context) (map[model.Plan]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.Plan]int64)
	for _, u := range m.users {
		out[u.Plan]++
	}
	return out, nil
}

// ConsumeQuota implements quota.Store with the same reset and admission
// rules as the SQL statement.
func (m *MemoryStore) ConsumeQuota(_ context.Context, userID string, w quota.Window, now time.Time, enforce bool) (*quota.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	daily, monthly := u.DailyCalls, u.MonthlyCalls
	if u.LastReset.Before(w.DayStart) {
		daily = 0
	}
	if u.LastReset.Before(w.MonthStart) {
		monthly = 0
	}

	usage := &quota.Usage{
		UserID:       userID,
		APICalls:     u.APICalls,
		DailyCalls:   daily,
		MonthlyCalls: monthly,
		DailyQuota:   u.DailyQuota,
		MonthlyQuota: u.MonthlyQuota,
	}

	if enforce {
		if (u.DailyQuota > 0 && daily >= u.DailyQuota) || (u.MonthlyQuota > 0 && monthly >= u.MonthlyQuota) {
			return usage, nil
		}
	}

	if u.LastReset.Before(w.DayStart) {
		u.LastReset = now
	}
	u.DailyCalls = daily + 1
	u.MonthlyCalls = monthly + 1
	u.APICalls++

	usage.Admitted = true
	usage.APICalls = u.APICalls
	usage.DailyCalls = u.DailyCalls
	usage.MonthlyCalls = u.MonthlyCalls
	return usage, nil
}

// ListStocks returns one page ordered by the requested column.
func (m *MemoryStore) ListStocks(_ context.Context, p repository.StockListParams) ([]*model.Stock, error) {
	if p.Limit <= 0 || p.Offset < 0 {
		return nil, repository.ErrInvalidPaging
	}
	less, ok := stockLess[p.Sort]
	if !ok {
		return nil, repository.ErrInvalidSort
	}

	all := m.allStocks()
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if p.Desc {
			a, b = b, a
		}
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return all[i].Symbol < all[j].Symbol
	})
	return page(all, p.Limit, p.Offset), nil
}

var stockLess = map[string]func(a, b *model.Stock) bool{
	model.SortSymbol:        func(a, b *model.Stock) bool { return a.Symbol < b.Symbol },
	model.SortName:          func(a, b *model.Stock) bool { return a.Name < b.Name },
	model.SortPrice:         func(a, b *model.Stock) bool { return a.Price.LessThan(b.Price) },
	model.SortChangePercent: func(a, b *model.Stock) bool { return a.ChangePercent.LessThan(b.ChangePercent) },
	model.SortVolume:        func(a, b *model.Stock) bool { return a.Volume < b.Volume },
	model.SortValue:         func(a, b *model.Stock) bool { return a.Value < b.Value },
	model.SortMarketCap:     func(a, b *model.Stock) bool { return a.MarketCap < b.MarketCap },
}

func (m *MemoryStore) allStocks() []*model.Stock {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*model.Stock, 0, len(m.stocks))
	for _, s := range m.stocks {
		all = append(all, copyStock(s))
	}
	return all
}

// ListStocksNewest returns all stocks, newest first.
func (m *MemoryStore) ListStocksNewest(context.Context) ([]*model.Stock, error) {
	all := m.allStocks()
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Symbol < all[j].Symbol
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

// CountStocks returns the number of stocks.
func (m *MemoryStore) CountStocks(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.stocks)), nil
}

// SearchStocks matches symbols and names by substring.
func (m *MemoryStore) SearchStocks(_ context.Context, q string, limit int) ([]*model.Stock, error) {
	if limit <= 0 {
		return nil, repository.ErrInvalidPaging
	}
	upper, lower := strings.ToUpper(q), strings.ToLower(q)

	var out []*model.Stock
	for _, s := range m.allStocks() {
		if strings.Contains(s.Symbol, upper) || strings.Contains(strings.ToLower(s.Name), lower) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return page(out, limit, 0), nil
}

// GetStockBySymbol retrieves a stock by exact symbol.
func (m *MemoryStore) GetStockBySymbol(_ context.Context, symbol string) (*model.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stocks {
		if s.Symbol == symbol {
			return copyStock(s), nil
		}
	}
	return nil, repository.ErrStockNotFound
}

// GetStockByID retrieves a stock by ID.
func (m *MemoryStore) GetStockByID(_ context.Context, id string) (*model.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stocks[id]
	if !ok {
		return nil, repository.ErrStockNotFound
	}
	return copyStock(s), nil
}

// CreateStock inserts a stock.
func (m *MemoryStore) CreateStock(_ context.Context, s *model.Stock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.stocks {
		if existing.Symbol == s.Symbol {
			return repository.ErrStockExists
		}
	}
	m.stocks[s.ID] = copyStock(s)
	return nil
}

// UpdateStock applies a partial update.
func (m *MemoryStore) UpdateStock(_ context.Context, id string, u *model.StockUpdate, now time.Time) (*model.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stocks[id]
	if !ok {
		return nil, repository.ErrStockNotFound
	}
	if u.Symbol != nil {
		for _, other := range m.stocks {
			if other.ID != id && other.Symbol == *u.Symbol {
				return nil, repository.ErrStockExists
			}
		}
	}

	next := copyStock(s)
	setString(&next.Symbol, u.Symbol)
	setString(&next.Name, u.Name)
	setString(&next.Sector, u.Sector)
	setString(&next.Subsector, u.Subsector)
	if u.Price != nil {
		next.Price = *u.Price
	}
	if u.Open != nil {
		next.Open = *u.Open
	}
	if u.High != nil {
		next.High = *u.High
	}
	if u.Low != nil {
		next.Low = *u.Low
	}
	if u.Close != nil {
		next.Close = *u.Close
	}
	if u.Change != nil {
		next.Change = *u.Change
	}
	if u.ChangePercent != nil {
		next.ChangePercent = *u.ChangePercent
	}
	setBigInt(&next.Volume, u.Volume)
	setBigInt(&next.Value, u.Value)
	setBigInt(&next.MarketCap, u.MarketCap)
	setBigInt(&next.Shares, u.Shares)
	setBigInt(&next.ForeignBuy, u.ForeignBuy)
	setBigInt(&next.ForeignSell, u.ForeignSell)
	next.LastUpdate = now

	m.stocks[id] = next
	return copyStock(next), nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBigInt(dst *model.BigInt, src *model.BigInt) {
	if src != nil {
		*dst = *src
	}
}

// DeleteStock removes a stock and its history.
func (m *MemoryStore) DeleteStock(_ context.Context, id string) (*model.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stocks[id]
	if !ok {
		return nil, repository.ErrStockNotFound
	}
	delete(m.stocks, id)
	delete(m.history, id)
	return s, nil
}

// InsertHistory stores bars, skipping dates that already exist.
func (m *MemoryStore) InsertHistory(_ context.Context, bars []*model.StockHistory) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var inserted int64
	for _, b := range bars {
		dup := false
		for _, existing := range m.history[b.StockID] {
			if existing.Date.Equal(b.Date) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		c := *b
		m.history[b.StockID] = append(m.history[b.StockID], &c)
		inserted++
	}
	return inserted, nil
}

// ListHistory returns bars in [from, to], oldest first.
func (m *MemoryStore) ListHistory(_ context.Context, stockID string, from, to time.Time) ([]*model.StockHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.StockHistory, 0)
	for _, b := range m.history[stockID] {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		c := *b
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// MarketSummary aggregates all stored quotes.
func (m *MemoryStore) MarketSummary(context.Context) (*model.MarketSummary, error) {
	var sum model.MarketSummary
	for _, s := range m.allStocks() {
		sum.TotalStocks++
		switch s.ChangePercent.Sign() {
		case 1:
			sum.Advancing++
		case -1:
			sum.Declining++
		default:
			sum.Unchanged++
		}
		sum.TotalVolume += s.Volume
		sum.TotalValue += s.Value
		sum.ForeignBuy += s.ForeignBuy
		sum.ForeignSell += s.ForeignSell
		sum.TotalMarketCap += s.MarketCap
		if s.LastUpdate.After(sum.LastUpdate) {
			sum.LastUpdate = s.LastUpdate
		}
	}
	sum.ForeignNet = sum.ForeignBuy - sum.ForeignSell
	return &sum, nil
}

// InsertUsage stores records, ignoring duplicate IDs.
func (m *MemoryStore) InsertUsage(_ context.Context, records []*model.APIUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if _, ok := m.usageID[r.ID]; ok {
			continue
		}
		m.usageID[r.ID] = struct{}{}
		c := *r
		m.usage = append(m.usage, &c)
	}
	return nil
}

// CountUsage returns the number of stored usage records.
func (m *MemoryStore) CountUsage(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.usage)), nil
}

// RecentUsage returns the newest records joined with their owners.
func (m *MemoryStore) RecentUsage(_ context.Context, limit int) ([]*model.UsageWithUser, error) {
	if limit <= 0 {
		return nil, repository.ErrInvalidPaging
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.UsageWithUser, 0, len(m.usage))
	for _, r := range m.usage {
		u, ok := m.users[r.UserID]
		if !ok {
			continue
		}
		out = append(out, &model.UsageWithUser{APIUsage: *r, UserName: u.Name, UserEmail: u.Email})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return page(out, limit, 0), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
