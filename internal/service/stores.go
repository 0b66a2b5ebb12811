package service

import (
	"context"
	"math"
	"time"

	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/repository"
)

// UserStore is the user persistence used by AuthService.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByAPIKey(ctx context.Context, key string) (*model.User, error)
	APIKeyExists(ctx context.Context, key string) (bool, error)
	UpdateUserAPIKey(ctx context.Context, userID, key string) (*string, error)
}

// IdentityCache caches API key identities by key fingerprint.
type IdentityCache interface {
	GetIdentity(ctx context.Context, fingerprint string) (*model.Identity, error)
	SetIdentity(ctx context.Context, fingerprint string, id *model.Identity) error
	RevokeIdentity(ctx context.Context, fingerprint string) error
}

// StockStore is the stock persistence used by StockService.
type StockStore interface {
	ListStocks(ctx context.Context, p repository.StockListParams) ([]*model.Stock, error)
	ListStocksNewest(ctx context.Context) ([]*model.Stock, error)
	CountStocks(ctx context.Context) (int64, error)
	SearchStocks(ctx context.Context, q string, limit int) ([]*model.Stock, error)
	GetStockBySymbol(ctx context.Context, symbol string) (*model.Stock, error)
	GetStockByID(ctx context.Context, id string) (*model.Stock, error)
	CreateStock(ctx context.Context, s *model.Stock) error
	UpdateStock(ctx context.Context, id string, u *model.StockUpdate, now time.Time) (*model.Stock, error)
	DeleteStock(ctx context.Context, id string) (*model.Stock, error)
	ListHistory(ctx context.Context, stockID string, from, to time.Time) ([]*model.StockHistory, error)
	MarketSummary(ctx context.Context) (*model.MarketSummary, error)
}

// AdminStore is the read model used by AdminService.
type AdminStore interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*model.User, error)
	CountUsers(ctx context.Context) (int64, error)
	CountUsersByPlan(ctx context.Context) (map[model.Plan]int64, error)
	CountStocks(ctx context.Context) (int64, error)
	CountUsage(ctx context.Context) (int64, error)
	RecentUsage(ctx context.Context, limit int) ([]*model.UsageWithUser, error)
}

type noopIdentityCache struct{}

func (noopIdentityCache) GetIdentity(context.Context, string) (*model.Identity, error) {
	return nil, nil
}
func (noopIdentityCache) SetIdentity(context.Context, string, *model.Identity) error { return nil }
func (noopIdentityCache) RevokeIdentity(context.Context, string) error               { return nil }

// Page describes a page of a listing.
type Page struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	TotalPages int64 `json:"totalPages"`
}

func newPage(total int64, page, perPage int) Page {
	pages := int64(0)
	if perPage > 0 {
		pages = (total + int64(perPage) - 1) / int64(perPage)
	}
	return Page{Total: total, Page: page, PerPage: perPage, TotalPages: pages}
}

// pageOffset returns the row offset of page, rejecting pages whose offset
// would not fit in an int.
func pageOffset(page, limit int) (int, error) {
	if page < 1 || limit < 1 || page-1 > math.MaxInt/limit {
		return 0, ErrInvalidPage
	}
	return (page - 1) * limit, nil
}
