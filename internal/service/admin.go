package service

import (
	"context"
	"fmt"

	"github.com/idxstock/stockapi/internal/model"
)

// Admin listing limits.
const (
	DefaultUserLimit  = 20
	MaxUserLimit      = 100
	recentUsageWindow = 10
)

// AdminService serves administrator dashboards.
type AdminService struct {
	store AdminStore
}

// NewAdminService creates an AdminService.
func NewAdminService(store AdminStore) *AdminService {
	return &AdminService{store: store}
}

// UserPage is one page of users.
type UserPage struct {
	Users []model.UserSummary
	Page
}

// ListUsers returns users newest first.
func (s *AdminService) ListUsers(ctx context.Context, page, limit int) (*UserPage, error) {
	if page < 1 || limit < 1 {
		return nil, ErrInvalidPage
	}
	if limit > MaxUserLimit {
		limit = MaxUserLimit
	}

	offset, err := pageOffset(page, limit)
	if err != nil {
		return nil, err
	}

	users, err := s.store.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	total, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	summaries := make([]model.UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, u.Summary())
	}
	return &UserPage{Users: summaries, Page: newPage(total, page, limit)}, nil
}

// Stats aggregates users, stocks and recent API usage.
func (s *AdminService) Stats(ctx context.Context) (*model.AdminStats, error) {
	var (
		stats model.AdminStats
		err   error
	)

	if stats.TotalUsers, err = s.store.CountUsers(ctx); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if stats.TotalStocks, err = s.store.CountStocks(ctx); err != nil {
		return nil, fmt.Errorf("count stocks: %w", err)
	}
	if stats.TotalAPICalls, err = s.store.CountUsage(ctx); err != nil {
		return nil, fmt.Errorf("count usage: %w", err)
	}
	if stats.UsersByPlan, err = s.store.CountUsersByPlan(ctx); err != nil {
		return nil, fmt.Errorf("count users by plan: %w", err)
	}

	recent, err := s.store.RecentUsage(ctx, recentUsageWindow)
	if err != nil {
		return nil, fmt.Errorf("recent usage: %w", err)
	}
	stats.RecentUsage = make([]model.UsageWithUser, 0, len(recent))
	for _, r := range recent {
		stats.RecentUsage = append(stats.RecentUsage, *r)
	}
	return &stats, nil
}
