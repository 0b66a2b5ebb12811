// Package testutil provides shared fixtures for tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/idxstock/stockapi/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewRedisClient connects to REDIS_URL and empties the selected database.
// The test is skipped when REDIS_URL is unset and fails if Redis is
// unreachable.
func NewRedisClient(t testing.TB) *redis.Client {
	t.Helper()
	opt, err := redis.ParseURL(RequireEnv(t, "REDIS_URL"))
	if err != nil {
		t.Fatalf("parse REDIS_URL: %v", err)
	}
	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return client
}

// ProjectRoot walks up from this file to the directory holding go.mod.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("resolve testutil path")
	}
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no go.mod above %s", filepath.Dir(filename))
		}
		dir = parent
	}
}

// ============================================================================
// Test Data Factories
// ============================================================================

var seq atomic.Int64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// NewTestUser creates a user on plan with the plan's default quotas.
func NewTestUser(t testing.TB, plan model.Plan) *model.User {
	t.Helper()
	now := time.Now().UTC()
	id := UniqueID("user")
	limits := plan.Limits()
	return &model.User{
		ID:           id,
		Name:         "Test " + string(plan),
		Email:        id + "@example.com",
		PasswordHash: "unused",
		Role:         model.RoleUser,
		Plan:         plan,
		MonthlyQuota: limits.Monthly,
		DailyQuota:   limits.Daily,
		LastReset:    now,
		CreatedAt:    now,
	}
}

// NewTestStock creates a stock with a flat quote at price.
func NewTestStock(t testing.TB, symbol string, price int64) *model.Stock {
	t.Helper()
	now := time.Now().UTC()
	p := decimal.NewFromInt(price)
	return &model.Stock{
		ID:         UniqueID("stock"),
		Symbol:     symbol,
		Name:       symbol + " Tbk",
		Sector:     "Finance",
		Subsector:  "Banks",
		Price:      p,
		Open:       p,
		High:       p,
		Low:        p,
		Close:      p,
		Volume:     1_000_000,
		Value:      model.BigInt(price * 1_000_000),
		MarketCap:  model.BigInt(price * 10_000_000),
		Shares:     10_000_000,
		LastUpdate: now,
		CreatedAt:  now,
	}
}
