package main

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxstock/stockapi/internal/auth"
	"github.com/idxstock/stockapi/internal/model"
)

func TestDailyBars(t *testing.T) {
	stock := seedStocks[0].model()
	stock.ID = "stock-1"
	now := time.Date(2024, 3, 15, 17, 30, 0, 0, time.UTC)

	bars := dailyBars(stock, 8, now, rand.New(rand.NewPCG(1, 2)))
	require.Len(t, bars, 8)

	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), bars[7].Date)

	floor := stock.Price.Mul(one.Sub(decimal.NewFromFloat(0.05))).Mul(one.Sub(decimal.NewFromFloat(0.03))).Floor()
	ceil := stock.Price.Mul(one.Add(decimal.NewFromFloat(0.05))).Mul(one.Add(decimal.NewFromFloat(0.03))).Ceil()

	for _, b := range bars {
		assert.Equal(t, "stock-1", b.StockID)
		assert.NotEmpty(t, b.ID)
		assert.True(t, b.Low.LessThanOrEqual(b.Open), "low %s > open %s", b.Low, b.Open)
		assert.True(t, b.Open.LessThanOrEqual(b.High), "open %s > high %s", b.Open, b.High)
		assert.True(t, b.Low.LessThanOrEqual(b.Close), "low %s > close %s", b.Low, b.Close)
		assert.True(t, b.Close.LessThanOrEqual(b.High), "close %s > high %s", b.Close, b.High)
		assert.True(t, b.Low.GreaterThanOrEqual(floor))
		assert.True(t, b.High.LessThanOrEqual(ceil))
		assert.GreaterOrEqual(t, b.Volume.Int64(), int64(float64(stock.Volume)*0.7)-1)
		assert.LessOrEqual(t, b.Volume.Int64(), int64(float64(stock.Volume)*1.3)+1)
	}
}

func TestDailyBarsDeterministic(t *testing.T) {
	stock := seedStocks[1].model()
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	a := dailyBars(stock, 3, now, rand.New(rand.NewPCG(7, 7)))
	b := dailyBars(stock, 3, now, rand.New(rand.NewPCG(7, 7)))
	for i := range a {
		assert.True(t, a[i].Close.Equal(b[i].Close))
		assert.Equal(t, a[i].Volume, b[i].Volume)
	}
}

func TestNewUser(t *testing.T) {
	hasher := auth.NewPasswordHasher(auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, KeyLen: 32, SaltLen: 16})
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	admin, err := newUser(hasher, seedUsers[0], now)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)
	assert.Nil(t, admin.APIKey)
	assert.Zero(t, admin.DailyQuota)

	john, err := newUser(hasher, seedUsers[1], now)
	require.NoError(t, err)
	require.NotNil(t, john.APIKey)
	assert.True(t, auth.ValidateKeyFormat(*john.APIKey))
	assert.Equal(t, int64(1000), john.MonthlyQuota)
	assert.Equal(t, int64(100), john.DailyQuota)
	assert.Equal(t, now, john.LastReset)

	ok, err := hasher.Verify("user123", john.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSeedStocksAreConsistent(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range seedStocks {
		assert.False(t, seen[s.Symbol], "duplicate symbol %s", s.Symbol)
		seen[s.Symbol] = true

		m := s.model()
		assert.True(t, m.Low.LessThanOrEqual(m.High), s.Symbol)
		assert.True(t, m.Price.Equal(m.Close), s.Symbol)
	}
	assert.Len(t, seedStocks, 8)
}
