// Command seed loads demo users, stocks and daily bars into the database.
// It is idempotent: existing users are left untouched and stocks are upserted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/idxstock/stockapi/internal/auth"
	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/repository"
)

type seededUser struct {
	Email   string     `json:"email"`
	Role    model.Role `json:"role"`
	Plan    model.Plan `json:"plan"`
	APIKey  string     `json:"apiKey,omitempty"`
	Created bool       `json:"created"`
}

type output struct {
	Users  []seededUser `json:"users"`
	Stocks int          `json:"stocks"`
	Bars   int64        `json:"bars"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "read .env:", err)
		os.Exit(1)
	}

	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		days        = flag.Int("days", 8, "Number of daily bars per stock, ending today")
		seed        = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed for generated bars")
		migrate     = flag.Bool("migrate", false, "Apply migrations before seeding")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	if *migrate {
		if err := repository.Migrate(*databaseURL); err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL, repository.Options{MaxConns: 4, ApplicationName: "stockapi-seed"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	out, err := run(ctx, repo, *days, rand.New(rand.NewPCG(*seed, *seed>>1)), time.Now().UTC())
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	switch strings.ToLower(*format) {
	case "plain":
		for _, u := range out.Users {
			status := "exists"
			if u.Created {
				status = "created"
			}
			fmt.Printf("user %-22s %-6s %-10s %s %s\n", u.Email, u.Role, u.Plan, status, u.APIKey)
		}
		fmt.Printf("stocks: %d, bars inserted: %d\n", out.Stocks, out.Bars)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

func run(ctx context.Context, repo *repository.Repository, days int, rng *rand.Rand, now time.Time) (*output, error) {
	hasher := auth.NewPasswordHasher(auth.DefaultArgon2Params)
	out := &output{}

	for _, su := range seedUsers {
		user, err := newUser(hasher, su, now)
		if err != nil {
			return nil, err
		}
		stored, created, err := repo.GetOrCreateUser(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("seed user %s: %w", su.Email, err)
		}
		row := seededUser{Email: stored.Email, Role: stored.Role, Plan: stored.Plan, Created: created}
		if stored.APIKey != nil {
			row.APIKey = *stored.APIKey
		}
		out.Users = append(out.Users, row)
	}

	for _, ss := range seedStocks {
		stock := ss.model()
		stock.ID = ulid.Make().String()
		stock.LastUpdate = now
		stock.CreatedAt = now
		if err := repo.UpsertStock(ctx, stock); err != nil {
			return nil, fmt.Errorf("seed stock %s: %w", ss.Symbol, err)
		}
		out.Stocks++

		n, err := repo.InsertHistory(ctx, dailyBars(stock, days, now, rng))
		if err != nil {
			return nil, fmt.Errorf("seed history %s: %w", ss.Symbol, err)
		}
		out.Bars += n
	}

	return out, nil
}

func newUser(hasher *auth.PasswordHasher, su seedUser, now time.Time) (*model.User, error) {
	hash, err := hasher.Hash(su.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password for %s: %w", su.Email, err)
	}
	limits := su.Plan.Limits()
	user := &model.User{
		ID:           ulid.Make().String(),
		Name:         su.Name,
		Email:        su.Email,
		PasswordHash: hash,
		Role:         su.Role,
		Plan:         su.Plan,
		MonthlyQuota: limits.Monthly,
		DailyQuota:   limits.Daily,
		LastReset:    now,
		CreatedAt:    now,
	}
	if su.WithKey {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			return nil, err
		}
		user.APIKey = &key
	}
	return user, nil
}

var one = decimal.NewFromInt(1)

// dailyBars generates one bar per day for the days ending on now's date.
// Each open varies the quote price by up to 5%, high and low stay within 3%
// of the open and the close falls between them.
func dailyBars(stock *model.Stock, days int, now time.Time, rng *rand.Rand) []*model.StockHistory {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	bars := make([]*model.StockHistory, 0, days)

	for i := days - 1; i >= 0; i-- {
		open := stock.Price.Mul(one.Add(decimal.NewFromFloat(rng.Float64()*0.1 - 0.05)))
		high := open.Mul(one.Add(decimal.NewFromFloat(rng.Float64() * 0.03)))
		low := open.Mul(one.Sub(decimal.NewFromFloat(rng.Float64() * 0.03)))
		closePrice := low.Add(high.Sub(low).Mul(decimal.NewFromFloat(rng.Float64())))
		volume := float64(stock.Volume) * (0.7 + rng.Float64()*0.6)

		bars = append(bars, &model.StockHistory{
			ID:      ulid.Make().String(),
			StockID: stock.ID,
			Date:    today.AddDate(0, 0, -i),
			Open:    open.Round(2),
			High:    high.Round(2),
			Low:     low.Round(2),
			Close:   closePrice.Round(2),
			Volume:  model.BigInt(volume),
		})
	}
	return bars
}
