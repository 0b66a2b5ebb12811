package repository

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsApply(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		maxConns int32
		minConns int32
		lifetime time.Duration
		appName  string
	}{
		{"defaults", Options{}, 10, 2, time.Hour, "stockapi"},
		{"overrides", Options{MaxConns: 20, MinConns: 4, MaxConnLifetime: time.Minute, ApplicationName: "stockapi-seed"}, 20, 4, time.Minute, "stockapi-seed"},
		{"min capped at max", Options{MaxConns: 3, MinConns: 8}, 3, 3, time.Hour, "stockapi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/stockapi?sslmode=disable")
			require.NoError(t, err)

			tt.opts.apply(cfg)

			assert.Equal(t, tt.maxConns, cfg.MaxConns)
			assert.Equal(t, tt.minConns, cfg.MinConns)
			assert.Equal(t, tt.lifetime, cfg.MaxConnLifetime)
			assert.Equal(t, tt.appName, cfg.ConnConfig.RuntimeParams["application_name"])
		})
	}
}

func TestUniqueViolation(t *testing.T) {
	name, ok := uniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	assert.True(t, ok)
	assert.Equal(t, "users_email_key", name)

	_, ok = uniqueViolation(&pgconn.PgError{Code: "23503"})
	assert.False(t, ok)

	_, ok = uniqueViolation(assert.AnError)
	assert.False(t, ok)
}

func TestOptionsApplyKeepsURLApplicationName(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/stockapi?application_name=reporting")
	require.NoError(t, err)

	Options{}.apply(cfg)
	assert.Equal(t, "reporting", cfg.ConnConfig.RuntimeParams["application_name"])
}
