// Package main is the entrypoint for the StockAPI server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/idxstock/stockapi/internal/auth"
	"github.com/idxstock/stockapi/internal/cache"
	"github.com/idxstock/stockapi/internal/config"
	"github.com/idxstock/stockapi/internal/events"
	"github.com/idxstock/stockapi/internal/metrics"
	"github.com/idxstock/stockapi/internal/quota"
	"github.com/idxstock/stockapi/internal/repository"
	"github.com/idxstock/stockapi/internal/router"
	"github.com/idxstock/stockapi/internal/server"
	"github.com/idxstock/stockapi/internal/service"
	"github.com/idxstock/stockapi/internal/usage"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := initLogger(cfg)

	if cfg.MigrateOnStart {
		if err := repository.Migrate(cfg.DatabaseURL); err != nil {
			logger.Error("failed to run migrations",
				slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			)
			return errStartup
		}
		logger.Info("migrations applied")
	}

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.Options{MaxConns: cfg.DBMaxConns})
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return errStartup
	}
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL, cache.Options{
		IdentityTTL: cfg.APIKeyCacheTTL,
		PoolSize:    cfg.RedisPoolSize,
	})
	if err != nil {
		repo.Close()
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return errStartup
	}
	logger.Info("connected to Redis")

	var (
		recorder       metrics.Recorder = metrics.NewNoop()
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheus()
		recorder = prom
		metricsHandler = prom.Handler()
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaStockTopic, recorder)
		logger.Info("publishing stock events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaStockTopic)
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		cacheClient.Close()
		repo.Close()
		return err
	}
	loc, err := cfg.QuotaLocation()
	if err != nil {
		cacheClient.Close()
		repo.Close()
		return err
	}

	// Initialize services
	authService := service.NewAuthService(repo, cacheClient, auth.NewPasswordHasher(auth.DefaultArgon2Params), tokens, logger, recorder)
	authService.SetQuotaLocation(loc)
	stockService := service.NewStockService(repo, publisher, logger)
	adminService := service.NewAdminService(repo)
	accountant := quota.NewAccountant(repo, logger,
		quota.WithMode(quota.Mode(cfg.QuotaEnforcement)),
		quota.WithLocation(loc),
		quota.WithMetrics(recorder),
	)

	handler := router.New(router.Deps{
		Logger:         logger,
		Metrics:        recorder,
		MetricsHandler: metricsHandler,
		Auth:           authService,
		Stocks:         stockService,
		Admin:          adminService,
		Quota:          accountant,
		Usage:          usage.NewPublisher(cacheClient.Client(), logger, recorder),
		Limiter:        cacheClient,
		DB:             repo,
		Cache:          cacheClient,
		Options: router.Options{
			IsDevelopment: cfg.IsDevelopment(),
			CORSOrigins:   cfg.GetCORSAllowedOrigins(),
			MaxBodySize:   cfg.MaxRequestBodySize,
			AuthRateLimit: router.AuthRateLimit{
				Enabled: cfg.RateLimitAuthEnabled,
				RPS:     cfg.RateLimitAuthRPS,
				Burst:   cfg.RateLimitAuthBurst,
			},
		},
	})

	srv := server.New(handler, cfg.AppPort, server.Timeouts{
		Read:     cfg.ReadTimeout,
		Write:    cfg.WriteTimeout,
		Shutdown: cfg.ShutdownTimeout,
	}, logger)

	// Registered first, stopped last.
	srv.OnShutdown("database", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error { return cacheClient.Close() })
	srv.OnShutdown("stock-events", func(context.Context) error { return publisher.Close() })

	if cfg.UsageWorkerEnabled {
		worker := usage.NewWorker(cacheClient.Client(), repo, logger, usage.NewConsumerID(), recorder, usage.WorkerConfig{})
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("usage worker stopped", "error", err)
			}
		}()
		srv.OnShutdown("usage-worker", worker.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"quota_enforcement", cfg.QuotaEnforcement,
		"quota_timezone", loc.String(),
	)

	return srv.Run(ctx)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// errStartup marks a failure that has already been logged with secrets redacted.
var errStartup = errors.New("startup failed")

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
