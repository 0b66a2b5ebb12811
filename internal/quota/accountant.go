package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/idxstock/stockapi/internal/metrics"
)

// ErrQuotaExceeded is returned when a hard-enforced window is exhausted.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Mode controls what happens when a window is exhausted.
type Mode string

// Enforcement modes.
const (
	ModeHard Mode = "hard" // reject, do not count
	ModeSoft Mode = "soft" // admit, count, log the overage
)

// Store performs the atomic check-and-increment on a user's counters.
//
// When enforce is true the counters are incremented only if every limited
// window has headroom; otherwise they are incremented unconditionally.
// Counters whose window started after the stored last reset are treated as
// zero. The returned Usage reflects the counters after the attempt.
type Store interface {
	ConsumeQuota(ctx context.Context, userID string, w Window, now time.Time, enforce bool) (*Usage, error)
}

// Decision is the outcome of one accounting attempt.
type Decision struct {
	Usage      *Usage
	Exceeded   string        // period that blocked or overflowed, if any
	RetryAfter time.Duration // until the exceeded period resets
}

// Accountant applies plan quotas to API-key calls.
type Accountant struct {
	store   Store
	mode    Mode
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
	metrics metrics.Recorder
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithMode sets the enforcement mode.
func WithMode(m Mode) Option {
	return func(a *Accountant) { a.mode = m }
}

// WithLocation sets the timezone of the period boundaries.
func WithLocation(loc *time.Location) Option {
	return func(a *Accountant) { a.loc = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Accountant) { a.now = now }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(a *Accountant) { a.metrics = r }
}

// NewAccountant creates an accountant in hard mode with UTC boundaries.
func NewAccountant(store Store, logger *slog.Logger, opts ...Option) *Accountant {
	a := &Accountant{
		store:   store,
		mode:    ModeHard,
		loc:     time.UTC,
		now:     time.Now,
		logger:  logger,
		metrics: metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Consume counts one call for userID. In hard mode a call that would exceed
// a window is rejected with ErrQuotaExceeded and not counted. The decision is
// returned in both cases so callers can report remaining quota.
func (a *Accountant) Consume(ctx context.Context, userID string) (*Decision, error) {
	now := a.now()
	w := WindowAt(now, a.loc)

	usage, err := a.store.ConsumeQuota(ctx, userID, w, now, a.mode == ModeHard)
	if err != nil {
		return nil, fmt.Errorf("consume quota: %w", err)
	}

	d := &Decision{Usage: usage}

	if !usage.Admitted {
		d.Exceeded = usage.Exceeded()
		d.RetryAfter = retryAfter(d.Exceeded, w, now)
		a.metrics.IncQuotaDecision(metrics.QuotaRejected)
		a.logger.Info("quota exceeded",
			slog.String("user_id", userID),
			slog.String("period", d.Exceeded),
			slog.Int64("daily_calls", usage.DailyCalls),
			slog.Int64("monthly_calls", usage.MonthlyCalls),
		)
		return d, ErrQuotaExceeded
	}

	if over := overage(usage); over != "" {
		d.Exceeded = over
		a.metrics.IncQuotaDecision(metrics.QuotaOverage)
		a.logger.Warn("quota overage admitted",
			slog.String("user_id", userID),
			slog.String("period", over),
			slog.Int64("daily_calls", usage.DailyCalls),
			slog.Int64("monthly_calls", usage.MonthlyCalls),
		)
		return d, nil
	}

	a.metrics.IncQuotaDecision(metrics.QuotaAdmitted)
	return d, nil
}

// overage reports a window whose counter went past its ceiling.
func overage(u *Usage) string {
	if u.MonthlyQuota > 0 && u.MonthlyCalls > u.MonthlyQuota {
		return PeriodMonthly
	}
	if u.DailyQuota > 0 && u.DailyCalls > u.DailyQuota {
		return PeriodDaily
	}
	return ""
}

func retryAfter(period string, w Window, now time.Time) time.Duration {
	switch period {
	case PeriodMonthly:
		return w.NextMonth.Sub(now)
	case PeriodDaily:
		return w.NextDay.Sub(now)
	default:
		return 0
	}
}
