package quota_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/idxstock/stockapi/internal/metrics"
	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/quota"
	"github.com/idxstock/stockapi/internal/repository"
	"github.com/idxstock/stockapi/internal/testutil"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newAccountant(t *testing.T, mode quota.Mode, user *model.User, start time.Time) (*quota.Accountant, *testutil.MemoryStore, *clock, *metrics.InMemoryRecorder) {
	t.Helper()
	store := testutil.NewMemoryStore()
	user.LastReset = start
	store.SetUser(user)

	clk := &clock{now: start}
	rec := metrics.NewInMemory()
	acct := quota.NewAccountant(store, testutil.DiscardLogger(),
		quota.WithMode(mode),
		quota.WithClock(clk.Now),
		quota.WithMetrics(rec),
	)
	return acct, store, clk, rec
}

func TestAccountant_HardModeRejectsAtCeiling(t *testing.T) {
	user := testutil.NewTestUser(t, model.PlanFree)
	user.DailyQuota = 3
	start := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	acct, store, _, rec := newAccountant(t, quota.ModeHard, user, start)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := acct.Consume(ctx, user.ID)
		if err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
		if d.Usage.DailyCalls != int64(i) {
			t.Fatalf("call %d: DailyCalls = %d", i, d.Usage.DailyCalls)
		}
	}

	d, err := acct.Consume(ctx, user.ID)
	if !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if d.Exceeded != quota.PeriodDaily {
		t.Errorf("Exceeded = %q, want daily", d.Exceeded)
	}
	if d.RetryAfter != 15*time.Hour {
		t.Errorf("RetryAfter = %v, want 15h", d.RetryAfter)
	}

	stored, _ := store.GetUserByID(ctx, user.ID)
	if stored.DailyCalls != 3 || stored.APICalls != 3 {
		t.Errorf("rejected call must not be counted: daily=%d total=%d", stored.DailyCalls, stored.APICalls)
	}

	snap := rec.Snapshot()
	if snap.QuotaDecisions[metrics.QuotaAdmitted] != 3 || snap.QuotaDecisions[metrics.QuotaRejected] != 1 {
		t.Errorf("unexpected decisions: %v", snap.QuotaDecisions)
	}
}

func TestAccountant_SoftModeAdmitsOverage(t *testing.T) {
	user := testutil.NewTestUser(t, model.PlanFree)
	user.DailyQuota = 1
	start := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	acct, _, _, rec := newAccountant(t, quota.ModeSoft, user, start)
	ctx := context.Background()

	if _, err := acct.Consume(ctx, user.ID); err != nil {
		t.Fatalf("first call: %v", err)
	}
	d, err := acct.Consume(ctx, user.ID)
	if err != nil {
		t.Fatalf("soft mode must admit: %v", err)
	}
	if d.Exceeded != quota.PeriodDaily || d.Usage.DailyCalls != 2 {
		t.Errorf("expected daily overage at 2 calls, got %q/%d", d.Exceeded, d.Usage.DailyCalls)
	}
	if rec.Snapshot().QuotaDecisions[metrics.QuotaOverage] != 1 {
		t.Errorf("expected one overage decision")
	}
}

func TestAccountant_ResetsAtPeriodBoundaries(t *testing.T) {
	user := testutil.NewTestUser(t, model.PlanFree)
	user.DailyQuota = 2
	user.MonthlyQuota = 3
	start := time.Date(2024, 1, 30, 12, 0, 0, 0, time.UTC)
	acct, _, clk, _ := newAccountant(t, quota.ModeHard, user, start)
	ctx := context.Background()

	mustAdmit := func(label string) *quota.Decision {
		t.Helper()
		d, err := acct.Consume(ctx, user.ID)
		if err != nil {
			t.Fatalf("%s: %v", label, err)
		}
		return d
	}

	mustAdmit("day1 #1")
	mustAdmit("day1 #2")
	if _, err := acct.Consume(ctx, user.ID); !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("day1 #3: expected rejection, got %v", err)
	}

	clk.Set(start.AddDate(0, 0, 1))
	d := mustAdmit("day2 #1")
	if d.Usage.DailyCalls != 1 || d.Usage.MonthlyCalls != 3 {
		t.Fatalf("day2: daily=%d monthly=%d", d.Usage.DailyCalls, d.Usage.MonthlyCalls)
	}

	d, err := acct.Consume(ctx, user.ID)
	if !errors.Is(err, quota.ErrQuotaExceeded) || d.Exceeded != quota.PeriodMonthly {
		t.Fatalf("day2 #2: expected monthly rejection, got %v / %q", err, d.Exceeded)
	}

	clk.Set(time.Date(2024, 2, 1, 0, 0, 1, 0, time.UTC))
	d = mustAdmit("february")
	if d.Usage.DailyCalls != 1 || d.Usage.MonthlyCalls != 1 || d.Usage.APICalls != 4 {
		t.Fatalf("february: daily=%d monthly=%d total=%d", d.Usage.DailyCalls, d.Usage.MonthlyCalls, d.Usage.APICalls)
	}
}

func TestAccountant_UnlimitedPlan(t *testing.T) {
	user := testutil.NewTestUser(t, model.PlanEnterprise)
	acct, _, _, _ := newAccountant(t, quota.ModeHard, user, time.Now())

	for i := 0; i < 500; i++ {
		if _, err := acct.Consume(context.Background(), user.ID); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestAccountant_ConcurrentAdmissionsNeverOvershoot(t *testing.T) {
	const limit, callers = 25, 100

	user := testutil.NewTestUser(t, model.PlanFree)
	user.DailyQuota = limit
	acct, store, _, _ := newAccountant(t, quota.ModeHard, user, time.Now())

	var admitted, rejected atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := acct.Consume(context.Background(), user.ID)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, quota.ErrQuotaExceeded):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != limit || rejected.Load() != callers-limit {
		t.Fatalf("admitted=%d rejected=%d", admitted.Load(), rejected.Load())
	}
	stored, _ := store.GetUserByID(context.Background(), user.ID)
	if stored.DailyCalls != limit {
		t.Fatalf("DailyCalls = %d, want %d", stored.DailyCalls, limit)
	}
}

func TestAccountant_UnknownUser(t *testing.T) {
	acct := quota.NewAccountant(testutil.NewMemoryStore(), testutil.DiscardLogger())
	if _, err := acct.Consume(context.Background(), "ghost"); !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
