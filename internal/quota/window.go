// Package quota implements per-user daily and monthly call accounting.
package quota

import "time"

// Window identifies the current daily and monthly accounting periods.
type Window struct {
	DayStart   time.Time
	MonthStart time.Time
	NextDay    time.Time
	NextMonth  time.Time
}

// WindowAt returns the window containing now, with period boundaries at
// midnight in loc.
func WindowAt(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()

	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	month := time.Date(y, m, 1, 0, 0, 0, 0, loc)

	return Window{
		DayStart:   day,
		MonthStart: month,
		NextDay:    day.AddDate(0, 0, 1),
		NextMonth:  month.AddDate(0, 1, 0),
	}
}

// Usage is the state of a user's counters after a consume attempt.
type Usage struct {
	UserID       string
	Admitted     bool
	APICalls     int64
	DailyCalls   int64
	MonthlyCalls int64
	DailyQuota   int64
	MonthlyQuota int64
}

// Exceeded names the window that is at or over its ceiling, preferring the
// monthly window. It returns "" when both have headroom or are unlimited.
func (u *Usage) Exceeded() string {
	if u.MonthlyQuota > 0 && u.MonthlyCalls >= u.MonthlyQuota {
		return PeriodMonthly
	}
	if u.DailyQuota > 0 && u.DailyCalls >= u.DailyQuota {
		return PeriodDaily
	}
	return ""
}

// DailyRemaining returns the calls left today, or -1 when unlimited.
func (u *Usage) DailyRemaining() int64 {
	return remaining(u.DailyQuota, u.DailyCalls)
}

// MonthlyRemaining returns the calls left this month, or -1 when unlimited.
func (u *Usage) MonthlyRemaining() int64 {
	return remaining(u.MonthlyQuota, u.MonthlyCalls)
}

func remaining(quota, used int64) int64 {
	if quota <= 0 {
		return -1
	}
	if used >= quota {
		return 0
	}
	return quota - used
}

// Period names.
const (
	PeriodDaily   = "daily"
	PeriodMonthly = "monthly"
)
