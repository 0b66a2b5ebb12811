package middleware

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/idxstock/stockapi/internal/auth"
	"github.com/idxstock/stockapi/internal/quota"
	"github.com/idxstock/stockapi/internal/repository"
	"github.com/idxstock/stockapi/internal/response"
	"github.com/idxstock/stockapi/internal/usage"
)

// Quota response headers.
const (
	HeaderDailyLimit       = "X-Quota-Daily-Limit"
	HeaderDailyRemaining   = "X-Quota-Daily-Remaining"
	HeaderMonthlyLimit     = "X-Quota-Monthly-Limit"
	HeaderMonthlyRemaining = "X-Quota-Monthly-Remaining"
)

var quotaMessages = map[string]string{
	quota.PeriodDaily:   "Kuota API harian telah habis. Coba lagi besok",
	quota.PeriodMonthly: "Kuota API bulanan telah habis. Upgrade plan Anda untuk kuota lebih besar",
}

// QuotaConsumer counts one call against a user's plan.
type QuotaConsumer interface {
	Consume(ctx context.Context, userID string) (*quota.Decision, error)
}

// UsageRecorder receives one audit record per admitted call.
type UsageRecorder interface {
	Record(payload usage.Payload)
}

// Quota enforces plan quotas for the identity set by APIKey.
func Quota(consumer QuotaConsumer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.IdentityFromContext(r.Context())
			if id == nil {
				response.Error(w, http.StatusUnauthorized, response.CodeMissingAPIKey, msgMissingAPIKey)
				return
			}

			d, err := consumer.Consume(r.Context(), id.UserID)
			if d != nil {
				setQuotaHeaders(w, d.Usage)
			}
			switch {
			case err == nil:
			case errors.Is(err, quota.ErrQuotaExceeded):
				w.Header().Set("Retry-After", strconv.FormatInt(retrySeconds(d.RetryAfter), 10))
				response.Error(w, http.StatusTooManyRequests, response.CodeQuotaExceeded, quotaMessages[d.Exceeded])
				return
			case errors.Is(err, repository.ErrUserNotFound):
				// Cached identity for a user deleted since.
				response.Error(w, http.StatusUnauthorized, response.CodeInvalidAPIKey, msgInvalidAPIKey)
				return
			default:
				logger.Error("quota accounting failed",
					slog.String("error", err.Error()),
					slog.String("user_id", id.UserID),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				response.ServerError(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setQuotaHeaders(w http.ResponseWriter, u *quota.Usage) {
	if u == nil {
		return
	}
	if u.DailyQuota > 0 {
		w.Header().Set(HeaderDailyLimit, strconv.FormatInt(u.DailyQuota, 10))
		w.Header().Set(HeaderDailyRemaining, strconv.FormatInt(u.DailyRemaining(), 10))
	}
	if u.MonthlyQuota > 0 {
		w.Header().Set(HeaderMonthlyLimit, strconv.FormatInt(u.MonthlyQuota, 10))
		w.Header().Set(HeaderMonthlyRemaining, strconv.FormatInt(u.MonthlyRemaining(), 10))
	}
}

func retrySeconds(d time.Duration) int64 {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Usage publishes an audit record after the handler completes.
// Must be applied after APIKey.
func Usage(recorder UsageRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := recordStatus(w)
			next.ServeHTTP(wrapped, r)

			id := auth.IdentityFromContext(r.Context())
			if id == nil {
				return
			}
			recorder.Record(usage.NewPayload(id.UserID, r.URL.Path, r.Method, wrapped.status, time.Now()))
		})
	}
}
