package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/idxstock/stockapi/internal/auth"
	"github.com/idxstock/stockapi/internal/metrics"
)

// statusRecorder remembers the status and body size a handler produced.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func recordStatus(w http.ResponseWriter) *statusRecorder {
	if sr, ok := w.(*statusRecorder); ok {
		return sr
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.wroteHeader {
		return
	}
	sr.status = code
	sr.wroteHeader = true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.wroteHeader {
		sr.WriteHeader(http.StatusOK)
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// probeRoutes are polled by orchestrators and logged at debug level.
var probeRoutes = map[string]bool{
	"/health":  true,
	"/readyz":  true,
	"/metrics": true,
}

// Logger logs one line per request and records request metrics keyed by
// route pattern. The caller's user ID and plan are included once the auth
// middleware further down the chain has identified them.
func Logger(logger *slog.Logger, recorder metrics.Recorder) func(http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, observed := auth.WithIdentitySlot(r.Context())
			r = r.WithContext(ctx)

			sr := recordStatus(w)
			next.ServeHTTP(sr, r)

			elapsed := time.Since(start)
			route := routePattern(r)
			recorder.ObserveHTTPRequest(r.Method, route, sr.status, elapsed)

			attrs := make([]slog.Attr, 0, 12)
			attrs = append(attrs,
				slog.String("request_id", GetRequestID(ctx)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", route),
				slog.Int("status_code", sr.status),
				slog.Int64("bytes", sr.bytes),
				slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
			)
			if id := observed(); id != nil {
				attrs = append(attrs,
					slog.String("user_id", id.UserID),
					slog.String("plan", string(id.Plan)),
				)
			}

			level := levelForStatus(sr.status)
			if level == slog.LevelInfo && probeRoutes[route] {
				level = slog.LevelDebug
			}
			logger.LogAttrs(ctx, level, "http request", attrs...)
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// routePattern returns the matched chi pattern, keeping metric label
// cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
