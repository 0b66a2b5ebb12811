package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/cors"
)

// devOrigins are accepted in development so a local dashboard on any port
// can call the API.
var devOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	// AllowedOrigins lists exact origins or single-wildcard patterns such as
	// "https://*.example.com". An empty list disables CORS headers entirely.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// DefaultCORSConfig returns the dashboard settings for origins. Quota
// headers are exposed so browser clients can show remaining calls.
func DefaultCORSConfig(origins []string, isDevelopment bool) CORSConfig {
	allowed := normalizeOrigins(origins)
	if isDevelopment {
		for _, o := range devOrigins {
			if !slices.Contains(allowed, o) {
				allowed = append(allowed, o)
			}
		}
	}
	return CORSConfig{
		AllowedOrigins: allowed,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			APIKeyHeader,
			RequestIDHeader,
		},
		ExposedHeaders: []string{
			RequestIDHeader,
			"Retry-After",
			HeaderDailyLimit,
			HeaderDailyRemaining,
			HeaderMonthlyLimit,
			HeaderMonthlyRemaining,
		},
		MaxAge: 86400,
	}
}

// normalizeOrigins drops blanks and trailing slashes, which browsers never
// send in the Origin header.
func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || slices.Contains(out, o) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// CORS returns a go-chi/cors handler. Credentials are never allowed:
// dashboards authenticate with bearer tokens, not cookies.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   cfg.ExposedHeaders,
		AllowCredentials: false,
		MaxAge:           cfg.MaxAge,
	})
}
