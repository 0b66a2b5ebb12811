package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/idxstock/stockapi/internal/response"
)

const defaultHSTSMaxAge = 365 * 24 * time.Hour

// SecurityConfig holds configuration for security headers.
type SecurityConfig struct {
	// IsDevelopment disables HSTS so local plain-HTTP clients keep working.
	IsDevelopment bool
	// HSTSMaxAge defaults to one year.
	HSTSMaxAge time.Duration
}

// securityHeaders are set on every response. The API only serves JSON, so
// nothing may frame, sniff or cache it.
var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "same-site"},
	{"Cache-Control", "no-store"},
}

// Security returns a middleware that applies the headers above, plus
// Strict-Transport-Security outside development.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	maxAge := cfg.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range securityHeaders {
				h.Set(kv[0], kv[1])
			}
			if !cfg.IsDevelopment {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize rejects declared oversize bodies with 413 and caps streamed
// ones; handlers see *http.MaxBytesError once the cap is crossed.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				response.Error(w, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, "Ukuran request terlalu besar")
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
