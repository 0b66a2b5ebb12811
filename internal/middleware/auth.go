package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/idxstock/stockapi/internal/auth"
	"github.com/idxstock/stockapi/internal/metrics"
	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/response"
	"github.com/idxstock/stockapi/internal/service"
)

// APIKeyHeader carries the API key on data endpoints.
const APIKeyHeader = "X-API-Key"

// Client-facing authentication messages.
const (
	msgMissingToken  = "Token autentikasi tidak ditemukan"
	msgInvalidToken  = "Token tidak valid"
	msgTokenExpired  = "Token sudah kadaluarsa"
	msgForbidden     = "Akses ditolak. Hanya admin yang dapat mengakses endpoint ini"
	msgMissingAPIKey = "API key tidak ditemukan. Sertakan header X-API-Key"
	msgInvalidAPIKey = "API key tidak valid"
)

// SessionResolver maps a session token to its user.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*model.Identity, error)
}

// APIKeyResolver maps an API key to its owner.
type APIKeyResolver interface {
	ResolveAPIKey(ctx context.Context, key string) (*model.Identity, error)
}

// AuthConfig holds dependencies for the authentication middlewares.
type AuthConfig struct {
	Logger   *slog.Logger
	Metrics  metrics.Recorder
	Sessions SessionResolver
	APIKeys  APIKeyResolver
}

func (cfg AuthConfig) recorder() metrics.Recorder {
	if cfg.Metrics == nil {
		return metrics.NewNoop()
	}
	return cfg.Metrics
}

// reject logs an authentication failure, counts it and writes the envelope.
func (cfg AuthConfig) reject(w http.ResponseWriter, r *http.Request, status int, code, message, reason string) {
	cfg.Logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
	cfg.recorder().IncAuthRejected(reason)
	response.Error(w, status, code, message)
}

// Session authenticates dashboard requests by bearer session token.
func Session(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				cfg.reject(w, r, http.StatusUnauthorized, response.CodeMissingToken, msgMissingToken, "missing_token")
				return
			}

			id, err := cfg.Sessions.ResolveSession(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrTokenExpired):
				cfg.reject(w, r, http.StatusUnauthorized, response.CodeTokenExpired, msgTokenExpired, "token_expired")
				return
			case errors.Is(err, auth.ErrTokenInvalid):
				cfg.reject(w, r, http.StatusUnauthorized, response.CodeInvalidToken, msgInvalidToken, "invalid_token")
				return
			default:
				cfg.Logger.Error("session lookup failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				response.ServerError(w)
				return
			}

			ctx := auth.ContextWithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin allows only identities with the ADMIN role.
// Must be applied after Session.
func RequireAdmin(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.IdentityFromContext(r.Context())
			if id == nil {
				cfg.reject(w, r, http.StatusUnauthorized, response.CodeMissingToken, msgMissingToken, "missing_identity")
				return
			}
			if !id.IsAdmin() {
				cfg.reject(w, r, http.StatusForbidden, response.CodeForbidden, msgForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APIKey authenticates data requests by the X-API-Key header.
func APIKey(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if key == "" {
				cfg.reject(w, r, http.StatusUnauthorized, response.CodeMissingAPIKey, msgMissingAPIKey, "missing_key")
				return
			}

			id, err := cfg.APIKeys.ResolveAPIKey(r.Context(), key)
			if err != nil {
				if errors.Is(err, service.ErrInvalidAPIKey) {
					cfg.reject(w, r, http.StatusUnauthorized, response.CodeInvalidAPIKey, msgInvalidAPIKey, "invalid_key")
					return
				}
				cfg.Logger.Error("api key lookup failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				response.ServerError(w)
				return
			}

			ctx := auth.ContextWithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
