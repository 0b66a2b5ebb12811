package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/idxstock/stockapi/internal/response"
)

// readyTimeout bounds each dependency ping.
const readyTimeout = 3 * time.Second

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type dependency struct {
	name    string
	checker HealthChecker
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	deps []dependency
	now  func() time.Time
}

// NewHealthHandler creates a HealthHandler. A nil db or cache is reported
// as "not configured" and does not fail readiness.
func NewHealthHandler(db, cache HealthChecker) *HealthHandler {
	return &HealthHandler{
		deps: []dependency{
			{name: "postgres", checker: db},
			{name: "redis", checker: cache},
		},
		now: time.Now,
	}
}

// HealthResponse is the liveness body.
type HealthResponse struct {
	Success   bool      `json:"success"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the readiness body.
type ReadyResponse struct {
	Success bool              `json:"success"`
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
}

// Health is a liveness probe. It checks no dependencies.
//
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, HealthResponse{
		Success:   true,
		Status:    "healthy",
		Timestamp: h.now().UTC(),
	})
}

// Readyz is a readiness probe. Dependencies are pinged in parallel and the
// probe returns 200 only if every configured one answers.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.deps))
		g      errgroup.Group
	)
	for _, d := range h.deps {
		if d.checker == nil {
			checks[d.name] = "not configured"
			continue
		}
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()

			result := "ok"
			err := d.checker.Ping(ctx)
			if err != nil {
				result = "error: " + err.Error()
			}
			mu.Lock()
			checks[d.name] = result
			mu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		response.JSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "unhealthy", Checks: checks})
		return
	}
	response.JSON(w, http.StatusOK, ReadyResponse{Success: true, Status: "ready", Checks: checks})
}
