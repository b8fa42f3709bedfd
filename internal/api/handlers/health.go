package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"honeypot-lab/internal/domain/services/session"
	"honeypot-lab/pkg/logger"
)

const readyCheckTimeout = 2 * time.Second

// Check probes one dependency
type Check func(ctx context.Context) error

// HealthHandler handles health check endpoints
type HealthHandler struct {
	store     *session.Store
	checks    map[string]Check
	version   string
	logger    *logger.Logger
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(store *session.Store, checks map[string]Check, version string, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		store:     store,
		checks:    checks,
		version:   version,
		logger:    log.WithComponent("health"),
		startTime: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Sessions  int               `json:"sessions"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Root handles GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(h.logger, w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Honeypot API is running",
	})
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	respondJSON(h.logger, w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UnixMilli(),
		Sessions:  h.sessions(),
	})
}

// Ready handles GET /ready - checks every configured dependency
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	results := h.runChecks(ctx)
	status := http.StatusOK
	overall := "ready"
	for _, res := range results {
		if res != "healthy" {
			status = http.StatusServiceUnavailable
			overall = "not ready"
		}
	}
	results["session_store"] = "healthy"

	respondJSON(h.logger, w, status, HealthResponse{
		Status:    overall,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UnixMilli(),
		Sessions:  h.sessions(),
		Checks:    results,
	})
}

func (h *HealthHandler) runChecks(ctx context.Context) map[string]string {
	var mu sync.Mutex
	var wg sync.WaitGroup
	results := make(map[string]string, len(h.checks)+1)
	for name, check := range h.checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			res := "healthy"
			if err := check(ctx); err != nil {
				res = "unhealthy: " + err.Error()
				h.logger.Warn().Err(err).Str("dependency", name).Msg("readiness check failed")
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	return results
}

func (h *HealthHandler) sessions() int {
	if h.store == nil {
		return 0
	}
	return h.store.Len()
}
