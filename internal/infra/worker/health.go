package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"notifsync/internal/observability/tracing"
	"notifsync/internal/resilience/circuitbreaker"
	"notifsync/internal/store"
	syncuc "notifsync/internal/usecase/sync"
)

// SyncStatus is the poller surface the health server exposes over HTTP.
type SyncStatus interface {
	Poll(ctx context.Context) syncuc.PollResult
	Version() string
	BreakerStats() circuitbreaker.State
	ErrorStatus() store.ErrorStatus
	HasError() bool
}

// HealthServer provides HTTP endpoints for health checks and sync status.
// It implements:
//   - GET /health: Liveness probe (always returns 200 OK)
//   - GET /health/ready: Readiness probe (200 if ready, 503 if not)
//   - GET /status: Sync status snapshot (breaker state, storage tracker, version)
//   - POST /sync/refresh: Manual poll trigger, rate limited
//
// The server supports graceful shutdown via context cancellation.
type HealthServer struct {
	addr         string
	logger       *slog.Logger
	isReady      *atomic.Bool
	server       *http.Server
	sync         SyncStatus
	refreshLimit *rate.Limiter
}

// healthResponse is the JSON response format for health check endpoints.
type healthResponse struct {
	Status string `json:"status"`
}

// statusResponse is the JSON response format for the /status endpoint.
type statusResponse struct {
	Version         string               `json:"version"`
	CircuitBreaker  circuitbreaker.State `json:"circuit_breaker"`
	Storage         store.ErrorStatus    `json:"storage"`
	StorageDegraded bool                 `json:"storage_degraded"`
}

// refreshResponse is the JSON response format for /sync/refresh.
type refreshResponse struct {
	Outcome string `json:"outcome"`
	Version string `json:"version"`
	Error   string `json:"error,omitempty"`
}

// NewHealthServer creates a new health check server exposing the given
// sync poller. Manual refresh is limited to one trigger per 10 seconds.
func NewHealthServer(addr string, syncService SyncStatus, logger *slog.Logger) *HealthServer {
	isReady := &atomic.Bool{}
	isReady.Store(false) // Start as not ready

	return &HealthServer{
		addr:         addr,
		logger:       logger,
		isReady:      isReady,
		sync:         syncService,
		refreshLimit: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Start starts the health check HTTP server. This is a blocking call that
// runs until the context is cancelled or an error occurs. It supports
// graceful shutdown with a 5-second timeout.
func (h *HealthServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleLiveness)
	mux.HandleFunc("/health/ready", h.handleReadiness)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/sync/refresh", h.handleRefresh)

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      tracing.Middleware(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if err == http.ErrServerClosed {
			return err
		}
		h.logger.Error("health server failed", slog.Any("error", err))
		return err
	}
}

// SetReady sets the readiness state of the server. This affects the
// response of the /health/ready endpoint.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

// handleLiveness handles the /health endpoint (liveness probe).
// Always returns 200 OK with {"status":"ok"}.
func (h *HealthServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok"}); err != nil {
		h.logger.Error("failed to encode liveness response", slog.Any("error", err))
	}
}

// handleReadiness handles the /health/ready endpoint (readiness probe).
// Returns 200 OK if ready, 503 Service Unavailable if not ready.
func (h *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.isReady.Load() {
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok"}); err != nil {
			h.logger.Error("failed to encode readiness response", slog.Any("error", err))
		}
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		if err := json.NewEncoder(w).Encode(healthResponse{Status: "not ready"}); err != nil {
			h.logger.Error("failed to encode not ready response", slog.Any("error", err))
		}
	}
}

// handleStatus handles the /status endpoint. It returns a snapshot of the
// sync state: cached version, breaker state, and storage failure tracker.
func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		Version:         h.sync.Version(),
		CircuitBreaker:  h.sync.BreakerStats(),
		Storage:         h.sync.ErrorStatus(),
		StorageDegraded: h.sync.HasError(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode status response", slog.Any("error", err))
	}
}

// handleRefresh handles POST /sync/refresh: an out-of-schedule poll. The
// rate limiter keeps a misbehaving caller from bypassing the breaker's
// poll-interval cadence; a rejected trigger returns 429.
func (h *HealthServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.refreshLimit.Allow() {
		http.Error(w, "refresh rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	h.logger.Info("manual sync refresh triggered")
	result := h.sync.Poll(r.Context())

	resp := refreshResponse{
		Outcome: string(result.Outcome),
		Version: result.Version,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode refresh response", slog.Any("error", err))
	}
}
