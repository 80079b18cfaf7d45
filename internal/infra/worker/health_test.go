package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"notifsync/internal/resilience/circuitbreaker"
	"notifsync/internal/store"
	syncuc "notifsync/internal/usecase/sync"
)

// fakeSync is a canned SyncStatus implementation.
type fakeSync struct {
	pollResult syncuc.PollResult
	pollCalls  int
	version    string
	breaker    circuitbreaker.State
	storage    store.ErrorStatus
	degraded   bool
}

func (f *fakeSync) Poll(_ context.Context) syncuc.PollResult {
	f.pollCalls++
	return f.pollResult
}
func (f *fakeSync) Version() string                     { return f.version }
func (f *fakeSync) BreakerStats() circuitbreaker.State  { return f.breaker }
func (f *fakeSync) ErrorStatus() store.ErrorStatus      { return f.storage }
func (f *fakeSync) HasError() bool                      { return f.degraded }

func newTestHealthServer(sync SyncStatus) *HealthServer {
	return NewHealthServer("localhost:0", sync, testLogger())
}

func TestHandleLiveness_AlwaysOK(t *testing.T) {
	server := newTestHealthServer(&fakeSync{})

	rec := httptest.NewRecorder()
	server.handleLiveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
}

func TestHandleReadiness_TracksReadyFlag(t *testing.T) {
	server := newTestHealthServer(&fakeSync{})

	rec := httptest.NewRecorder()
	server.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before ready, got %d", rec.Code)
	}

	server.SetReady(true)
	rec = httptest.NewRecorder()
	server.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 after ready, got %d", rec.Code)
	}
}

func TestHandleStatus_ReportsSyncSnapshot(t *testing.T) {
	sync := &fakeSync{
		version: "/inbox:1|/work:2",
		breaker: circuitbreaker.State{
			Status:              circuitbreaker.StatusOpen,
			ConsecutiveFailures: 3,
		},
		storage: store.ErrorStatus{
			ConsecutiveFailures: 6,
			LastErrorMessage:    "quota exceeded",
			HasActiveBadge:      true,
		},
		degraded: true,
	}
	server := newTestHealthServer(sync)

	rec := httptest.NewRecorder()
	server.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Version != "/inbox:1|/work:2" {
		t.Errorf("unexpected version %q", resp.Version)
	}
	if resp.CircuitBreaker.Status != circuitbreaker.StatusOpen {
		t.Errorf("unexpected breaker status %s", resp.CircuitBreaker.Status)
	}
	if !resp.StorageDegraded || resp.Storage.LastErrorMessage != "quota exceeded" {
		t.Errorf("unexpected storage status %+v", resp.Storage)
	}
}

func TestHandleStatus_RejectsNonGet(t *testing.T) {
	server := newTestHealthServer(&fakeSync{})

	rec := httptest.NewRecorder()
	server.handleStatus(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHandleRefresh_TriggersPoll(t *testing.T) {
	sync := &fakeSync{
		pollResult: syncuc.PollResult{Outcome: syncuc.OutcomeChanged, Version: "/a:1"},
	}
	server := newTestHealthServer(sync)

	rec := httptest.NewRecorder()
	server.handleRefresh(rec, httptest.NewRequest(http.MethodPost, "/sync/refresh", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sync.pollCalls != 1 {
		t.Errorf("expected 1 poll, got %d", sync.pollCalls)
	}

	var resp refreshResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome != "changed" || resp.Version != "/a:1" {
		t.Errorf("unexpected refresh response %+v", resp)
	}
}

func TestHandleRefresh_RateLimited(t *testing.T) {
	sync := &fakeSync{pollResult: syncuc.PollResult{Outcome: syncuc.OutcomeUnchanged}}
	server := newTestHealthServer(sync)

	rec := httptest.NewRecorder()
	server.handleRefresh(rec, httptest.NewRequest(http.MethodPost, "/sync/refresh", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first refresh should pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	server.handleRefresh(rec, httptest.NewRequest(http.MethodPost, "/sync/refresh", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second immediate refresh should be limited, got %d", rec.Code)
	}
	if sync.pollCalls != 1 {
		t.Errorf("limited refresh must not poll, got %d polls", sync.pollCalls)
	}
}

func TestHandleRefresh_RejectsNonPost(t *testing.T) {
	sync := &fakeSync{}
	server := newTestHealthServer(sync)

	rec := httptest.NewRecorder()
	server.handleRefresh(rec, httptest.NewRequest(http.MethodGet, "/sync/refresh", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
	if sync.pollCalls != 0 {
		t.Error("GET must not trigger a poll")
	}
}
