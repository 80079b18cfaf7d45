package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notifsync/internal/resilience/retry"
)

func TestFetch_DecodesNotifications(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/notifications" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"notifications":[
			{"folder":"/inbox","timestamp":1,"status":"unread","message":"hi","priority":2},
			{"folder":"/work","timestamp":2,"status":"unread"}
		]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client())
	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Folder != "/inbox" || records[0].Timestamp != 1 {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if string(records[0].Extra["priority"]) != "2" {
		t.Errorf("extra field not preserved: %+v", records[0].Extra)
	}
}

func TestFetch_NonSuccessStatusIsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client())
	_, err := c.Fetch(context.Background())

	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("unexpected status %d", httpErr.StatusCode)
	}
	if errors.Is(err, ErrMalformedResponse) {
		t.Error("a non-2xx response is a remote failure, not a malformed body")
	}
}

func TestFetch_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"notifications": [{"folder": truncated`))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client())
	_, err := c.Fetch(context.Background())

	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestFetch_HonorsContextTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := NewClient(server.URL, server.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestMarkRead_SendsFolder(t *testing.T) {
	var got markReadRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/notifications/read" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client())
	if err := c.MarkRead(context.Background(), "/inbox"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Folder != "/inbox" {
		t.Errorf("expected folder '/inbox', got %q", got.Folder)
	}
}

func TestMarkAllRead_FailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/notifications/read-all" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client())
	err := c.MarkAllRead(context.Background())

	var httpErr *retry.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if !httpErr.IsServerError() {
		t.Errorf("expected server error classification for %d", httpErr.StatusCode)
	}
}
