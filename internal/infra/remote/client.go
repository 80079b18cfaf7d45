// Package remote implements the HTTP client for the notification service.
// It covers the three operations the sync poller needs: fetching the
// current notification state, marking one folder read, and marking
// everything read.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"notifsync/internal/domain/entity"
	"notifsync/internal/resilience/retry"
)

const (
	fetchPath       = "/api/notifications"
	markReadPath    = "/api/notifications/read"
	markAllReadPath = "/api/notifications/read-all"

	// Error bodies are truncated before they reach logs.
	maxErrorBodyBytes = 2048
)

// ErrMalformedResponse marks a 2xx response whose body could not be decoded.
// The transport succeeded; callers must not count it as a remote failure.
var ErrMalformedResponse = errors.New("malformed notification response")

// Client talks to the remote notification service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL. A nil httpClient
// gets a default with connection pooling and TLS 1.2+.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// fetchResponse is the wire format of the fetch endpoint.
type fetchResponse struct {
	Notifications []entity.NotificationRecord `json:"notifications"`
}

// Fetch retrieves the current notification state. Transport errors and
// non-2xx statuses come back as-is (the latter as *retry.HTTPError); a body
// that fails to decode comes back wrapped in ErrMalformedResponse.
func (c *Client) Fetch(ctx context.Context) ([]entity.NotificationRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+fetchPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp); err != nil {
		return nil, err
	}

	var decoded fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return decoded.Notifications, nil
}

// markReadRequest is the wire format of the mark-read endpoint.
type markReadRequest struct {
	Folder string `json:"folder"`
}

// MarkRead asks the service to mark every notification in folder as read.
func (c *Client) MarkRead(ctx context.Context, folder string) error {
	payload, err := json.Marshal(markReadRequest{Folder: folder})
	if err != nil {
		return fmt.Errorf("marshal mark-read request: %w", err)
	}
	return c.post(ctx, markReadPath, payload)
}

// MarkAllRead asks the service to mark every notification as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.post(ctx, markAllReadPath, nil)
}

// post issues a JSON POST and classifies the response status.
func (c *Client) post(ctx context.Context, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return statusError(resp)
}

// statusError converts a non-2xx response into *retry.HTTPError.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &retry.HTTPError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
	}
}
