package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

// Common webhook error types used by Discord and Slack notifiers

// RateLimitError represents a 429 rate limit error from a webhook service.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string // Optional custom message
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError represents a 4xx client error from a webhook service.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError represents a 5xx server error from a webhook service.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// is429Error checks if the error is a rate limit error and extracts retry_after.
func is429Error(err error) (*RateLimitError, bool) {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr, true
	}
	return nil, false
}

// isRetryableError checks if the error is worth retrying (5xx server errors,
// network errors). Client errors (4xx) are not retryable except for rate
// limits (429), which are handled separately by is429Error.
func isRetryableError(err error) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return false
	}

	// Network errors, context errors, etc. are retryable
	return true
}

// retryAfterResponse is the portion of a 429 body carrying the wait hint.
type retryAfterResponse struct {
	RetryAfter float64 `json:"retry_after"` // In seconds
}

// extractRetryAfter extracts the retry_after duration from a 429 response.
// It tries the JSON body first, then the Retry-After header, then defaults
// to 5 seconds.
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var parsed retryAfterResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.RetryAfter > 0 {
		return time.Duration(parsed.RetryAfter * float64(time.Second))
	}

	if retryAfterHeader := resp.Header.Get("Retry-After"); retryAfterHeader != "" {
		if seconds, err := strconv.Atoi(retryAfterHeader); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return 5 * time.Second
}

// truncateText truncates text to maxLength characters, appending suffix when
// something was cut.
func truncateText(text string, maxLength int, suffix string) string {
	if len(text) <= maxLength {
		return text
	}

	truncateAt := maxLength - len(suffix)
	if truncateAt < 0 {
		truncateAt = 0
	}

	return text[:truncateAt] + suffix
}

// Webhook retry strategy shared by both channels. Rate limit hits wait out
// the 429 hint; server and network errors back off linearly; other client
// errors fail immediately.
const (
	webhookMaxAttempts = 2
	webhookBaseDelay   = 5 * time.Second
)

// webhookChannel is the delivery plumbing shared by the Slack and Discord
// notifiers: a JSON POST with status classification, and a bounded retry
// loop. The channel name appears in error messages and log entries.
type webhookChannel struct {
	name       string
	webhookURL string
	httpClient *http.Client
}

// post marshals the payload, sends it, and classifies the response:
// 429 becomes *RateLimitError with the service's wait hint, other 4xx
// become *ClientError, 5xx becomes *ServerError.
func (c *webhookChannel) post(ctx context.Context, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Read response body for error messages
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    fmt.Sprintf("%s rate limit exceeded", c.name),
			RetryAfter: extractRetryAfter(resp, body),
		}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API client error: %s", c.name, string(body)),
		}

	case resp.StatusCode >= 500:
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API server error: %s", c.name, string(body)),
		}
	}

	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

// deliver posts the payload with retries. All attempts are logged with the
// request_id carried in ctx.
func (c *webhookChannel) deliver(ctx context.Context, event Event, payload interface{}) error {
	requestID, _ := ctx.Value(requestIDKey).(string)

	var lastErr error
	for attempt := 1; attempt <= webhookMaxAttempts; attempt++ {
		err := c.post(ctx, payload)

		if err == nil {
			slog.Info("webhook notification successful",
				slog.String("channel", c.name),
				slog.String("request_id", requestID),
				slog.String("kind", string(event.Kind)),
				slog.Int("attempt", attempt))
			return nil
		}

		lastErr = err

		if rateLimitErr, ok := is429Error(err); ok {
			slog.Warn("webhook rate limit hit, backing off",
				slog.String("channel", c.name),
				slog.String("request_id", requestID),
				slog.String("kind", string(event.Kind)),
				slog.Duration("retry_after", rateLimitErr.RetryAfter),
				slog.Int("attempt", attempt))

			select {
			case <-time.After(rateLimitErr.RetryAfter):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during rate limit backoff: %w", ctx.Err())
			}
		}

		if !isRetryableError(err) {
			slog.Error("webhook notification failed with non-retryable error",
				slog.String("channel", c.name),
				slog.String("request_id", requestID),
				slog.String("kind", string(event.Kind)),
				slog.Any("error", err),
				slog.Int("attempt", attempt))
			return err
		}

		if attempt < webhookMaxAttempts {
			delay := webhookBaseDelay * time.Duration(attempt)
			slog.Warn("webhook request failed, retrying",
				slog.String("channel", c.name),
				slog.String("request_id", requestID),
				slog.String("kind", string(event.Kind)),
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}

	slog.Error("webhook notification failed after all retries",
		slog.String("channel", c.name),
		slog.String("request_id", requestID),
		slog.String("kind", string(event.Kind)),
		slog.Any("error", lastErr),
		slog.Int("max_attempts", webhookMaxAttempts))

	return fmt.Errorf("%s notification failed after %d attempts: %w", c.name, webhookMaxAttempts, lastErr)
}
