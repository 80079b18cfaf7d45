package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SlackConfig configures the Slack webhook channel.
type SlackConfig struct {
	// Enabled gates whether the worker constructs this notifier at all.
	Enabled bool

	// WebhookURL is the Slack Incoming Webhook URL. It embeds the
	// authentication token, so treat it as a secret.
	WebhookURL string

	// Timeout bounds each webhook HTTP request.
	Timeout time.Duration
}

// SlackNotifier delivers sync events to Slack via Incoming Webhook.
// The rate limiter matches the Slack webhook limit of 1 message per second.
type SlackNotifier struct {
	channel     webhookChannel
	rateLimiter *RateLimiter
}

// NewSlackNotifier creates a new SlackNotifier with the specified configuration.
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		channel: webhookChannel{
			name:       "Slack",
			webhookURL: config.WebhookURL,
			httpClient: &http.Client{Timeout: config.Timeout},
		},
		rateLimiter: NewRateLimiter(1.0, 1), // 1 req/s, burst of 1
	}
}

// SlackWebhookPayload is the Block Kit message body posted to the webhook.
// Text is the plain fallback shown in notifications and clients that do
// not render blocks.
type SlackWebhookPayload struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks"`
}

// SlackBlock is one Block Kit block. Section blocks carry Text; context
// blocks carry Elements.
type SlackBlock struct {
	Type     string            `json:"type"`
	Text     *SlackTextObject  `json:"text,omitempty"`
	Elements []SlackTextObject `json:"elements,omitempty"`
}

// SlackTextObject is a Block Kit text object, mrkdwn or plain_text.
type SlackTextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Block Kit caps section text at 3000 characters. The fallback cap is
// ours, to keep OS-level notification previews readable.
const (
	maxSectionTextLength  = 3000
	maxFallbackLength     = 150
	slackTruncationSuffix = "..."
)

// buildBlockKitPayload renders a sync event as a section block with the
// bold title and body, plus a context block with the event kind and
// timestamp.
func (s *SlackNotifier) buildBlockKitPayload(event Event) SlackWebhookPayload {
	fallbackText := event.Title
	if len(fallbackText) > maxFallbackLength {
		fallbackText = fallbackText[:maxFallbackLength-len(slackTruncationSuffix)] + slackTruncationSuffix
	}

	sectionText := truncateText(
		fmt.Sprintf("*%s*\n\n%s", event.Title, event.Body),
		maxSectionTextLength, slackTruncationSuffix,
	)
	contextText := fmt.Sprintf("%s • %s", event.Kind, event.OccurredAt.Format(time.RFC3339))

	return SlackWebhookPayload{
		Text: fallbackText,
		Blocks: []SlackBlock{
			{
				Type: "section",
				Text: &SlackTextObject{Type: "mrkdwn", Text: sectionText},
			},
			{
				Type:     "context",
				Elements: []SlackTextObject{{Type: "mrkdwn", Text: contextText}},
			},
		},
	}
}

// Notify delivers a sync event to Slack. It generates a request ID for
// tracing, applies rate limiting, and sends the webhook with retry logic.
func (s *SlackNotifier) Notify(ctx context.Context, event Event) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	slog.Info("Starting Slack notification",
		slog.String("request_id", requestID),
		slog.String("kind", string(event.Kind)))

	if err := s.rateLimiter.Allow(ctx); err != nil {
		slog.Error("Rate limiter error",
			slog.String("request_id", requestID),
			slog.String("kind", string(event.Kind)),
			slog.Any("error", err))
		return fmt.Errorf("rate limiter error: %w", err)
	}

	return s.channel.deliver(ctx, event, s.buildBlockKitPayload(event))
}
