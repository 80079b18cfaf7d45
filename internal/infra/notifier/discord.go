package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DiscordConfig configures the Discord webhook channel.
type DiscordConfig struct {
	// Enabled gates whether the worker constructs this notifier at all.
	Enabled bool

	// WebhookURL is the Discord webhook URL. It embeds the
	// authentication token, so treat it as a secret.
	WebhookURL string

	// Timeout bounds each webhook HTTP request.
	Timeout time.Duration
}

// DiscordNotifier delivers sync events to Discord via webhook. The rate
// limiter matches the Discord webhook limit of 30 requests per minute.
type DiscordNotifier struct {
	channel     webhookChannel
	rateLimiter *RateLimiter
}

// NewDiscordNotifier creates a new DiscordNotifier with the specified configuration.
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		channel: webhookChannel{
			name:       "Discord",
			webhookURL: config.WebhookURL,
			httpClient: &http.Client{Timeout: config.Timeout},
		},
		rateLimiter: NewRateLimiter(0.5, 3), // 0.5 req/s (30 req/min), burst of 3
	}
}

// DiscordWebhookPayload is the message body posted to the webhook. Each
// event is rendered as a single embed.
type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed is one rich embed in a webhook message.
type DiscordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Color       int                `json:"color"`
	Footer      DiscordEmbedFooter `json:"footer"`
	Timestamp   string             `json:"timestamp"`
}

// DiscordEmbedFooter carries the small text under the embed body.
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// Discord caps embed titles at 256 characters and descriptions at 4096.
const (
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	truncationSuffix     = "..."
)

// Embed colors per event kind.
const (
	discordBlueColor  = 5793266 // #5865F2
	discordRedColor   = 15548997
	discordGreenColor = 5763719
)

// embedColor maps an event kind to its embed color. Change events are blue,
// degradation is red, recovery is green.
func embedColor(kind EventKind) int {
	switch kind {
	case EventStorageDegraded:
		return discordRedColor
	case EventStorageRecovered:
		return discordGreenColor
	default:
		return discordBlueColor
	}
}

// buildEmbedPayload renders a sync event as an embed: title, body as the
// description, the event kind in the footer, and a color cue for severity.
func (d *DiscordNotifier) buildEmbedPayload(event Event) DiscordWebhookPayload {
	title := event.Title
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}

	return DiscordWebhookPayload{
		Embeds: []DiscordEmbed{{
			Title:       title,
			Description: truncateText(event.Body, maxDescriptionLength, truncationSuffix),
			Color:       embedColor(event.Kind),
			Footer:      DiscordEmbedFooter{Text: string(event.Kind)},
			Timestamp:   event.OccurredAt.Format(time.RFC3339),
		}},
	}
}

// Notify delivers a sync event to Discord. It generates a request ID for
// tracing, applies rate limiting, and sends the webhook with retry logic.
func (d *DiscordNotifier) Notify(ctx context.Context, event Event) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	slog.Info("Starting Discord notification",
		slog.String("request_id", requestID),
		slog.String("kind", string(event.Kind)))

	if err := d.rateLimiter.Allow(ctx); err != nil {
		slog.Error("Rate limiter error",
			slog.String("request_id", requestID),
			slog.String("kind", string(event.Kind)),
			slog.Any("error", err))
		return fmt.Errorf("rate limiter error: %w", err)
	}

	return d.channel.deliver(ctx, event, d.buildEmbedPayload(event))
}
