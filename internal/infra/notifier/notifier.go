// Package notifier provides webhook notification channels for sync events.
// It defines the Notifier interface which allows different mechanisms
// (Discord, Slack, etc.) to be used interchangeably through dependency
// injection, plus a no-op implementation for when notifications are disabled.
package notifier

import (
	"context"
	"fmt"
	"time"

	"notifsync/internal/domain/entity"
	"notifsync/internal/store"
)

// EventKind classifies a sync event worth telling a human about.
type EventKind string

const (
	// EventNotificationsChanged fires when a poll or mutation committed a
	// new notification set.
	EventNotificationsChanged EventKind = "notifications_changed"

	// EventStorageDegraded fires when the resilient store raises its
	// degraded-mode badge.
	EventStorageDegraded EventKind = "storage_degraded"

	// EventStorageRecovered fires when a storage success clears the badge.
	EventStorageRecovered EventKind = "storage_recovered"
)

// Event is a sync event ready for delivery to a webhook channel.
type Event struct {
	Kind       EventKind
	Title      string
	Body       string
	OccurredAt time.Time
}

// ChangeEvent builds the event for a committed notification set change.
func ChangeEvent(set entity.NotificationSet) Event {
	folders := make(map[string]struct{}, len(set.Records))
	for _, rec := range set.Records {
		folders[rec.Folder] = struct{}{}
	}
	return Event{
		Kind:       EventNotificationsChanged,
		Title:      "Notifications updated",
		Body:       fmt.Sprintf("%d notifications across %d folders", len(set.Records), len(folders)),
		OccurredAt: time.Now(),
	}
}

// DegradedEvent builds the event for entering storage degraded mode.
func DegradedEvent(status store.ErrorStatus) Event {
	return Event{
		Kind:  EventStorageDegraded,
		Title: "Storage degraded",
		Body: fmt.Sprintf("%d consecutive storage failures, last: %s",
			status.ConsecutiveFailures, status.LastErrorMessage),
		OccurredAt: time.Now(),
	}
}

// RecoveredEvent builds the event for leaving storage degraded mode.
func RecoveredEvent() Event {
	return Event{
		Kind:       EventStorageRecovered,
		Title:      "Storage recovered",
		Body:       "Storage operations are succeeding again",
		OccurredAt: time.Now(),
	}
}

// Notifier is an interface for delivering sync events to a channel.
// Implementations handle rate limiting, retries, and error logging
// internally and respect context cancellation.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
