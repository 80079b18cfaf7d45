// Package resilience provides reliability and fault tolerance patterns for
// the notification-sync worker. It coordinates two independent failure
// domains: the remote notification service (circuit breaker) and the local
// key-value backend (retry with exponential backoff).
//
// The package supports:
//   - A persisted, consecutive-failure circuit breaker for the remote fetch
//   - Retry logic with bounded exponential backoff and an injectable sleep
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.RemoteFetchConfig())
//	if d := cb.Allow(); d.Allowed {
//	    err := fetchNotifications()
//	    ...
//	}
//
//	err := retry.WithBackoff(ctx, retry.StorageConfig(), func() error {
//	    return kv.Set(ctx, key, value)
//	})
package resilience
