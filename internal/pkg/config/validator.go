package config

import (
	"fmt"
	"net/url"
	"time"
)

// ValidateDuration checks that a duration lies within [min, max], both
// bounds inclusive. A min greater than max is reported as an invalid
// range. Errors carry the offending value and the bound it violated so
// operators can fix the setting without reading code.
//
// Example:
//
//	// Fetch timeout between 1s and 5m
//	err := ValidateDuration(10*time.Second, 1*time.Second, 5*time.Minute)
func ValidateDuration(duration, min, max time.Duration) error {
	if min > max {
		return fmt.Errorf("invalid range: min (%v) cannot be greater than max (%v)", min, max)
	}

	if duration < min {
		return fmt.Errorf("duration %v is below minimum %v", duration, min)
	}

	if duration > max {
		return fmt.Errorf("duration %v exceeds maximum %v", duration, max)
	}

	return nil
}

// ValidateIntRange checks that an integer lies within [min, max], both
// bounds inclusive. Used for poll intervals (1-1440 minutes), ports, and
// failure thresholds.
func ValidateIntRange(value, min, max int) error {
	if min > max {
		return fmt.Errorf("invalid range: min (%d) cannot be greater than max (%d)", min, max)
	}

	if value < min {
		return fmt.Errorf("value %d is below minimum %d", value, min)
	}

	if value > max {
		return fmt.Errorf("value %d exceeds maximum %d", value, max)
	}

	return nil
}

// ValidatePositiveDuration checks that a duration is strictly greater
// than zero. Timeouts, retry delays, and backoff windows all require
// this; zero would disable the mechanism and negative values are
// meaningless.
func ValidatePositiveDuration(duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", duration)
	}

	return nil
}

// ValidateOneOf checks that a value is one of the allowed options.
// Comparison is exact and case-sensitive. Used for settings with a fixed
// vocabulary, such as the storage driver name.
//
// Example:
//
//	err := ValidateOneOf("sqlite", []string{"memory", "sqlite", "postgres", "redis"})
func ValidateOneOf(value string, allowed []string) error {
	for _, option := range allowed {
		if value == option {
			return nil
		}
	}
	return fmt.Errorf("value %q is not one of %v", value, allowed)
}

// ValidateHTTPURL checks that a value is an absolute http or https URL
// with a host. Used for the remote API base URL and webhook URLs.
func ValidateHTTPURL(value string) error {
	if value == "" {
		return fmt.Errorf("invalid URL: cannot be empty")
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", value, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", value)
	}

	return nil
}
