package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ConfigLoadResult represents the result of loading a configuration value.
// It contains the loaded value, any warnings generated during loading,
// and a flag indicating whether a fallback value was used.
//
// This type is used by all loader functions to provide consistent
// fallback behavior across different configuration types.
//
// Fields:
//   - Value: The loaded configuration value (may be the default if validation failed)
//   - Warnings: List of warning messages (one per fallback applied)
//   - FallbackApplied: True if the default value was used due to a parse or validation failure
//
// Example:
//
//	result := LoadEnvDuration("FETCH_TIMEOUT", 10*time.Second, validateFetchTimeout)
//	if result.FallbackApplied {
//	    for _, warning := range result.Warnings {
//	        logger.Warn(warning)
//	    }
//	}
//	timeout := result.Value.(time.Duration)
type ConfigLoadResult struct {
	Value           interface{}
	Warnings        []string
	FallbackApplied bool
}

// fallbackResult builds the result for a failed load: the default value,
// one warning in the standard format, and the fallback flag set.
func fallbackResult(envKey, rawValue string, reason error, defaultValue interface{}) ConfigLoadResult {
	warning := fmt.Sprintf(
		"Invalid %s='%s': %v, falling back to default '%v'",
		envKey, rawValue, reason, defaultValue,
	)
	return ConfigLoadResult{
		Value:           defaultValue,
		Warnings:        []string{warning},
		FallbackApplied: true,
	}
}

// loadedResult builds the result for a successful load.
func loadedResult(value interface{}) ConfigLoadResult {
	return ConfigLoadResult{Value: value}
}

// LoadEnvString loads a string value from an environment variable.
// If the environment variable is not set, the default value is returned.
// No validation is performed.
//
// Example:
//
//	path := LoadEnvString("SQLITE_PATH", "notifsync.db")
//
// Use LoadEnvWithFallback if validation is needed.
func LoadEnvString(envKey, defaultValue string) string {
	value := os.Getenv(envKey)
	if value == "" {
		return defaultValue
	}
	return value
}

// LoadEnvWithFallback loads a string value from an environment variable
// with validation and automatic fallback to default on validation failure.
//
// Loading behavior:
//  1. Read environment variable
//  2. If not set or empty: Use default value (no warning)
//  3. If set: Validate using provided validator (nil skips validation)
//  4. If validation fails: Use default value and generate warning
//
// This function never returns an error. It always returns a usable
// configuration value, either from the environment or the default.
// Validation failures result in warnings, not errors.
//
// Example:
//
//	result := LoadEnvWithFallback("KV_DRIVER", "sqlite", func(v string) error {
//	    return ValidateOneOf(v, []string{"memory", "sqlite", "postgres", "redis"})
//	})
//	driver := result.Value.(string)
//
// Warning format:
//
//	"Invalid {envKey}='{value}': {error}, falling back to default '{default}'"
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) ConfigLoadResult {
	value := os.Getenv(envKey)
	if value == "" {
		return loadedResult(defaultValue)
	}

	if validator != nil {
		if err := validator(value); err != nil {
			return fallbackResult(envKey, value, err, defaultValue)
		}
	}

	return loadedResult(value)
}

// LoadEnvDuration loads a duration value from an environment variable
// with parsing, validation, and automatic fallback to default on failure.
//
// The value must be a Go duration string parseable by time.ParseDuration:
// "10s", "5m", "1h30m", and so on. A parse or validation failure falls
// back to the default with a warning; an unset variable uses the default
// silently.
//
// Example:
//
//	result := LoadEnvDuration("CIRCUIT_MAX_BACKOFF", 5*time.Minute, ValidatePositiveDuration)
//	backoff := result.Value.(time.Duration)
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) ConfigLoadResult {
	valueStr := os.Getenv(envKey)
	if valueStr == "" {
		return loadedResult(defaultValue)
	}

	parsed, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallbackResult(envKey, valueStr, err, defaultValue)
	}

	if validator != nil {
		if err := validator(parsed); err != nil {
			return fallbackResult(envKey, valueStr, err, defaultValue)
		}
	}

	return loadedResult(parsed)
}

// LoadEnvInt loads an integer value from an environment variable
// with parsing, validation, and automatic fallback to default on failure.
//
// The value must be a plain base-10 integer with no spaces, decimals, or
// trailing characters. A parse or validation failure falls back to the
// default with a warning; an unset variable uses the default silently.
//
// Example:
//
//	result := LoadEnvInt("POLL_INTERVAL_MINUTES", 5, func(v int) error {
//	    return ValidateIntRange(v, 1, 1440)
//	})
//	interval := result.Value.(int)
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) ConfigLoadResult {
	valueStr := os.Getenv(envKey)
	if valueStr == "" {
		return loadedResult(defaultValue)
	}

	parsed, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallbackResult(envKey, valueStr, fmt.Errorf("invalid integer format"), defaultValue)
	}

	if validator != nil {
		if err := validator(parsed); err != nil {
			return fallbackResult(envKey, valueStr, err, defaultValue)
		}
	}

	return loadedResult(parsed)
}

// LoadEnvBool loads a boolean value from an environment variable
// with parsing and automatic fallback to default on failure.
//
// Accepted values follow strconv.ParseBool: "1", "t", "T", "true",
// "TRUE", "True" and their false counterparts. Anything else falls back
// to the default with a warning; an unset variable uses the default
// silently.
//
// Example:
//
//	result := LoadEnvBool("SLACK_ENABLED", false)
//	enabled := result.Value.(bool)
func LoadEnvBool(envKey string, defaultValue bool) ConfigLoadResult {
	valueStr := os.Getenv(envKey)
	if valueStr == "" {
		return loadedResult(defaultValue)
	}

	parsed, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fallbackResult(envKey, valueStr,
			fmt.Errorf("invalid boolean format, expected 'true' or 'false'"), defaultValue)
	}

	return loadedResult(parsed)
}
