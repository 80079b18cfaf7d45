package config

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// Shared instance: promauto registers into the default registry, so a
// second NewConfigMetrics with the same component name would panic.
var testConfigMetrics = NewConfigMetrics("configtest")

func TestNewConfigMetrics(t *testing.T) {
	metrics := testConfigMetrics

	assert.NotNil(t, metrics)
	assert.NotNil(t, metrics.LoadTimestamp)
	assert.NotNil(t, metrics.ValidationErrorsTotal)
	assert.NotNil(t, metrics.FallbacksTotal)
	assert.NotNil(t, metrics.FallbackActive)
	assert.Equal(t, "configtest", metrics.componentName)
}

// isolatedMetrics builds a ConfigMetrics against a private registry so the
// behavior tests can count increments without cross-test interference.
func isolatedMetrics(t *testing.T) *ConfigMetrics {
	t.Helper()
	reg := prometheus.NewRegistry()

	m := &ConfigMetrics{
		LoadTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "isolated_config_load_timestamp",
			Help: "test",
		}),
		ValidationErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isolated_config_validation_errors_total",
			Help: "test",
		}, []string{"field"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isolated_config_fallbacks_total",
			Help: "test",
		}, []string{"field"}),
		FallbackActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "isolated_config_fallback_active",
			Help: "test",
		}),
		componentName: "isolated",
	}
	reg.MustRegister(m.LoadTimestamp, m.ValidationErrorsTotal, m.FallbacksTotal, m.FallbackActive)
	return m
}

func TestConfigMetrics_RecordLoadTimestamp(t *testing.T) {
	m := isolatedMetrics(t)

	assert.Zero(t, testutil.ToFloat64(m.LoadTimestamp))

	m.RecordLoadTimestamp()

	assert.Greater(t, testutil.ToFloat64(m.LoadTimestamp), float64(0),
		"load timestamp should be set to the current time")
}

func TestConfigMetrics_RecordValidationError(t *testing.T) {
	m := isolatedMetrics(t)

	m.RecordValidationError("kv_driver")
	m.RecordValidationError("kv_driver")
	m.RecordValidationError("fetch_timeout")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ValidationErrorsTotal.WithLabelValues("kv_driver")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ValidationErrorsTotal.WithLabelValues("fetch_timeout")))
}

func TestConfigMetrics_RecordFallback(t *testing.T) {
	m := isolatedMetrics(t)

	m.RecordFallback("poll_interval_minutes", "default")
	m.RecordFallback("poll_interval_minutes", "default")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("poll_interval_minutes")))
}

func TestConfigMetrics_SetFallbackActive(t *testing.T) {
	m := isolatedMetrics(t)

	m.SetFallbackActive("", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbackActive))

	m.SetFallbackActive("", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.FallbackActive))
}
