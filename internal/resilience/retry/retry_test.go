package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingSleep captures requested delays instead of waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) Sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func deterministicConfig(maxAttempts int) (Config, *recordingSleep) {
	sleep := &recordingSleep{}
	return Config{
		MaxAttempts:    maxAttempts,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		JitterFraction: 0,
		Sleep:          sleep.Sleep,
	}, sleep
}

func TestWithBackoff_Success(t *testing.T) {
	cfg, sleep := deterministicConfig(3)

	attempts := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if len(sleep.delays) != 0 {
		t.Errorf("expected no waits, got %v", sleep.delays)
	}
}

func TestWithBackoff_SuccessAfterKFailures(t *testing.T) {
	cfg, sleep := deterministicConfig(5)

	attempts := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		if attempts <= 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	// k failures then a success: exactly k+1 invocations.
	if attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", attempts)
	}
	// Delays follow initial*2^0, *2^1, *2^2.
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(sleep.delays) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), sleep.delays)
	}
	for i, d := range want {
		if sleep.delays[i] != d {
			t.Errorf("delay %d: expected %v, got %v", i, d, sleep.delays[i])
		}
	}
}

func TestWithBackoff_DelaysCappedAtMax(t *testing.T) {
	sleep := &recordingSleep{}
	cfg := Config{
		MaxAttempts:  6,
		InitialDelay: 1 * time.Second,
		MaxDelay:     4 * time.Second,
		Sleep:        sleep.Sleep,
	}

	_ = WithBackoff(context.Background(), cfg, func() error {
		return errors.New("always")
	})

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second,
		4 * time.Second, 4 * time.Second,
	}
	if len(sleep.delays) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), sleep.delays)
	}
	for i, d := range want {
		if sleep.delays[i] != d {
			t.Errorf("delay %d: expected %v, got %v", i, d, sleep.delays[i])
		}
	}
}

func TestWithBackoff_ExhaustionReturnsOriginalError(t *testing.T) {
	cfg, _ := deterministicConfig(3)

	sentinel := errors.New("quota exceeded")
	err := WithBackoff(context.Background(), cfg, func() error {
		return sentinel
	})

	// The original error comes back unwrapped so attached codes survive.
	if err != sentinel {
		t.Errorf("expected the original error, got %v", err)
	}
}

func TestWithBackoff_RetryIfStopsEarly(t *testing.T) {
	cfg, _ := deterministicConfig(5)
	cfg.RetryIf = func(err error) bool { return false }

	attempts := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		return errors.New("fatal")
	})

	if err == nil {
		t.Error("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt for non-retryable error, got %d", attempts)
	}
}

func TestWithBackoff_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
	}

	attempts := 0
	err := WithBackoff(ctx, cfg, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestWithBackoffNotify_ObservesEveryFailure(t *testing.T) {
	cfg, _ := deterministicConfig(3)

	var observed []int
	err := WithBackoffNotify(context.Background(), cfg, func() error {
		return errors.New("always")
	}, func(attempt int, err error) {
		observed = append(observed, attempt)
	})

	if err == nil {
		t.Error("expected error after exhaustion")
	}
	if len(observed) != 3 {
		t.Fatalf("expected 3 observed failures, got %v", observed)
	}
	for i, attempt := range observed {
		if attempt != i+1 {
			t.Errorf("failure %d reported attempt %d", i, attempt)
		}
	}
}

func TestStorageConfig_Deterministic(t *testing.T) {
	cfg := StorageConfig()

	if cfg.JitterFraction != 0 {
		t.Errorf("storage schedule must be jitter-free, got %f", cfg.JitterFraction)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected 100ms initial delay, got %v", cfg.InitialDelay)
	}
}

func TestHTTPError_Error(t *testing.T) {
	err := &HTTPError{StatusCode: 500, Message: "Internal Server Error"}
	expected := "HTTP 500: Internal Server Error"

	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !err.IsServerError() {
		t.Error("500 should classify as server error")
	}
	if (&HTTPError{StatusCode: 404}).IsServerError() {
		t.Error("404 should not classify as server error")
	}
}

func TestAddJitter(t *testing.T) {
	duration := 100 * time.Millisecond

	results := make(map[time.Duration]bool)
	for i := 0; i < 10; i++ {
		result := addJitter(duration, 0.2)

		if result < duration || result > time.Duration(float64(duration)*1.2) {
			t.Errorf("jitter out of range: %v", result)
		}
		results[result] = true
	}

	if len(results) < 2 {
		t.Error("expected jitter to produce varied results")
	}
}

func TestAddJitter_ZeroFraction(t *testing.T) {
	duration := 100 * time.Millisecond
	if got := addJitter(duration, 0); got != duration {
		t.Errorf("expected no jitter with fraction=0, got %v", got)
	}
}
