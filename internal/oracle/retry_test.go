package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Timeout:           time.Second,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), nil, "test", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), nil, "test", func(ctx context.Context) error {
		attempts++
		return errors.New("rate limit exceeded")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // 1 initial + 2 retries
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetryNonRetriableFailsImmediately(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), nil, "test", func(ctx context.Context) error {
		attempts++
		return errors.New("401 unauthorized")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryCustomPredicate(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.Retryable = func(err error) bool { return false }

	attempts := 0
	err := retryWithBackoff(context.Background(), cfg, nil, "test", func(ctx context.Context) error {
		attempts++
		return errors.New("timeout") // transient by default, but predicate says no
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryWithBackoff(ctx, fastRetryConfig(), nil, "test", func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	require.Error(t, err)
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 rate limit"), true},
		{"server error", errors.New("internal server error"), true},
		{"bad gateway", errors.New("502 bad gateway"), true},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"auth", errors.New("401 unauthorized"), false},
		{"bad request", errors.New("400 invalid request body"), false},
		{"unknown", errors.New("something odd"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, isTransientError(tt.err))
		})
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, time.Hour)

	assert.Equal(t, CircuitClosed, cb.State())
	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Allow())
		cb.RecordFailure()
	}

	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, time.Millisecond)

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	// After the open timeout the breaker half-opens and probes.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 1, time.Millisecond)

	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, 1, time.Hour)

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	// Two non-consecutive failures must not open a threshold-2 breaker.
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestRetryWithBreakerFailsFastWhenOpen(t *testing.T) {
	cfg := fastRetryConfig()
	cb := NewCircuitBreaker(1, 1, time.Hour)
	cb.RecordFailure() // breaker now open

	attempts := 0
	err := retryWithBackoff(context.Background(), cfg, cb, "test", func(ctx context.Context) error {
		attempts++
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, attempts)
}
