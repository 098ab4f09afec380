package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithExponentialBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
	assert.NoError(t, result.Err())
}

func TestWithExponentialBackoff_GivesUp(t *testing.T) {
	sentinel := errors.New("down")
	result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		return sentinel
	})

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.ErrorIs(t, result.Err(), sentinel)
}

func TestWithExponentialBackoff_ShouldRetryStopsEarly(t *testing.T) {
	cfg := fastConfig()
	cfg.ShouldRetry = func(err error) bool { return false }

	calls := 0
	result := WithExponentialBackoff(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("permanent")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
}

func TestWithExponentialBackoff_ContextCancelled(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	result := WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
		cancel()
		return errors.New("fail")
	})

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err(), context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, 300*time.Millisecond, calculateDelay(cfg, 3))
}
