package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	sentinel := errors.New("client error 404")
	err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) error {
		attempts++
		return NonRetryable(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsMaxRetries(t *testing.T) {
	attempts := 0
	persistent := errors.New("still failing")
	err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) error {
		attempts++
		return persistent
	})
	assert.ErrorIs(t, err, persistent)
	// MaxRetries=3 means up to 4 total attempts (1 initial + 3 retries).
	assert.Equal(t, 4, attempts)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, fastPolicy(), func(ctx context.Context) error {
		attempts++
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, attempts)
}
