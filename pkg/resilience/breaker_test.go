package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario G (spec §8): 8 consecutive failures opens the breaker; the
// next call is rejected with gobreaker.ErrOpenState without invoking fn.
func TestHostBreakersOpensAfterThreshold(t *testing.T) {
	hb := NewHostBreakers(8, 50*time.Millisecond)
	failing := errors.New("upstream down")

	for i := 0; i < 8; i++ {
		_, err := hb.Execute("host-g", func() (any, error) { return nil, failing })
		assert.ErrorIs(t, err, failing)
	}

	assert.Equal(t, "open", hb.State("host-g"))

	calls := 0
	_, err := hb.Execute("host-g", func() (any, error) { calls++; return nil, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 0, calls)
}

// Scenario F (spec §8): fewer than 8 consecutive failures never opens the
// breaker, and a subsequent success is recorded normally.
func TestHostBreakersStaysClosedBelowThreshold(t *testing.T) {
	hb := NewHostBreakers(8, 50*time.Millisecond)
	failing := errors.New("503")

	for i := 0; i < 3; i++ {
		_, _ = hb.Execute("host-f", func() (any, error) { return nil, failing })
	}
	assert.Equal(t, "closed", hb.State("host-f"))

	result, err := hb.Execute("host-f", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, "closed", hb.State("host-f"))
}

func TestHostBreakersAreIndependentPerHost(t *testing.T) {
	hb := NewHostBreakers(8, 50*time.Millisecond)
	failing := errors.New("down")

	for i := 0; i < 8; i++ {
		_, _ = hb.Execute("flaky-host", func() (any, error) { return nil, failing })
	}
	assert.Equal(t, "open", hb.State("flaky-host"))
	assert.Equal(t, "closed", hb.State("healthy-host"))
}

func TestHostBreakersHalfOpensAfterResetTimeout(t *testing.T) {
	hb := NewHostBreakers(8, 20*time.Millisecond)
	failing := errors.New("down")

	for i := 0; i < 8; i++ {
		_, _ = hb.Execute("host-reset", func() (any, error) { return nil, failing })
	}
	assert.Equal(t, "open", hb.State("host-reset"))

	time.Sleep(30 * time.Millisecond)

	result, err := hb.Execute("host-reset", func() (any, error) { return "recovered", nil })
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, "closed", hb.State("host-reset"))
}
