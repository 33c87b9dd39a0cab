package boff

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDelaysGrowStrictlyToCap(t *testing.T) {
	initial := 100 * time.Millisecond
	maxDelay := 400 * time.Millisecond
	policy := New(initial, maxDelay)

	var delays []time.Duration
	for i := 0; i < 8; i++ {
		delays = append(delays, policy.NextBackOff())
	}

	assert.Equal(t, initial, delays[0])

	// Strictly increasing until the cap, then pinned to it.
	for i := 1; i < len(delays); i++ {
		if delays[i-1] < maxDelay {
			assert.Greater(t, delays[i], delays[i-1])
		}
		assert.LessOrEqual(t, delays[i], maxDelay)
	}
	assert.Equal(t, maxDelay, delays[len(delays)-1])
}

func TestNewResetRestartsAtInitial(t *testing.T) {
	policy := New(50*time.Millisecond, time.Second)

	first := policy.NextBackOff()
	policy.NextBackOff()
	policy.Reset()

	assert.Equal(t, first, policy.NextBackOff())
}

func TestRetryNoReturnSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := RetryNoReturn(context.Background(), func() error {
		calls++
		return nil
	}, "test")

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, func() (int, error) {
		return 0, errors.New("always failing")
	}, "test")

	require.Error(t, err)
}
