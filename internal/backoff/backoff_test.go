package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeWithRand(t *testing.T) {
	p := Policy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0}
	require.Equal(t, 100*time.Millisecond, computeWithRand(p, 1, 0.5))
	require.Equal(t, 200*time.Millisecond, computeWithRand(p, 2, 0.5))
	require.Equal(t, 400*time.Millisecond, computeWithRand(p, 3, 0.5))
}

func TestComputeClampsToMax(t *testing.T) {
	p := Policy{InitialMs: 100, MaxMs: 500, Factor: 2, Jitter: 0}
	require.Equal(t, 500*time.Millisecond, computeWithRand(p, 10, 0.5))
}

var errTemporary = errors.New("temporary")

func TestRetrySucceedsAfterFailures(t *testing.T) {
	ctx := context.Background()
	policy := Policy{InitialMs: 1, MaxMs: 10, Factor: 2, Jitter: 0}
	attempts := 0
	result, err := Retry(ctx, policy, 5, func(attempt int) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errTemporary
		}
		return attempts, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.Value)
	require.Equal(t, 3, result.Attempts)
}

func TestRetryExhausted(t *testing.T) {
	ctx := context.Background()
	policy := Policy{InitialMs: 1, MaxMs: 10, Factor: 2, Jitter: 0}
	_, err := Retry(ctx, policy, 2, func(attempt int) (int, error) {
		return 0, errTemporary
	})
	require.ErrorIs(t, err, ErrAttemptsExhausted)
}

func TestRetryRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := Policy{InitialMs: 100, MaxMs: 1000, Factor: 2, Jitter: 0}
	_, err := Retry(ctx, policy, 5, func(attempt int) (int, error) {
		return 1, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStateStorePolicyBounds(t *testing.T) {
	p := StateStorePolicy()
	require.Equal(t, 1000.0, p.InitialMs)
	require.Equal(t, 10000.0, p.MaxMs)
}
