package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollExhaustsAfterExactAttempts(t *testing.T) {
	calls := 0
	_, attempt, err := Poll(context.Background(), Policy{Attempts: 4, Interval: time.Millisecond},
		func(context.Context, int) (string, bool, error) {
			calls++
			return "", false, nil
		})

	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, attempt)
}

func TestPollStopsOnFirstSuccess(t *testing.T) {
	got, attempt, err := Poll(context.Background(), Policy{Attempts: 10, Interval: time.Millisecond},
		func(_ context.Context, n int) (int, bool, error) {
			return n * 10, n == 3, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, attempt)
	assert.Equal(t, 30, got)
}

func TestPollReturnsAttemptError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, attempt, err := Poll(context.Background(), Policy{Attempts: 5},
		func(context.Context, int) (int, bool, error) {
			calls++
			return 0, false, boom
		})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempt)
}

func TestPollNoWaitAfterLastAttempt(t *testing.T) {
	start := time.Now()
	_, _, err := Poll(context.Background(), Policy{Attempts: 1, Interval: time.Hour},
		func(context.Context, int) (int, bool, error) { return 0, false, nil })

	require.ErrorIs(t, err, ErrExhausted)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollTimeout(t *testing.T) {
	_, _, err := Poll(context.Background(), Policy{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond},
		func(context.Context, int) (int, bool, error) { return 0, false, nil })

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPollCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, attempt, err := Poll(ctx, Policy{Attempts: 3},
		func(context.Context, int) (int, bool, error) {
			calls++
			return 0, true, nil
		})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
	assert.Zero(t, attempt)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
