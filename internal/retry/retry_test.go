package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simulatedClock records requested delays instead of sleeping.
type simulatedClock struct {
	delays []time.Duration
}

func (c *simulatedClock) sleep(ctx context.Context, d time.Duration) error {
	c.delays = append(c.delays, d)
	return ctx.Err()
}

func (c *simulatedClock) elapsed() time.Duration {
	var total time.Duration
	for _, d := range c.delays {
		total += d
	}
	return total
}

func TestPolicy_ApplyDefaults(t *testing.T) {
	t.Run("applies all defaults when empty", func(t *testing.T) {
		p := Policy{}
		p.ApplyDefaults()

		assert.Equal(t, 3, p.MaxRetries)
		assert.Equal(t, time.Second, p.InitialDelay)
		assert.Equal(t, 10*time.Second, p.MaxDelay)
		assert.Equal(t, 2.0, p.BackoffFactor)
	})

	t.Run("preserves non-zero values", func(t *testing.T) {
		p := Policy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 3}
		p.ApplyDefaults()

		assert.Equal(t, 5, p.MaxRetries)
		assert.Equal(t, 2*time.Second, p.InitialDelay)
		assert.Equal(t, time.Minute, p.MaxDelay)
		assert.Equal(t, 3.0, p.BackoffFactor)
	})
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	clock := &simulatedClock{}
	exec := NewExecutor(nil, WithSleep(clock.sleep))
	policy := Policy{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	callCount := 0
	result, err := Do(context.Background(), exec, "open session", policy, func(ctx context.Context) (string, error) {
		callCount++
		if callCount < 3 {
			return "", errors.New("dial tcp 127.0.0.1:9222: connection refused")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.delays)
	assert.Equal(t, 300*time.Millisecond, clock.elapsed())
}

func TestDo_UnclassifiedFailsFast(t *testing.T) {
	clock := &simulatedClock{}
	exec := NewExecutor(nil, WithSleep(clock.sleep))
	boom := errors.New("something nobody has seen before")

	callCount := 0
	_, err := Do(context.Background(), exec, "open session", DefaultPolicy(), func(ctx context.Context) (int, error) {
		callCount++
		return 0, boom
	})

	assert.Same(t, boom, err)
	assert.Equal(t, 1, callCount)
	assert.Empty(t, clock.delays)
}

func TestDo_NonRecoverableFailsFast(t *testing.T) {
	clock := &simulatedClock{}
	exec := NewExecutor(nil, WithSleep(clock.sleep))
	fatal := errors.New("no debuggable page target found")

	callCount := 0
	_, err := Do(context.Background(), exec, "select target", DefaultPolicy(), func(ctx context.Context) (int, error) {
		callCount++
		return 0, fatal
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, callCount)
}

func TestDo_Exhausted(t *testing.T) {
	clock := &simulatedClock{}
	exec := NewExecutor(nil, WithSleep(clock.sleep))
	policy := Policy{MaxRetries: 4, InitialDelay: 300 * time.Millisecond, MaxDelay: 500 * time.Millisecond, BackoffFactor: 2}
	last := errors.New("DEPRECATED_ENDPOINT")

	callCount := 0
	_, err := Do(context.Background(), exec, "open session", policy, func(ctx context.Context) (struct{}, error) {
		callCount++
		return struct{}{}, last
	})

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, err, last)
	assert.Equal(t, "open session failed after 4 attempts: DEPRECATED_ENDPOINT", err.Error())
	assert.Equal(t, 4, callCount)

	// Delay growth is capped at MaxDelay and no wait follows the last attempt.
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}, clock.delays)
}

func TestDo_ContextCanceledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecutor(nil)
	callCount := 0
	_, err := Do(ctx, exec, "open session", Policy{MaxRetries: 3, InitialDelay: time.Hour}, func(ctx context.Context) (int, error) {
		callCount++
		return 0, errors.New("connection reset by peer")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

func TestDo_NilExecutor(t *testing.T) {
	v, err := Do(context.Background(), nil, "noop", DefaultPolicy(), func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
