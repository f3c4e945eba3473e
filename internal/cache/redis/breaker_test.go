package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errDown = errors.New("connection refused")

func newTestBreaker(threshold int) (*breaker, *testClock) {
	clk := &testClock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	return newBreaker(threshold, time.Minute, clk.Now, zap.NewNop()), clk
}

func failCall() error { return errDown }
func okCall() error   { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()

	assert.ErrorIs(t, b.do(ctx, failCall), errDown)
	assert.ErrorIs(t, b.do(ctx, failCall), errDown)
	require.NoError(t, b.do(ctx, okCall))
	assert.Equal(t, stateClosed, b.current(), "a success resets the count")

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.do(ctx, failCall), errDown)
	}
	assert.Equal(t, stateOpen, b.current())

	called := false
	err := b.do(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenLetsOneCallThrough(t *testing.T) {
	b, clk := newTestBreaker(1)
	ctx := context.Background()

	require.ErrorIs(t, b.do(ctx, failCall), errDown)
	clk.Advance(59 * time.Second)
	assert.ErrorIs(t, b.do(ctx, okCall), ErrCircuitOpen)

	clk.Advance(time.Second)
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.do(ctx, func() error {
			<-release
			return nil
		})
	}()

	require.Eventually(t, func() bool { return b.current() == stateHalfOpen }, time.Second, time.Millisecond)
	assert.ErrorIs(t, b.do(ctx, okCall), ErrCircuitOpen, "only one trial call at a time")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, stateClosed, b.current())
	assert.NoError(t, b.do(ctx, okCall))
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	b, clk := newTestBreaker(2)
	ctx := context.Background()

	b.do(ctx, failCall)
	b.do(ctx, failCall)
	require.Equal(t, stateOpen, b.current())

	clk.Advance(time.Minute)
	assert.ErrorIs(t, b.do(ctx, failCall), errDown)
	assert.Equal(t, stateOpen, b.current(), "one failed trial is enough")
	assert.ErrorIs(t, b.do(ctx, okCall), ErrCircuitOpen)

	clk.Advance(time.Minute)
	assert.NoError(t, b.do(ctx, okCall))
	assert.Equal(t, stateClosed, b.current())
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	b, _ := newTestBreaker(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := b.do(ctx, func() error { called = true; return errDown })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)

	err = b.do(context.Background(), func() error { return context.DeadlineExceeded })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, stateClosed, b.current())
}
