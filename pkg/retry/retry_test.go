package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	errBusy  = errors.New("database is locked")
	errFatal = errors.New("constraint failed")
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errBusy
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	cfg := fastConfig()
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, errBusy) }

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errFatal
	})

	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, attempts)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 2
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, errBusy) }

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errBusy
	})

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 2, attempts)
}

func TestDoWithResult(t *testing.T) {
	id, err := DoWithResult(context.Background(), fastConfig(), func() (int64, error) {
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastConfig(), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithoutPredicateRetriesAnyError(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 3

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errFatal
	})

	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 3, attempts)
}
