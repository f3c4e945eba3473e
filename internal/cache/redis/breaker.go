package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without touching Redis while the breaker is open.
var ErrCircuitOpen = errors.New("redis circuit breaker is open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// breaker stops sending cache traffic to Redis after threshold consecutive
// failures. Once cooldown has passed a single trial call goes through: success
// closes the breaker, failure opens it for another cooldown. Callers treat
// ErrCircuitOpen as a cache miss.
type breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	trial    bool
}

func newBreaker(threshold int, cooldown time.Duration, now func() time.Time, logger *zap.Logger) *breaker {
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		logger:    logger,
	}
}

// do runs fn unless the breaker is open. A cancelled caller context says
// nothing about Redis health and is not counted either way.
func (b *breaker) do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.allow(); err != nil {
		return err
	}

	err := fn()
	b.record(err)
	return err
}

func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.setState(stateHalfOpen)
		b.trial = true
		return nil
	case stateHalfOpen:
		if b.trial {
			return ErrCircuitOpen
		}
		b.trial = true
		return nil
	default:
		return nil
	}
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		b.trial = false
		return
	}

	if err == nil {
		b.failures = 0
		b.trial = false
		if b.state != stateClosed {
			b.setState(stateClosed)
		}
		return
	}

	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.threshold {
		b.failures = 0
		b.trial = false
		b.openedAt = b.now()
		b.setState(stateOpen)
		b.logger.Warn("Redis unavailable, serving summaries from the store", zap.Error(err))
	}
}

func (b *breaker) setState(to breakerState) {
	from := b.state
	b.state = to
	b.logger.Info("Circuit breaker state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
