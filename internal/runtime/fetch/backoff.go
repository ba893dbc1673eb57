package fetch

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds one logical remote call.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 are treated as 1.
	MaxAttempts int
	// BaseDelay precedes the second attempt; each later delay doubles.
	BaseDelay time.Duration
	// MaxDelay caps a single delay. Zero means uncapped.
	MaxDelay time.Duration
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// newBackOff returns a non-jittered exponential schedule whose k-th value is
// BaseDelay * 2^(k-1).
func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	initial := p.BaseDelay
	maxInterval := time.Duration(math.MaxInt64)
	if p.MaxDelay > 0 {
		maxInterval = p.MaxDelay
		if initial > maxInterval {
			initial = maxInterval
		}
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
	}
	b.Reset()
	return b
}

// Delays lists the waits that precede attempts 2 through MaxAttempts.
func (p Policy) Delays() []time.Duration {
	n := p.attempts() - 1
	b := p.newBackOff()
	out := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, b.NextBackOff())
	}
	return out
}

// WaitFunc suspends the calling request for d or until ctx ends.
type WaitFunc func(ctx context.Context, d time.Duration) error

// timerWait is the default WaitFunc. Each call owns its timer so concurrent
// requests never block each other.
func timerWait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
