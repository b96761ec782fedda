package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy picks how long to sleep after a failed attempt
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles (or scales by Multiplier) the wait after each
// failure, capped at MaxDelay and spread by JitterFactor.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultExponentialBackoff starts at one second and caps at a minute
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(eb.MaxDelay))
	return jitter(d, eb.JitterFactor)
}

// ConstantBackoff waits the same Delay between every attempt
type ConstantBackoff struct {
	Delay time.Duration
}

func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// jitter moves d by up to ±factor of itself and never goes below zero.
func jitter(d, factor float64) time.Duration {
	if factor > 0 {
		d += d * factor * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// Wait sleeps for delay unless ctx ends first
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
