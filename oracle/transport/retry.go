package transport

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"oracle-router/oracle/types"
)

const (
	defaultMaxAttempts   = 3
	defaultBaseDelay     = time.Second
	defaultMaxDelay      = 30 * time.Second
	defaultBackoffFactor = 2.0
)

// RetryConfig controls how failed calls are re-attempted. Only errors whose
// kind appears in RetriableKinds are retried; anything else surfaces
// immediately.
type RetryConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	Jitter         bool
	RetriableKinds []types.ErrorKind
}

// DefaultRetryConfig retries transient upstream failures three times with
// jittered exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   defaultMaxAttempts,
		BaseDelay:     defaultBaseDelay,
		MaxDelay:      defaultMaxDelay,
		BackoffFactor: defaultBackoffFactor,
		Jitter:        true,
		RetriableKinds: []types.ErrorKind{
			types.KindRateLimit,
			types.KindTimeout,
			types.KindNetwork,
			types.KindProvider,
		},
	}
}

// Delay computes the backoff before attempt n (1-based): exponential growth
// capped at MaxDelay, then scaled into [0.5, 1.0) when jitter is on so
// concurrent callers spread out.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(c.BaseDelay) * math.Pow(c.BackoffFactor, float64(attempt-1))
	if limit := float64(c.MaxDelay); delay > limit {
		delay = limit
	}
	if c.Jitter {
		delay *= 0.5 + rand.Float64()*0.5
	}

	return time.Duration(delay)
}

// Retriable reports whether err is worth another attempt.
func (c RetryConfig) Retriable(err error) bool {
	var oerr *types.Error
	if !errors.As(err, &oerr) {
		return false
	}
	for _, kind := range c.RetriableKinds {
		if oerr.Kind == kind {
			return true
		}
	}
	return false
}

// Do runs op until it succeeds, exhausts MaxAttempts, hits a non-retriable
// error, or ctx is cancelled. The last operation error is returned as-is;
// cancellation during a backoff sleep returns the context error.
func (c RetryConfig) Do(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !c.Retriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	maxRetries := uint64(0)
	if c.MaxAttempts > 1 {
		maxRetries = uint64(c.MaxAttempts - 1)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&retryBackOff{cfg: c}, maxRetries), ctx)
	return backoff.Retry(wrapped, b)
}

// retryBackOff adapts the delay schedule to the backoff library so Do gets
// context-aware sleeps and attempt capping for free.
type retryBackOff struct {
	cfg     RetryConfig
	attempt int
}

var _ backoff.BackOff = (*retryBackOff)(nil)

func (b *retryBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.cfg.Delay(b.attempt)
}

func (b *retryBackOff) Reset() {
	b.attempt = 0
}
