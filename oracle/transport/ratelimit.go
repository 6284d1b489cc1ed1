package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"oracle-router/oracle/types"
)

const (
	defaultRateLimitTokens = 10
	defaultRateLimitRefill = 5.0
)

type (
	// RateLimitConfig describes one token bucket: capacity MaxTokens,
	// refilled at RefillRate tokens per second.
	RateLimitConfig struct {
		MaxTokens  int
		RefillRate float64
	}

	// HostLimiter maintains a token bucket per remote host. When an upstream
	// answers 429 with Retry-After, the host is locally embargoed until the
	// deadline so we stop burning attempts against it.
	HostLimiter struct {
		mtx      sync.Mutex
		cfg      RateLimitConfig
		limiters map[string]*rate.Limiter
		resetAt  map[string]time.Time
	}
)

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxTokens:  defaultRateLimitTokens,
		RefillRate: defaultRateLimitRefill,
	}
}

func NewHostLimiter(cfg RateLimitConfig) *HostLimiter {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultRateLimitTokens
	}
	if cfg.RefillRate <= 0 {
		cfg.RefillRate = defaultRateLimitRefill
	}

	return &HostLimiter{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
		resetAt:  make(map[string]time.Time),
	}
}

// Acquire blocks until n tokens are available for host or ctx is done. Calls
// against a host inside its rate-limit embargo fail fast without waiting.
func (l *HostLimiter) Acquire(ctx context.Context, host string, n int) error {
	l.mtx.Lock()
	if deadline, ok := l.resetAt[host]; ok {
		if wait := time.Until(deadline); wait > 0 {
			l.mtx.Unlock()
			rateLimitReject(host)
			return types.NewError(types.KindRateLimit, "host is rate limited upstream").
				WithDetail("host", host).
				WithDetail("retry_after_ms", wait.Milliseconds())
		}
		delete(l.resetAt, host)
	}

	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.cfg.RefillRate), l.cfg.MaxTokens)
		l.limiters[host] = limiter
	}
	l.mtx.Unlock()

	if err := limiter.WaitN(ctx, n); err != nil {
		if ctx.Err() != nil {
			return types.NewError(types.KindCancelled, "cancelled while waiting for rate limit").
				WithDetail("host", host)
		}
		return types.NewError(types.KindRateLimit, err.Error()).WithDetail("host", host)
	}

	return nil
}

// SetRetryAfter embargoes host for the given duration, typically taken from
// a 429 Retry-After header.
func (l *HostLimiter) SetRetryAfter(host string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}
	l.mtx.Lock()
	l.resetAt[host] = time.Now().Add(retryAfter)
	l.mtx.Unlock()
}

// Limited reports whether host is currently embargoed.
func (l *HostLimiter) Limited(host string) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	deadline, ok := l.resetAt[host]
	return ok && time.Now().Before(deadline)
}
