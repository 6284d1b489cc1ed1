package transport

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"oracle-router/oracle/types"
)

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 60 * time.Second
)

type (
	// BreakerConfig tunes when a breaker opens and how long it stays open.
	BreakerConfig struct {
		FailureThreshold uint32
		RecoveryTimeout  time.Duration
	}

	// Breaker sheds load from a degraded upstream. Consecutive failures
	// reaching the threshold open it; after the recovery timeout a single
	// probe is let through, closing it again on success.
	Breaker struct {
		cb     *gobreaker.CircuitBreaker
		logger zerolog.Logger
	}
)

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: defaultFailureThreshold,
		RecoveryTimeout:  defaultRecoveryTimeout,
	}
}

func NewBreaker(name string, cfg BreakerConfig, logger zerolog.Logger) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = defaultRecoveryTimeout
	}

	breakerLogger := logger.With().Str("module", "breaker").Str("breaker", name).Logger()

	return &Breaker{
		logger: breakerLogger,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cfg.RecoveryTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				breakerLogger.Info().
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
				setBreakerState(name, to)
			},
		}),
	}
}

// Execute runs fn through the breaker. When the breaker rejects the call the
// upstream is not contacted and a PROVIDER error is returned so callers can
// fail over.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, types.NewError(types.KindProvider, "circuit breaker open").
			WithDetail("breaker", b.cb.Name())
	}
	return out, err
}

// State returns closed, half-open or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
