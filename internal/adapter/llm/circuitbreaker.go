package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerBackend wraps a GenerationBackend with circuit breaker
// protection. When the wrapped backend fails repeatedly the circuit opens
// and calls fail fast with domain.ErrCircuitOpen.
//
// Rate limiting is not counted as a failure: a 429 must keep reaching the
// caller as an overload, not be masked by an open circuit.
type CircuitBreakerBackend struct {
	inner   domain.GenerationBackend
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

// NewCircuitBreakerBackend wraps inner with a circuit breaker. Zero values
// in cfg fall back to defaults.
func NewCircuitBreakerBackend(inner domain.GenerationBackend, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerBackend {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrRateLimit) ||
				errors.Is(err, context.Canceled)
		},
	})

	return &CircuitBreakerBackend{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Generate implements domain.GenerationBackend.
func (b *CircuitBreakerBackend) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	text, err := b.breaker.Execute(func() (string, error) {
		return b.inner.Generate(ctx, req)
	})
	if err != nil {
		return "", b.wrap(err)
	}
	return text, nil
}

// StreamGenerate implements domain.GenerationBackend. The breaker guards
// stream setup; a failure delivered in-band is recorded once the stream
// ends.
func (b *CircuitBreakerBackend) StreamGenerate(ctx context.Context, req domain.GenerationRequest) (<-chan domain.StreamDelta, error) {
	var in <-chan domain.StreamDelta
	_, err := b.breaker.Execute(func() (string, error) {
		var streamErr error
		in, streamErr = b.inner.StreamGenerate(ctx, req)
		return "", streamErr
	})
	if err != nil {
		return nil, b.wrap(err)
	}

	out := make(chan domain.StreamDelta, cap(in))
	go func() {
		defer close(out)
		var last error
		for d := range in {
			if d.Err != nil {
				last = d.Err
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
		if last != nil && !errors.Is(last, domain.ErrRateLimit) && !errors.Is(last, context.Canceled) {
			// A failure after the stream opened still counts toward tripping.
			_, _ = b.breaker.Execute(func() (string, error) { return "", last })
		}
	}()
	return out, nil
}

func (b *CircuitBreakerBackend) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("backend %q: %w: %v", b.inner.Name(), domain.ErrCircuitOpen, err)
	}
	return err
}

// Name implements domain.GenerationBackend.
func (b *CircuitBreakerBackend) Name() string { return b.inner.Name() }

// State returns the current circuit breaker state for monitoring.
func (b *CircuitBreakerBackend) State() gobreaker.State {
	return b.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (b *CircuitBreakerBackend) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}

var _ domain.GenerationBackend = (*CircuitBreakerBackend)(nil)
