package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/config"
)

// ThrottledBackend spaces out calls to a GenerationBackend with a token
// bucket. Callers wait for a token; a cancelled context aborts the wait.
type ThrottledBackend struct {
	inner   domain.GenerationBackend
	limiter *rate.Limiter
}

// NewThrottledBackend wraps inner. Burst defaults to the number of agents
// so one run's fan-out is never delayed by its own size.
func NewThrottledBackend(inner domain.GenerationBackend, cfg config.RateLimitConfig) *ThrottledBackend {
	burst := cfg.Burst
	if burst <= 0 {
		burst = len(domain.AllAgents())
	}
	return &ThrottledBackend{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

// Generate implements domain.GenerationBackend.
func (b *ThrottledBackend) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := b.wait(ctx); err != nil {
		return "", err
	}
	return b.inner.Generate(ctx, req)
}

// StreamGenerate implements domain.GenerationBackend.
func (b *ThrottledBackend) StreamGenerate(ctx context.Context, req domain.GenerationRequest) (<-chan domain.StreamDelta, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return b.inner.StreamGenerate(ctx, req)
}

func (b *ThrottledBackend) wait(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle %s: %w", b.inner.Name(), err)
	}
	return nil
}

// Name implements domain.GenerationBackend.
func (b *ThrottledBackend) Name() string { return b.inner.Name() }

var _ domain.GenerationBackend = (*ThrottledBackend)(nil)
