package llm

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/config"
)

// BackendFactory builds a generation backend from configuration.
type BackendFactory func(cfg config.LLMConfig, logger *slog.Logger) domain.GenerationBackend

// Registry maps backend names ("rest", "sdk") to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}

// NewRegistry creates a registry with the built-in backends.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]BackendFactory)}
	_ = r.Register("rest", func(cfg config.LLMConfig, logger *slog.Logger) domain.GenerationBackend {
		return NewGeminiBackend(cfg, logger)
	})
	_ = r.Register("sdk", func(cfg config.LLMConfig, logger *slog.Logger) domain.GenerationBackend {
		return NewGenAIBackend(cfg, logger)
	})
	return r
}

// Register adds a factory. Returns error if name already registered.
func (r *Registry) Register(name string, f BackendFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("backend %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// List returns all registered backend names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Build creates the configured backend and applies the optional throttle
// and circuit breaker layers. The breaker sits outside the throttle so an
// open circuit fails fast without waiting for a token.
func (r *Registry) Build(cfg config.LLMConfig, logger *slog.Logger) (domain.GenerationBackend, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError("Registry.Build", domain.ErrNotFound, fmt.Sprintf("backend %q", cfg.Backend))
	}

	b := f(cfg, logger)
	if cfg.RateLimit.RequestsPerSecond > 0 {
		b = NewThrottledBackend(b, cfg.RateLimit)
	}
	if cfg.CircuitBreaker.Enabled {
		b = NewCircuitBreakerBackend(b, cfg.CircuitBreaker, logger)
	}
	logger.Debug("generation backend ready", "backend", b.Name(), "model", cfg.Model)
	return b, nil
}
