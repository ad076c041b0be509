package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/tracer"
)

// DefaultTemperature keeps answers close to deterministic.
const DefaultTemperature float32 = 0.1

// TextCache is the subset of the result cache the dispatcher needs.
type TextCache interface {
	GetText(fingerprint string) (string, bool)
	PutText(fingerprint, text string)
}

// DispatcherDeps holds the dependencies for a Dispatcher.
type DispatcherDeps struct {
	Backend     domain.GenerationBackend
	Cache       TextCache
	Prompts     *PromptBuilder
	Temperature float32
	Logger      *slog.Logger
}

// Dispatcher runs one agent request against the streaming backend, or
// answers it from cache.
type Dispatcher struct {
	deps DispatcherDeps
}

// NewDispatcher creates a dispatcher. A zero Temperature falls back to
// DefaultTemperature and a nil Prompts uses the default templates.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.Temperature <= 0 {
		deps.Temperature = DefaultTemperature
	}
	if deps.Prompts == nil {
		deps.Prompts = NewPromptBuilder(nil)
	}
	return &Dispatcher{deps: deps}
}

// Dispatch streams the answer for req. onFragment receives the cumulative
// text after every fragment; on a cache hit it is called exactly once with
// the cached text and the backend is not contacted. A non-empty final text
// is cached. Rate-limit failures are returned as domain.ErrOverloaded; all
// other failures are returned unchanged. There is no retry.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.AgentRequest, onFragment func(string)) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "dispatch.agent",
		trace.WithAttributes(
			tracer.StringAttr("agent", string(req.Agent)),
			tracer.StringAttr("subject", string(req.Subject)),
		),
	)
	defer span.End()

	key := req.Fingerprint()
	if cached, ok := d.deps.Cache.GetText(key); ok {
		span.AddEvent("cache.hit")
		if onFragment != nil {
			onFragment(cached)
		}
		tracer.SetOK(span)
		return cached, nil
	}

	parts, err := d.deps.Prompts.Parts(req)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}

	format := domain.FormatText
	if req.Agent.Structured() {
		format = domain.FormatJSON
	}

	deltaCh, err := d.deps.Backend.StreamGenerate(ctx, domain.GenerationRequest{
		Parts:          parts,
		ResponseFormat: format,
		Temperature:    d.deps.Temperature,
	})
	if err != nil {
		err = domain.TranslateError(err)
		tracer.RecordError(span, err)
		d.logFailure(req, err)
		return "", err
	}

	agg := NewStreamAggregator(onFragment)
	for delta := range deltaCh {
		if delta.Err != nil {
			err = domain.TranslateError(delta.Err)
			// Drain so the producer goroutine can exit.
			for range deltaCh {
			}
			tracer.RecordError(span, err)
			d.logFailure(req, err)
			return "", err
		}
		if delta.Text == "" {
			continue
		}
		agg.Add(delta.Text)
	}
	if err := ctx.Err(); err != nil {
		tracer.RecordError(span, err)
		return "", fmt.Errorf("dispatch %s: %w", req.Agent, err)
	}

	full := agg.Finish()
	if full != "" {
		d.deps.Cache.PutText(key, full)
	}
	span.SetAttributes(tracer.IntAttr("response.chars", len(full)))
	tracer.SetOK(span)
	d.deps.Logger.Debug("agent dispatch completed",
		"agent", req.Agent,
		"chars", len(full),
	)
	return full, nil
}

func (d *Dispatcher) logFailure(req domain.AgentRequest, err error) {
	d.deps.Logger.Warn("agent dispatch failed",
		"agent", req.Agent,
		"subject", req.Subject,
		"code", domain.ErrorCodeOf(err),
		"error", err,
	)
}
