package usecase

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/tracer"
	"tutor-ai/internal/usecase/resultcache"
)

// AudioCache is the subset of the result cache the enricher needs.
type AudioCache interface {
	GetAudio(key string) (*domain.AudioClip, bool)
	PutAudio(key string, clip *domain.AudioClip)
}

// EnricherDeps holds the dependencies for an Enricher.
type EnricherDeps struct {
	Backend     domain.GenerationBackend
	Speech      domain.SpeechSynthesizer
	Cache       AudioCache
	Prompts     *PromptBuilder
	Bus         domain.EventBus // optional
	Temperature float32
	Logger      *slog.Logger
}

// Enricher runs the post-completion pipeline for a run: summarize the
// primary answer, synthesize speech, attach the clip. It runs at most once
// per run and never reports failure to the caller.
type Enricher struct {
	deps EnricherDeps
}

// NewEnricher creates an enricher.
func NewEnricher(deps EnricherDeps) *Enricher {
	if deps.Prompts == nil {
		deps.Prompts = NewPromptBuilder(nil)
	}
	if deps.Temperature <= 0 {
		deps.Temperature = DefaultTemperature
	}
	return &Enricher{deps: deps}
}

// Enrich runs the pipeline for run. Calls after the first for the same run
// return immediately. Any failing step ends the pipeline; the failure is
// logged and swallowed.
func (e *Enricher) Enrich(ctx context.Context, run *Run) {
	if run == nil || !run.TryMarkEnriched() {
		return
	}

	ctx, span := tracer.StartSpan(ctx, "enrich.run",
		trace.WithAttributes(tracer.StringAttr("run.id", run.ID)),
	)
	defer span.End()

	text, ok := run.PrimaryText()
	if !ok {
		e.deps.Logger.Debug("enrichment skipped, no primary answer", "run_id", run.ID)
		return
	}

	summary, err := e.deps.Backend.Generate(ctx, domain.GenerationRequest{
		Parts:          e.deps.Prompts.SummaryParts(text),
		ResponseFormat: domain.FormatText,
		Temperature:    e.deps.Temperature,
	})
	if err != nil {
		e.fail(span, run, "summary", domain.TranslateError(err))
		return
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		e.deps.Logger.Debug("enrichment stopped, empty summary", "run_id", run.ID)
		return
	}
	run.attachSummary(summary)

	clip, err := e.synthesize(ctx, summary)
	if err != nil {
		e.fail(span, run, "speech", domain.TranslateError(err))
		return
	}
	if clip == nil {
		e.deps.Logger.Debug("enrichment stopped, no audio", "run_id", run.ID)
		return
	}
	run.attachAudio(clip)

	tracer.SetOK(span)
	if e.deps.Bus != nil {
		e.deps.Bus.Publish(ctx, domain.NewEvent(domain.EventRunEnriched, run.ID, domain.RunEnrichedPayload{
			Summary:      summary,
			AudioSamples: clip.Samples(),
			SampleRate:   clip.SampleRate,
		}))
	}
	e.deps.Logger.Info("run enriched",
		"run_id", run.ID,
		"summary_chars", len(summary),
		"audio", clip.Duration(),
	)
}

// synthesize returns speech for text, consulting the audio cache first.
func (e *Enricher) synthesize(ctx context.Context, text string) (*domain.AudioClip, error) {
	key := resultcache.AudioKey(text)
	if e.deps.Cache != nil {
		if clip, ok := e.deps.Cache.GetAudio(key); ok {
			return clip, nil
		}
	}
	clip, err := e.deps.Speech.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if clip != nil && len(clip.Data) > 0 && e.deps.Cache != nil {
		e.deps.Cache.PutAudio(key, clip)
	}
	if clip != nil && len(clip.Data) == 0 {
		return nil, nil
	}
	return clip, nil
}

func (e *Enricher) fail(span trace.Span, run *Run, step string, err error) {
	tracer.RecordError(span, err)
	e.deps.Logger.Warn("enrichment failed",
		"run_id", run.ID,
		"step", step,
		"code", domain.ErrorCodeOf(err),
		"error", err,
	)
}
