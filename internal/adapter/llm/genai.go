package llm

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/config"
	"tutor-ai/internal/infra/tracer"
)

// GenAIBackend implements domain.GenerationBackend with the official Google
// Gen AI SDK. The client is created on first use so a missing key only
// fails the calls that need it.
type GenAIBackend struct {
	cfg    config.LLMConfig
	model  string
	logger *slog.Logger

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewGenAIBackend creates an SDK-backed generation backend.
func NewGenAIBackend(cfg config.LLMConfig, logger *slog.Logger) *GenAIBackend {
	return &GenAIBackend{
		cfg:    cfg,
		model:  cmp.Or(cfg.Model, defaultGeminiModel),
		logger: logger,
	}
}

// Name implements domain.GenerationBackend.
func (b *GenAIBackend) Name() string { return "genai" }

func (b *GenAIBackend) getClient(ctx context.Context) (*genai.Client, error) {
	b.once.Do(func() {
		if b.cfg.APIKey == "" {
			b.clientErr = domain.NewDomainError("GenAIBackend.client", domain.ErrAuthInvalid, "no API key configured")
			return
		}
		cc := &genai.ClientConfig{
			APIKey:     b.cfg.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: NewHTTPClient(b.cfg),
		}
		if b.cfg.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(b.cfg.BaseURL, "/") + "/"}
		}
		b.client, b.clientErr = genai.NewClient(ctx, cc)
		if b.clientErr != nil {
			b.clientErr = fmt.Errorf("create genai client: %w", b.clientErr)
		}
	})
	return b.client, b.clientErr
}

// Generate implements domain.GenerationBackend.
func (b *GenAIBackend) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.generate",
		trace.WithAttributes(
			tracer.StringAttr("llm.backend", b.Name()),
			tracer.StringAttr("llm.model", b.model),
		),
	)
	defer span.End()

	client, err := b.getClient(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}

	contents, cfg := toGenAIRequest(req)
	resp, err := client.Models.GenerateContent(ctx, b.model, contents, cfg)
	if err != nil {
		err = mapGenAIError(err)
		tracer.RecordError(span, err)
		return "", err
	}

	text := genAIText(resp)
	span.SetAttributes(tracer.IntAttr("llm.response_chars", len(text)))
	tracer.SetOK(span)
	b.logger.Debug("llm generate completed", "backend", b.Name(), "model", b.model, "chars", len(text))
	return text, nil
}

// StreamGenerate implements domain.GenerationBackend. The SDK opens the
// connection lazily, so every failure is delivered in-band.
func (b *GenAIBackend) StreamGenerate(ctx context.Context, req domain.GenerationRequest) (<-chan domain.StreamDelta, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return nil, err
	}

	contents, cfg := toGenAIRequest(req)
	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		for chunk, err := range client.Models.GenerateContentStream(ctx, b.model, contents, cfg) {
			var d domain.StreamDelta
			if err != nil {
				d.Err = mapGenAIError(err)
			} else if d.Text = genAIText(chunk); d.Text == "" {
				continue
			}
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
			if d.Err != nil {
				return
			}
		}
	}()
	return ch, nil
}

func toGenAIRequest(req domain.GenerationRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	var parts []*genai.Part
	for _, p := range req.Parts {
		switch {
		case p.Inline != nil:
			parts = append(parts, genai.NewPartFromBytes(p.Inline.Data, cmp.Or(p.Inline.MIMEType, domain.DefaultImageMIME)))
		case p.Text != "":
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
	}

	temp := req.Temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if req.ResponseFormat == domain.FormatJSON {
		cfg.ResponseMIMEType = string(domain.FormatJSON)
	}
	return []*genai.Content{{Role: genai.RoleUser, Parts: parts}}, cfg
}

func genAIText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// mapGenAIError gives SDK API errors the same sentinels as the REST backend.
func mapGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return mapHTTPError(apiErr.Code, []byte(apiErr.Status+": "+apiErr.Message))
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return mapHTTPError(apiErrPtr.Code, []byte(apiErrPtr.Status+": "+apiErrPtr.Message))
	}
	return err
}

var _ domain.GenerationBackend = (*GenAIBackend)(nil)
