package llm

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/config"
	"tutor-ai/internal/infra/tracer"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.5-flash"
)

// GeminiBackend implements domain.GenerationBackend over the Gemini REST API.
type GeminiBackend struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGeminiBackend creates a backend for the Gemini REST API.
func NewGeminiBackend(cfg config.LLMConfig, logger *slog.Logger) *GeminiBackend {
	return &GeminiBackend{
		model:   cmp.Or(cfg.Model, defaultGeminiModel),
		apiKey:  cfg.APIKey,
		baseURL: cmp.Or(strings.TrimRight(cfg.BaseURL, "/"), defaultGeminiBaseURL),
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
}

// Name implements domain.GenerationBackend.
func (b *GeminiBackend) Name() string { return "gemini" }

// Generate implements domain.GenerationBackend.
func (b *GeminiBackend) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.generate",
		trace.WithAttributes(
			tracer.StringAttr("llm.backend", b.Name()),
			tracer.StringAttr("llm.model", b.model),
		),
	)
	defer span.End()

	if b.apiKey == "" {
		err := domain.NewDomainError("GeminiBackend.Generate", domain.ErrAuthInvalid, "no API key configured")
		tracer.RecordError(span, err)
		return "", err
	}

	body, err := json.Marshal(toGeminiRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", b.baseURL, b.model)
	respBody, err := doJSONRequest(ctx, b.client, url, body, b.headers())
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		tracer.RecordError(span, err)
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	text := resp.text()
	span.SetAttributes(tracer.IntAttr("llm.response_chars", len(text)))
	if resp.UsageMetadata != nil {
		span.SetAttributes(tracer.IntAttr("llm.total_tokens", resp.UsageMetadata.TotalTokenCount))
	}
	tracer.SetOK(span)
	b.logger.Debug("llm generate completed", "backend", b.Name(), "model", b.model, "chars", len(text))
	return text, nil
}

// StreamGenerate implements domain.GenerationBackend.
func (b *GeminiBackend) StreamGenerate(ctx context.Context, req domain.GenerationRequest) (<-chan domain.StreamDelta, error) {
	if b.apiKey == "" {
		return nil, domain.NewDomainError("GeminiBackend.StreamGenerate", domain.ErrAuthInvalid, "no API key configured")
	}

	body, err := json.Marshal(toGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", b.baseURL, b.model)
	httpResp, err := doStreamRequest(ctx, b.client, url, body, b.headers())
	if err != nil {
		return nil, err
	}

	return parseSSEStream(ctx, httpResp.Body, parseGeminiChunk), nil
}

func (b *GeminiBackend) headers() map[string]string {
	return map[string]string{"x-goog-api-key": b.apiKey}
}

// parseGeminiChunk converts one SSE data payload. Chunks carrying only
// metadata produce no delta.
func parseGeminiChunk(data []byte) (*domain.StreamDelta, error) {
	if err := inBandError(data); err != nil {
		return &domain.StreamDelta{Err: err}, nil
	}
	var chunk geminiResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("%w: malformed stream chunk: %v", domain.ErrProviderError, err)
	}
	text := chunk.text()
	if text == "" {
		return nil, nil
	}
	return &domain.StreamDelta{Text: text}, nil
}

// --- Gemini API wire types ---

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

// geminiInlineData carries binary content. Data is base64 on the wire,
// which encoding/json does for []byte.
type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature        *float32            `json:"temperature,omitempty"`
	ResponseMIMEType   string              `json:"responseMimeType,omitempty"`
	ResponseModalities []string            `json:"responseModalities,omitempty"`
	SpeechConfig       *geminiSpeechConfig `json:"speechConfig,omitempty"`
}

type geminiSpeechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// text concatenates the text parts of the first candidate.
func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// inline returns the first inline data part of the first candidate.
func (r geminiResponse) inline() *geminiInlineData {
	if len(r.Candidates) == 0 {
		return nil
	}
	for _, p := range r.Candidates[0].Content.Parts {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return p.InlineData
		}
	}
	return nil
}

func toGeminiRequest(req domain.GenerationRequest) geminiRequest {
	content := geminiContent{Role: "user"}
	for _, p := range req.Parts {
		switch {
		case p.Inline != nil:
			content.Parts = append(content.Parts, geminiPart{InlineData: &geminiInlineData{
				MIMEType: cmp.Or(p.Inline.MIMEType, domain.DefaultImageMIME),
				Data:     p.Inline.Data,
			}})
		case p.Text != "":
			content.Parts = append(content.Parts, geminiPart{Text: p.Text})
		}
	}

	temp := req.Temperature
	gc := &geminiGenerationConfig{Temperature: &temp}
	if req.ResponseFormat == domain.FormatJSON {
		gc.ResponseMIMEType = string(domain.FormatJSON)
	}
	return geminiRequest{Contents: []geminiContent{content}, GenerationConfig: gc}
}

var _ domain.GenerationBackend = (*GeminiBackend)(nil)
