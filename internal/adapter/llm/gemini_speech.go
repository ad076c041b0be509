package llm

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/config"
	"tutor-ai/internal/infra/tracer"
)

const (
	defaultTTSModel = "gemini-2.5-flash-preview-tts"
	defaultTTSVoice = "Kore"
)

// GeminiSpeech implements domain.SpeechSynthesizer with the Gemini TTS
// models. Audio comes back as 16-bit little-endian mono PCM.
type GeminiSpeech struct {
	model   string
	voice   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGeminiSpeech creates a synthesizer. Credentials and transport settings
// are shared with the generation backend.
func NewGeminiSpeech(llmCfg config.LLMConfig, cfg config.SpeechConfig, logger *slog.Logger) *GeminiSpeech {
	return &GeminiSpeech{
		model:   cmp.Or(cfg.Model, defaultTTSModel),
		voice:   cmp.Or(cfg.Voice, defaultTTSVoice),
		apiKey:  llmCfg.APIKey,
		baseURL: cmp.Or(strings.TrimRight(llmCfg.BaseURL, "/"), defaultGeminiBaseURL),
		client:  NewHTTPClient(llmCfg),
		logger:  logger,
	}
}

// Name implements domain.SpeechSynthesizer.
func (s *GeminiSpeech) Name() string { return "gemini-tts" }

// Synthesize implements domain.SpeechSynthesizer.
func (s *GeminiSpeech) Synthesize(ctx context.Context, text string) (*domain.AudioClip, error) {
	ctx, span := tracer.StartSpan(ctx, "speech.synthesize",
		trace.WithAttributes(
			tracer.StringAttr("speech.provider", s.Name()),
			tracer.StringAttr("speech.voice", s.voice),
			tracer.IntAttr("speech.text_chars", len(text)),
		),
	)
	defer span.End()

	if s.apiKey == "" {
		err := domain.NewDomainError("GeminiSpeech.Synthesize", domain.ErrAuthInvalid, "no API key configured")
		tracer.RecordError(span, err)
		return nil, err
	}

	gc := &geminiGenerationConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig:       &geminiSpeechConfig{},
	}
	gc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = s.voice
	body, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: text}}}},
		GenerationConfig: gc,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", s.baseURL, s.model)
	respBody, err := doJSONRequest(ctx, s.client, url, body, map[string]string{"x-goog-api-key": s.apiKey})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	inline := resp.inline()
	if inline == nil {
		s.logger.Debug("speech returned no audio", "provider", s.Name())
		tracer.SetOK(span)
		return nil, nil
	}

	clip := &domain.AudioClip{Data: inline.Data, SampleRate: sampleRateFromMIME(inline.MIMEType)}
	span.SetAttributes(tracer.IntAttr("speech.samples", clip.Samples()))
	tracer.SetOK(span)
	return clip, nil
}

// sampleRateFromMIME reads the rate parameter of a type such as
// "audio/L16;codec=pcm;rate=24000".
func sampleRateFromMIME(mime string) int {
	for param := range strings.SplitSeq(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return domain.DefaultSampleRate
}

var _ domain.SpeechSynthesizer = (*GeminiSpeech)(nil)
