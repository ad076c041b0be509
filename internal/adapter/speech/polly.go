package speech

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/trace"

	"tutor-ai/internal/adapter/audio"
	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/config"
	"tutor-ai/internal/infra/tracer"
)

// pollyRate is the highest PCM rate Polly produces.
const pollyRate = 16000

// maxPollyChars is Polly's limit for plain text input.
const maxPollyChars = 3000

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Polly implements domain.SpeechSynthesizer with Amazon Polly. Output is
// resampled to domain.DefaultSampleRate so clips match the Gemini voice.
type Polly struct {
	region string
	voice  string
	engine pollytypes.Engine
	logger *slog.Logger

	mu     sync.Mutex
	client synthClient
}

// NewPolly creates a Polly synthesizer. client may be nil, in which case
// one is built from the default AWS credential chain on first use.
func NewPolly(cfg config.SpeechConfig, client synthClient, logger *slog.Logger) *Polly {
	engine := pollytypes.EngineStandard
	if strings.EqualFold(cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	return &Polly{
		region: cmp.Or(cfg.Region, "us-east-1"),
		voice:  cmp.Or(cfg.Voice, "Joanna"),
		engine: engine,
		logger: logger,
		client: client,
	}
}

// Name implements domain.SpeechSynthesizer.
func (p *Polly) Name() string { return "polly" }

// Synthesize implements domain.SpeechSynthesizer.
func (p *Polly) Synthesize(ctx context.Context, text string) (*domain.AudioClip, error) {
	ctx, span := tracer.StartSpan(ctx, "speech.synthesize",
		trace.WithAttributes(
			tracer.StringAttr("speech.provider", p.Name()),
			tracer.StringAttr("speech.voice", p.voice),
			tracer.IntAttr("speech.text_chars", len(text)),
		),
	)
	defer span.End()

	client, err := p.resolveClient(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	if r := []rune(text); len(r) > maxPollyChars {
		text = string(r[:maxPollyChars])
	}
	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       p.engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   ptr(fmt.Sprint(pollyRate)),
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(p.voice),
	})
	if err != nil {
		err = mapPollyError(err)
		tracer.RecordError(span, err)
		return nil, err
	}
	if out == nil || out.AudioStream == nil {
		tracer.SetOK(span)
		return nil, nil
	}
	defer out.AudioStream.Close()

	pcm, err := io.ReadAll(out.AudioStream)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("read polly audio: %w", err)
	}
	if len(pcm) == 0 {
		tracer.SetOK(span)
		return nil, nil
	}

	pcm, err = audio.ResamplePCM16(pcm, pollyRate, domain.DefaultSampleRate)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	clip := &domain.AudioClip{Data: pcm, SampleRate: domain.DefaultSampleRate}
	span.SetAttributes(tracer.IntAttr("speech.samples", clip.Samples()))
	tracer.SetOK(span)
	return clip, nil
}

func (p *Polly) resolveClient(ctx context.Context) (synthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	p.logger.Debug("polly client ready", "region", p.region)
	return p.client, nil
}

// mapPollyError maps Polly API errors onto the domain sentinels.
func mapPollyError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case "TooManyRequestsException", "ThrottlingException":
		return fmt.Errorf("%w: %v", domain.ErrRateLimit, err)
	case "UnrecognizedClientException", "AccessDeniedException", "InvalidSignatureException":
		return fmt.Errorf("%w: %v", domain.ErrAuthInvalid, err)
	case "TextLengthExceededException", "InvalidSsmlException", "InvalidSampleRateException":
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrProviderError, err)
	}
}

func ptr[T any](v T) *T { return &v }

var _ domain.SpeechSynthesizer = (*Polly)(nil)
