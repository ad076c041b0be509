package speech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-ai/internal/adapter/llm"
	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/config"
)

type fakeSynthClient struct {
	out   *polly.SynthesizeSpeechOutput
	err   error
	input *polly.SynthesizeSpeechInput
}

func (f *fakeSynthClient) SynthesizeSpeech(_ context.Context, in *polly.SynthesizeSpeechInput, _ ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.input = in
	return f.out, f.err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPollySynthesize(t *testing.T) {
	pcm := make([]byte, 3200) // 100ms at 16 kHz
	client := &fakeSynthClient{out: &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(bytes.NewReader(pcm))}}
	p := NewPolly(config.SpeechConfig{Voice: "Joanna", Engine: "neural"}, client, discard())

	clip, err := p.Synthesize(context.Background(), "The answer is 42")
	require.NoError(t, err)
	require.NotNil(t, clip)
	assert.Equal(t, domain.DefaultSampleRate, clip.SampleRate)
	assert.NotEmpty(t, clip.Data)
	assert.Zero(t, len(clip.Data)%2)

	require.NotNil(t, client.input)
	assert.Equal(t, pollytypes.OutputFormatPcm, client.input.OutputFormat)
	assert.Equal(t, pollytypes.EngineNeural, client.input.Engine)
	assert.Equal(t, "16000", *client.input.SampleRate)
	assert.Equal(t, "The answer is 42", *client.input.Text)
}

func TestPollyEmptyAudio(t *testing.T) {
	for name, out := range map[string]*polly.SynthesizeSpeechOutput{
		"nil output": nil,
		"nil stream": {},
		"empty":      {AudioStream: io.NopCloser(bytes.NewReader(nil))},
	} {
		t.Run(name, func(t *testing.T) {
			p := NewPolly(config.SpeechConfig{}, &fakeSynthClient{out: out}, discard())
			clip, err := p.Synthesize(context.Background(), "x")
			assert.NoError(t, err)
			assert.Nil(t, clip)
		})
	}
}

func TestPollyTruncatesLongText(t *testing.T) {
	client := &fakeSynthClient{}
	p := NewPolly(config.SpeechConfig{}, client, discard())

	long := bytes.Repeat([]byte("ă"), maxPollyChars+10)
	_, _ = p.Synthesize(context.Background(), string(long))
	assert.Len(t, []rune(*client.input.Text), maxPollyChars)
	assert.Equal(t, pollytypes.EngineStandard, client.input.Engine)
	assert.Equal(t, pollytypes.VoiceId("Joanna"), client.input.VoiceId)
}

func TestMapPollyError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"TooManyRequestsException", domain.ErrRateLimit},
		{"ThrottlingException", domain.ErrRateLimit},
		{"AccessDeniedException", domain.ErrAuthInvalid},
		{"TextLengthExceededException", domain.ErrInvalidInput},
		{"ServiceFailureException", domain.ErrProviderError},
	}
	for _, tt := range tests {
		p := NewPolly(config.SpeechConfig{}, &fakeSynthClient{err: &smithy.GenericAPIError{Code: tt.code}}, discard())
		_, err := p.Synthesize(context.Background(), "x")
		assert.ErrorIs(t, err, tt.want, tt.code)
	}

	plain := errors.New("dial tcp: timeout")
	assert.Same(t, plain, mapPollyError(plain))
}

func TestNew(t *testing.T) {
	cfg := config.Defaults()

	s, err := New(cfg, discard())
	require.NoError(t, err)
	assert.IsType(t, &llm.GeminiSpeech{}, s)

	cfg.Speech.Provider = "polly"
	s, err = New(cfg, discard())
	require.NoError(t, err)
	assert.Equal(t, "polly", s.Name())

	cfg.Speech.Provider = "none"
	s, err = New(cfg, discard())
	require.NoError(t, err)
	clip, err := s.Synthesize(context.Background(), "x")
	assert.NoError(t, err)
	assert.Nil(t, clip)

	cfg.Speech.Provider = "espeak"
	_, err = New(cfg, discard())
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
}
