package domain

import "context"

// ResponseFormat is the MIME type requested from the generation backend.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text/plain"
	FormatJSON ResponseFormat = "application/json"
)

// Part is one piece of prompt content: either text or an inline image.
type Part struct {
	Text   string
	Inline *Image
}

// GenerationRequest is a single-turn generation call.
type GenerationRequest struct {
	Parts          []Part
	ResponseFormat ResponseFormat
	Temperature    float32
}

// StreamDelta is a single incremental chunk from a streaming response.
// A delta with Err set is the last one on its channel.
type StreamDelta struct {
	Text string
	Err  error
}

// GenerationBackend is the external text generation service.
type GenerationBackend interface {
	// StreamGenerate starts a streaming call. The channel is closed when the
	// stream ends. Errors that happen after the stream opened are delivered
	// in-band as a final delta with Err set.
	StreamGenerate(ctx context.Context, req GenerationRequest) (<-chan StreamDelta, error)
	// Generate performs a non-streaming call and returns the full text.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Name returns the backend identifier (e.g., "gemini").
	Name() string
}

// SpeechSynthesizer turns text into PCM audio. A nil clip with a nil error
// means the backend produced no audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (*AudioClip, error)
	Name() string
}
