package usecase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"tutor-ai/internal/domain"
)

// --- Mocks ---

type mockBackend struct {
	mu sync.Mutex

	deltas   []domain.StreamDelta
	startErr error
	streams  int
	lastReq  domain.GenerationRequest

	genText string
	genErr  error
	gens    int
	genReqs []domain.GenerationRequest
}

func (m *mockBackend) StreamGenerate(_ context.Context, req domain.GenerationRequest) (<-chan domain.StreamDelta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams++
	m.lastReq = req
	if m.startErr != nil {
		return nil, m.startErr
	}
	ch := make(chan domain.StreamDelta, len(m.deltas))
	for _, d := range m.deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func (m *mockBackend) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens++
	m.genReqs = append(m.genReqs, req)
	return m.genText, m.genErr
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) streamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams
}

func (m *mockBackend) generateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens
}

type mockSpeech struct {
	mu    sync.Mutex
	clip  *domain.AudioClip
	err   error
	calls int
	texts []string
}

func (m *mockSpeech) Synthesize(_ context.Context, text string) (*domain.AudioClip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.texts = append(m.texts, text)
	return m.clip, m.err
}

func (m *mockSpeech) Name() string { return "mock-speech" }

func (m *mockSpeech) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func() { return func() {} }
func (b *recordingBus) Close() {}

func (b *recordingBus) ofType(t domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// payloadOf decodes the JSON payload of e.
func payloadOf[T any](t *testing.T, e domain.Event) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(e.Payload, &v))
	return v
}

func textDeltas(parts ...string) []domain.StreamDelta {
	out := make([]domain.StreamDelta, len(parts))
	for i, p := range parts {
		out[i] = domain.StreamDelta{Text: p}
	}
	return out
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
