package llm

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"tutor-ai/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend is a scripted domain.GenerationBackend.
type fakeBackend struct {
	name string

	mu        sync.Mutex
	calls     int
	genText   string
	genErr    error
	streamErr error
	deltas    []domain.StreamDelta
}

func (f *fakeBackend) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeBackend) Generate(_ context.Context, _ domain.GenerationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.genText, f.genErr
}

func (f *fakeBackend) StreamGenerate(_ context.Context, _ domain.GenerationRequest) (<-chan domain.StreamDelta, error) {
	f.mu.Lock()
	f.calls++
	deltas, err := f.deltas, f.streamErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ch := make(chan domain.StreamDelta, len(deltas))
	for _, d := range deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func drain(ch <-chan domain.StreamDelta) (string, error) {
	var text string
	var err error
	for d := range ch {
		text += d.Text
		if d.Err != nil {
			err = d.Err
		}
	}
	return text, err
}
