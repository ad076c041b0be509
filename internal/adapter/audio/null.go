package audio

import (
	"sync"
	"time"

	"tutor-ai/internal/domain"
)

// NullOutput is a silent device. Sources "play" for the clip's duration
// and then report completion, so playback bookkeeping behaves as with a
// real device on headless hosts.
type NullOutput struct{}

// NewSource implements domain.AudioOutput.
func (NullOutput) NewSource(samples []float32, sampleRate int) (domain.AudioSource, error) {
	if sampleRate <= 0 {
		sampleRate = domain.DefaultSampleRate
	}
	return &nullSource{d: time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)}, nil
}

// Close implements domain.AudioOutput.
func (NullOutput) Close() error { return nil }

type nullSource struct {
	d time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func (s *nullSource) Start(onEnded func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = time.AfterFunc(s.d, func() {
		if onEnded != nil {
			onEnded()
		}
	})
	return nil
}

func (s *nullSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	return nil
}

func (s *nullSource) Disconnect() { _ = s.Stop() }
