package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"tutor-ai/internal/domain"
)

// pollInterval is how often a playing source checks for its natural end.
const pollInterval = 20 * time.Millisecond

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// OtoOutput plays through the system audio device. The device is opened
// once per process at domain.DefaultSampleRate; clips at other rates are
// resampled.
type OtoOutput struct {
	logger *slog.Logger
}

// NewOtoOutput opens the system audio device.
func NewOtoOutput(logger *slog.Logger) (*OtoOutput, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   domain.DefaultSampleRate,
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
		})
		if otoErr == nil {
			<-ready
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAudioDevice, otoErr)
	}
	if err := otoCtx.Resume(); err != nil {
		return nil, fmt.Errorf("%w: resume: %v", domain.ErrAudioDevice, err)
	}
	return &OtoOutput{logger: logger}, nil
}

// NewSource implements domain.AudioOutput.
func (o *OtoOutput) NewSource(samples []float32, sampleRate int) (domain.AudioSource, error) {
	samples, err := Resample(samples, sampleRate, domain.DefaultSampleRate)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(s))
	}
	return &otoSource{player: otoCtx.NewPlayer(bytes.NewReader(buf)), logger: o.logger}, nil
}

// Close suspends the device. The oto context itself lives for the process.
func (o *OtoOutput) Close() error {
	return otoCtx.Suspend()
}

type otoSource struct {
	player *oto.Player
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
	quit    chan struct{}
}

func (s *otoSource) Start(onEnded func()) error {
	s.mu.Lock()
	s.quit = make(chan struct{})
	quit := s.quit
	s.mu.Unlock()

	s.player.Play()
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				if !s.player.IsPlaying() {
					if onEnded != nil {
						onEnded()
					}
					return
				}
			}
		}
	}()
	return nil
}

func (s *otoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.quit != nil {
		close(s.quit)
	}
	s.player.Pause()
	return nil
}

func (s *otoSource) Disconnect() {
	_ = s.Stop()
	if err := s.player.Close(); err != nil {
		s.logger.Debug("close audio player", "error", err)
	}
}
