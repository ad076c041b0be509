// Package playback owns the single active speech playback of the process.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tutor-ai/internal/domain"
)

// OutputFactory opens the platform audio output. It is called at most once
// per successful open.
type OutputFactory func() (domain.AudioOutput, error)

// Manager plays one clip at a time. Starting a clip stops and releases the
// current one first.
type Manager struct {
	open   OutputFactory
	logger *slog.Logger

	mu     sync.Mutex
	output domain.AudioOutput
	active domain.AudioSource
}

// NewManager creates a manager. The output is opened lazily on first Play.
func NewManager(open OutputFactory, logger *slog.Logger) *Manager {
	return &Manager{open: open, logger: logger}
}

// Play starts clip and returns a channel that is closed when it plays to
// the end. If the clip is stopped or replaced by a later Play, the channel
// is never closed.
func (m *Manager) Play(ctx context.Context, clip *domain.AudioClip) (<-chan struct{}, error) {
	_, done, err := m.play(clip)
	return done, err
}

// play starts clip and returns its source along with the end channel.
func (m *Manager) play(clip *domain.AudioClip) (domain.AudioSource, <-chan struct{}, error) {
	if clip == nil || len(clip.Data) == 0 {
		return nil, nil, fmt.Errorf("%w: empty clip", domain.ErrAudioFormat)
	}
	samples, err := DecodePCM16(clip.Data)
	if err != nil {
		return nil, nil, err
	}
	rate := clip.SampleRate
	if rate <= 0 {
		rate = domain.DefaultSampleRate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	out, err := m.outputLocked()
	if err != nil {
		return nil, nil, err
	}
	src, err := out.NewSource(samples, rate)
	if err != nil {
		return nil, nil, domain.WrapOp("Playback.Play", err)
	}

	done := make(chan struct{})
	var once sync.Once
	// Devices may report the end from inside Start, so take the lock on a
	// separate goroutine.
	onEnded := func() {
		go func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.active != src {
				return
			}
			m.active = nil
			src.Disconnect()
			once.Do(func() { close(done) })
		}()
	}
	if err := src.Start(onEnded); err != nil {
		src.Disconnect()
		return nil, nil, domain.WrapOp("Playback.Play", err)
	}
	m.active = src

	m.logger.Debug("playback started", "samples", len(samples), "sample_rate", rate)
	return src, done, nil
}

// PlayAndWait plays clip and blocks until it ends or ctx is done. A
// superseded or stopped clip blocks until ctx is done. Cancelling ctx stops
// the clip only while it is still the active one.
func (m *Manager) PlayAndWait(ctx context.Context, clip *domain.AudioClip) error {
	src, done, err := m.play(clip)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.stopIfActive(src)
		return ctx.Err()
	}
}

// Stop halts the active clip, if any. It is safe to call when idle.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopLocked()
	m.mu.Unlock()
}

// Playing reports whether a clip is active.
func (m *Manager) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// Close stops playback and releases the output device.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	if m.output == nil {
		return nil
	}
	err := m.output.Close()
	m.output = nil
	return err
}

func (m *Manager) stopIfActive(src domain.AudioSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == src {
		m.stopLocked()
	}
}

func (m *Manager) stopLocked() {
	if m.active == nil {
		return
	}
	if err := m.active.Stop(); err != nil {
		m.logger.Debug("stop previous playback", "error", err)
	}
	m.active.Disconnect()
	m.active = nil
}

func (m *Manager) outputLocked() (domain.AudioOutput, error) {
	if m.output != nil {
		return m.output, nil
	}
	out, err := m.open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAudioDevice, err)
	}
	m.output = out
	return out, nil
}
