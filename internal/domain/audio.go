package domain

import "time"

// DefaultSampleRate is the rate of speech returned by the TTS backend.
const DefaultSampleRate = 24000

// AudioClip is mono little-endian 16-bit PCM.
type AudioClip struct {
	Data       []byte `json:"data"`
	SampleRate int    `json:"sample_rate"`
}

// Samples returns the number of 16-bit frames in the clip.
func (c *AudioClip) Samples() int {
	if c == nil {
		return 0
	}
	return len(c.Data) / 2
}

// Duration returns the playback length of the clip.
func (c *AudioClip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Samples()) * time.Second / time.Duration(c.SampleRate)
}

// AudioOutput is a platform audio output context. Creating one may be
// expensive, so a process keeps at most one.
type AudioOutput interface {
	// NewSource prepares decoded samples for playback without starting it.
	NewSource(samples []float32, sampleRate int) (AudioSource, error)
	Close() error
}

// AudioSource is one prepared playback.
type AudioSource interface {
	// Start begins playback. onEnded is called once when the source plays
	// to its natural end. It is not called after Stop.
	Start(onEnded func()) error
	// Stop halts playback. Stopping a source that already ended may error.
	Stop() error
	// Disconnect releases the source's resources.
	Disconnect()
}
