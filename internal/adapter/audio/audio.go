// Package audio provides domain.AudioOutput devices.
package audio

import (
	"fmt"
	"log/slog"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/config"
)

// New returns the configured output device. An unavailable system device
// falls back to NullOutput with a warning so answers still render.
func New(cfg config.AudioConfig, logger *slog.Logger) (domain.AudioOutput, error) {
	switch cfg.Output {
	case "none":
		return NullOutput{}, nil
	case "oto", "":
		out, err := NewOtoOutput(logger)
		if err != nil {
			logger.Warn("audio device unavailable, playback disabled", "error", err)
			return NullOutput{}, nil
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown audio output %q", domain.ErrConfigLoad, cfg.Output)
	}
}
