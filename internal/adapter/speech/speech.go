// Package speech provides domain.SpeechSynthesizer implementations.
package speech

import (
	"context"
	"fmt"
	"log/slog"

	"tutor-ai/internal/adapter/llm"
	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/config"
)

// Disabled produces no audio. Enrichment stops after the summary.
type Disabled struct{}

// Synthesize implements domain.SpeechSynthesizer.
func (Disabled) Synthesize(context.Context, string) (*domain.AudioClip, error) { return nil, nil }

// Name implements domain.SpeechSynthesizer.
func (Disabled) Name() string { return "none" }

// New returns the configured synthesizer.
func New(cfg *config.Config, logger *slog.Logger) (domain.SpeechSynthesizer, error) {
	switch cfg.Speech.Provider {
	case "gemini", "":
		return llm.NewGeminiSpeech(cfg.LLM, cfg.Speech, logger), nil
	case "polly":
		sc := cfg.Speech
		// The default voice is a Gemini voice; let Polly pick its own.
		if sc.Voice == config.Defaults().Speech.Voice {
			sc.Voice = ""
		}
		return NewPolly(sc, nil, logger), nil
	case "none":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown speech provider %q", domain.ErrConfigLoad, cfg.Speech.Provider)
	}
}
