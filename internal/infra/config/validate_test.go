package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateMissingAPIKeyAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.APIKey = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("missing key must not fail validation: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad backend", func(c *Config) { c.LLM.Backend = "grpc" }, `llm.backend "grpc" is invalid`},
		{"empty model", func(c *Config) { c.LLM.Model = "" }, "llm.model must not be empty"},
		{"negative rps", func(c *Config) { c.LLM.RateLimit.RequestsPerSecond = -1 }, "llm.rate_limit.requests_per_second"},
		{"breaker without threshold", func(c *Config) { c.LLM.CircuitBreaker.MaxFailures = 0 }, "max_failures must be > 0"},
		{"bad speech provider", func(c *Config) { c.Speech.Provider = "espeak" }, `speech.provider "espeak"`},
		{"empty voice", func(c *Config) { c.Speech.Voice = "" }, "speech.voice must not be empty"},
		{"bad audio output", func(c *Config) { c.Audio.Output = "alsa" }, `audio.output "alsa"`},
		{"unknown agent", func(c *Config) { c.Agents.Enabled = []string{"speed", "oracle"} }, `agents.enabled[1]: unknown agent "oracle"`},
		{"duplicate agent", func(c *Config) { c.Agents.Enabled = []string{"speed", "socratic", "Speed"} }, "agents.enabled[2]: SPEED already listed at index 0"},
		{"unknown template", func(c *Config) { c.Agents.Templates = map[string]string{"ORACLE": "x"} }, `agents.templates: unknown agent "ORACLE"`},
		{"temperature range", func(c *Config) { c.Agents.Temperature = 3 }, "agents.temperature"},
		{"bad gateway addr", func(c *Config) { c.Gateway.Addr = "localhost" }, "is not a valid host:port"},
		{"static auth without tokens", func(c *Config) { c.Gateway.Auth.Type = "static" }, "gateway.auth.tokens must not be empty"},
		{"open auth on public addr", func(c *Config) { c.Gateway.Addr = "0.0.0.0:8787" }, "must be static"},
		{"bad auth type", func(c *Config) { c.Gateway.Auth.Type = "oauth" }, `gateway.auth.type "oauth"`},
		{"negative run retention", func(c *Config) { c.Gateway.RunRetention.MaxRuns = -1 }, "gateway.run_retention.max_runs must not be negative"},
		{"negative run ttl", func(c *Config) { c.Gateway.RunRetention.TTL = -time.Second }, "gateway.run_retention.ttl must not be negative"},
		{"bad log level", func(c *Config) { c.Logger.Level = "verbose" }, `logger.level "verbose"`},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, `logger.format "xml"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			assertContains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateSpeechNoneSkipsVoice(t *testing.T) {
	cfg := Defaults()
	cfg.Speech.Provider = "none"
	cfg.Speech.Voice = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Backend = "x"
	cfg.Audio.Output = "y"
	err := Validate(cfg)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("err type = %T", err)
	}
	if len(ve.Errors) != 2 {
		t.Errorf("got %d errors: %v", len(ve.Errors), ve.Errors)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
