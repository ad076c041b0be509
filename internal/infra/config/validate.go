package config

import (
	"fmt"
	"net"
	"strings"

	"tutor-ai/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Unwrap lets callers match the error with domain.ErrConfigLoad.
func (v *ValidationError) Unwrap() error { return domain.ErrConfigLoad }

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// A missing API key is not an error here; each backend call reports it.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateSpeech(cfg, ve)
	validateAudio(cfg, ve)
	validateAgents(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validBackends = map[string]bool{
	"rest": true,
	"sdk":  true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if !validBackends[cfg.LLM.Backend] {
		ve.Add("llm.backend %q is invalid (want: rest, sdk)", cfg.LLM.Backend)
	}
	if cfg.LLM.Model == "" {
		ve.Add("llm.model must not be empty")
	}
	if cfg.LLM.ConnTimeout < 0 || cfg.LLM.RespTimeout < 0 {
		ve.Add("llm timeouts must not be negative")
	}
	validateRateLimit("llm.rate_limit", cfg.LLM.RateLimit, ve)
	if cb := cfg.LLM.CircuitBreaker; cb.Enabled && cb.MaxFailures == 0 {
		ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
	}
}

func validateRateLimit(path string, rl RateLimitConfig, ve *ValidationError) {
	if rl.RequestsPerSecond < 0 {
		ve.Add("%s.requests_per_second must not be negative", path)
	}
	if rl.RequestsPerSecond > 0 && rl.Burst < 0 {
		ve.Add("%s.burst must not be negative", path)
	}
}

var validSpeechProviders = map[string]bool{
	"gemini": true,
	"polly":  true,
	"none":   true,
}

func validateSpeech(cfg *Config, ve *ValidationError) {
	p := cfg.Speech.Provider
	if !validSpeechProviders[p] {
		ve.Add("speech.provider %q is invalid (want: gemini, polly, none)", p)
		return
	}
	if p == "none" {
		return
	}
	if cfg.Speech.Voice == "" {
		ve.Add("speech.voice must not be empty")
	}
	if p == "gemini" && cfg.Speech.Model == "" {
		ve.Add("speech.model must not be empty for the gemini provider")
	}
}

func validateAudio(cfg *Config, ve *ValidationError) {
	switch cfg.Audio.Output {
	case "oto", "none":
	default:
		ve.Add("audio.output %q is invalid (want: oto, none)", cfg.Audio.Output)
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	seen := make(map[domain.AgentKind]int, len(cfg.Agents.Enabled))
	for i, name := range cfg.Agents.Enabled {
		kind, err := domain.ParseAgentKind(name)
		if err != nil {
			ve.Add("agents.enabled[%d]: unknown agent %q", i, name)
			continue
		}
		if first, dup := seen[kind]; dup {
			ve.Add("agents.enabled[%d]: %s already listed at index %d", i, kind, first)
			continue
		}
		seen[kind] = i
	}
	for name := range cfg.Agents.Templates {
		if _, err := domain.ParseAgentKind(name); err != nil {
			ve.Add("agents.templates: unknown agent %q", name)
		}
	}
	if cfg.Agents.Temperature < 0 || cfg.Agents.Temperature > 2 {
		ve.Add("agents.temperature must be within [0, 2]")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	loopback := true
	if cfg.Gateway.Addr != "" {
		host, _, err := net.SplitHostPort(cfg.Gateway.Addr)
		if err != nil {
			ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
		}
		ip := net.ParseIP(host)
		loopback = host == "localhost" || (ip != nil && ip.IsLoopback())
	}
	switch cfg.Gateway.Auth.Type {
	case "":
		if !loopback {
			ve.Add("gateway.auth.type must be static when gateway.addr %q is not loopback", cfg.Gateway.Addr)
		}
	case "static":
		if len(cfg.Gateway.Auth.Tokens) == 0 {
			ve.Add("gateway.auth.tokens must not be empty for static auth")
		}
		for i, tok := range cfg.Gateway.Auth.Tokens {
			if tok.Token == "" {
				ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
			}
		}
	default:
		ve.Add("gateway.auth.type %q is invalid (want: static)", cfg.Gateway.Auth.Type)
	}
	validateRateLimit("gateway.rate_limit", cfg.Gateway.RateLimit, ve)
	if cfg.Gateway.RunRetention.MaxRuns < 0 {
		ve.Add("gateway.run_retention.max_runs must not be negative")
	}
	if cfg.Gateway.RunRetention.TTL < 0 {
		ve.Add("gateway.run_retention.ttl must not be negative")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}
