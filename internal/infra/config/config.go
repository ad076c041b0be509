package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Speech  SpeechConfig  `yaml:"speech"`
	Audio   AudioConfig   `yaml:"audio"`
	Agents  AgentsConfig  `yaml:"agents"`
	Gateway GatewayConfig `yaml:"gateway"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// LLMConfig holds generation backend settings.
type LLMConfig struct {
	Backend        string               `yaml:"backend"` // "rest" or "sdk"
	Model          string               `yaml:"model"`
	APIKey         string               `yaml:"api_key"`
	BaseURL        string               `yaml:"base_url,omitempty"`
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	RespTimeout    time.Duration        `yaml:"resp_timeout"`
	Pool           PoolConfig           `yaml:"pool"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

// CircuitBreakerConfig holds circuit breaker settings for the backend.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// RateLimitConfig is a token bucket. Zero RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// SpeechConfig selects and configures text-to-speech.
type SpeechConfig struct {
	Provider string `yaml:"provider"` // "gemini", "polly" or "none"
	Model    string `yaml:"model"`
	Voice    string `yaml:"voice"`
	// Polly only.
	Region string `yaml:"region,omitempty"`
	Engine string `yaml:"engine,omitempty"`
}

// AudioConfig selects the playback device.
type AudioConfig struct {
	Output string `yaml:"output"` // "oto" or "none"
}

// AgentsConfig controls which variants run and how they are prompted.
type AgentsConfig struct {
	Enabled     []string          `yaml:"enabled,omitempty"` // empty = all
	Templates   map[string]string `yaml:"templates,omitempty"`
	Temperature float32           `yaml:"temperature"`
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Addr         string          `yaml:"addr"`
	Auth         AuthConfig      `yaml:"auth"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	RunRetention RetentionConfig `yaml:"run_retention"`
}

// RetentionConfig bounds the finished runs kept for run.get and
// solve.enrich. Zero disables a bound.
type RetentionConfig struct {
	MaxRuns int           `yaml:"max_runs"`
	TTL     time.Duration `yaml:"ttl"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Backend:     "rest",
			Model:       "gemini-2.5-flash",
			ConnTimeout: 30 * time.Second,
			RespTimeout: 120 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Speech: SpeechConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash-preview-tts",
			Voice:    "Kore",
			Engine:   "neural",
		},
		Audio: AudioConfig{Output: "oto"},
		Agents: AgentsConfig{
			Temperature: 0.1,
		},
		Gateway: GatewayConfig{
			Addr: "127.0.0.1:8787",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 5,
				Burst:             10,
			},
			RunRetention: RetentionConfig{
				MaxRuns: 200,
				TTL:     30 * time.Minute,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "stdout",
		},
	}
}

// Load reads a YAML config file over the defaults, applies env var
// overrides, decrypts secrets and validates the result. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("TUTORAI_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps TUTORAI_* env vars to config fields. The API key
// also falls back to GEMINI_API_KEY and then GOOGLE_API_KEY.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TUTORAI_LLM_BACKEND"); v != "" {
		cfg.LLM.Backend = v
	}
	if v := os.Getenv("TUTORAI_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("TUTORAI_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if cfg.LLM.APIKey == "" {
		for _, name := range []string{"TUTORAI_LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
			if v := os.Getenv(name); v != "" {
				cfg.LLM.APIKey = v
				break
			}
		}
	}
	if v := os.Getenv("TUTORAI_LLM_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.RateLimit.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("TUTORAI_LLM_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.LLM.CircuitBreaker.Enabled = v == "true"
	}
	if v := os.Getenv("TUTORAI_SPEECH_PROVIDER"); v != "" {
		cfg.Speech.Provider = v
	}
	if v := os.Getenv("TUTORAI_SPEECH_VOICE"); v != "" {
		cfg.Speech.Voice = v
	}
	if v := os.Getenv("TUTORAI_SPEECH_REGION"); v != "" {
		cfg.Speech.Region = v
	}
	if v := os.Getenv("TUTORAI_AUDIO_OUTPUT"); v != "" {
		cfg.Audio.Output = v
	}
	if v := os.Getenv("TUTORAI_AGENTS_ENABLED"); v != "" {
		cfg.Agents.Enabled = splitAndTrim(v, ",")
	}
	if v := os.Getenv("TUTORAI_AGENTS_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.Agents.Temperature = float32(f)
		}
	}
	if v := os.Getenv("TUTORAI_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("TUTORAI_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Type = "static"
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{Token: v, Name: "env"})
	}
	if v := os.Getenv("TUTORAI_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("TUTORAI_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("TUTORAI_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("TUTORAI_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// splitAndTrim splits s by sep, trims each element and drops empty ones.
func splitAndTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
