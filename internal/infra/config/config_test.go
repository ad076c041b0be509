package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tutor-ai/internal/domain"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.LLM.Backend != "rest" {
		t.Errorf("Backend = %q, want %q", cfg.LLM.Backend, "rest")
	}
	if cfg.Agents.Temperature != 0.1 {
		t.Errorf("Temperature = %v, want 0.1", cfg.Agents.Temperature)
	}
	if cfg.Speech.Voice != "Kore" {
		t.Errorf("Speech.Voice = %q, want %q", cfg.Speech.Voice, "Kore")
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != Defaults().LLM.Model {
		t.Errorf("expected default model, got %q", cfg.LLM.Model)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  backend: sdk
  model: gemini-2.5-pro
  api_key: test-key
  rate_limit:
    requests_per_second: 2
    burst: 4
speech:
  provider: polly
  voice: Joanna
  region: us-east-1
agents:
  enabled: [speed, socratic]
  temperature: 0.3
  templates:
    SOCRATIC: "Giải thích từng bước."
gateway:
  run_retention:
    max_runs: 50
logger:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Backend != "sdk" || cfg.LLM.Model != "gemini-2.5-pro" || cfg.LLM.APIKey != "test-key" {
		t.Errorf("LLM mismatch: %+v", cfg.LLM)
	}
	if cfg.LLM.RateLimit.RequestsPerSecond != 2 || cfg.LLM.RateLimit.Burst != 4 {
		t.Errorf("RateLimit mismatch: %+v", cfg.LLM.RateLimit)
	}
	if cfg.Speech.Provider != "polly" || cfg.Speech.Region != "us-east-1" {
		t.Errorf("Speech mismatch: %+v", cfg.Speech)
	}
	if len(cfg.Agents.Enabled) != 2 || cfg.Agents.Templates["SOCRATIC"] == "" {
		t.Errorf("Agents mismatch: %+v", cfg.Agents)
	}
	// Unset keys keep their defaults.
	if cfg.LLM.RespTimeout != 120*time.Second {
		t.Errorf("RespTimeout = %v, want default", cfg.LLM.RespTimeout)
	}
	if cfg.Logger.Format != "text" {
		t.Errorf("Logger.Format = %q, want default", cfg.Logger.Format)
	}
	if cfg.Gateway.RunRetention.MaxRuns != 50 || cfg.Gateway.RunRetention.TTL != 30*time.Minute {
		t.Errorf("RunRetention = %+v, want max_runs 50 with default ttl", cfg.Gateway.RunRetention)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  backend: carrier-pigeon\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, domain.ErrConfigLoad) {
		t.Fatalf("err = %v, want ErrConfigLoad", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || len(ve.Errors) != 1 {
		t.Errorf("expected one validation error, got %v", err)
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insecure.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for insecure permissions")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TUTORAI_LLM_BACKEND", "sdk")
	t.Setenv("TUTORAI_LOGGER_LEVEL", "debug")
	t.Setenv("TUTORAI_AGENTS_ENABLED", "speed, notebook ,")
	t.Setenv("TUTORAI_AGENTS_TEMPERATURE", "0.5")
	t.Setenv("TUTORAI_LLM_RATE_LIMIT_RPS", "1.5")
	t.Setenv("TUTORAI_TRACER_ENABLED", "true")
	t.Setenv("TUTORAI_SPEECH_PROVIDER", "none")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.LLM.Backend != "sdk" {
		t.Errorf("Backend = %q, want sdk", cfg.LLM.Backend)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", cfg.Logger.Level)
	}
	if len(cfg.Agents.Enabled) != 2 || cfg.Agents.Enabled[1] != "notebook" {
		t.Errorf("Agents.Enabled = %v", cfg.Agents.Enabled)
	}
	if cfg.Agents.Temperature != 0.5 {
		t.Errorf("Temperature = %v, want 0.5", cfg.Agents.Temperature)
	}
	if cfg.LLM.RateLimit.RequestsPerSecond != 1.5 {
		t.Errorf("RPS = %v, want 1.5", cfg.LLM.RateLimit.RequestsPerSecond)
	}
	if !cfg.Tracer.Enabled {
		t.Error("Tracer.Enabled should be true")
	}
	if cfg.Speech.Provider != "none" {
		t.Errorf("Speech.Provider = %q, want none", cfg.Speech.Provider)
	}
}

func TestEnvAPIKeyFallbackOrder(t *testing.T) {
	t.Setenv("TUTORAI_LLM_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.LLM.APIKey != "google-key" {
		t.Errorf("APIKey = %q, want google-key", cfg.LLM.APIKey)
	}

	t.Setenv("GEMINI_API_KEY", "gemini-key")
	cfg = Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.LLM.APIKey != "gemini-key" {
		t.Errorf("APIKey = %q, want gemini-key", cfg.LLM.APIKey)
	}

	// A key from the file wins.
	cfg = Defaults()
	cfg.LLM.APIKey = "file-key"
	ApplyEnvOverrides(cfg)
	if cfg.LLM.APIKey != "file-key" {
		t.Errorf("APIKey = %q, want file-key", cfg.LLM.APIKey)
	}
}

func TestEnvGatewayToken(t *testing.T) {
	t.Setenv("TUTORAI_GATEWAY_TOKEN", "s3cret")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Gateway.Auth.Type != "static" || len(cfg.Gateway.Auth.Tokens) != 1 {
		t.Fatalf("Auth = %+v", cfg.Gateway.Auth)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadWithConfigKey(t *testing.T) {
	passphrase := "test-load-key"
	plainKey := "AIza-loadtest"

	encrypted, err := EncryptValue(plainKey, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "llm:\n  api_key: \"enc:" + encrypted + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TUTORAI_CONFIG_KEY", passphrase)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != plainKey {
		t.Errorf("APIKey = %q, want %q", cfg.LLM.APIKey, plainKey)
	}
}

func TestLoadDecryptSecretsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  api_key: \"enc:zz\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TUTORAI_CONFIG_KEY", "pass")
	if _, err := Load(path); err == nil {
		t.Error("expected decrypt error")
	}
}

func TestValidatePermissions(t *testing.T) {
	tests := []struct {
		mode    os.FileMode
		wantErr bool
	}{
		{0600, false},
		{0644, false},
		{0666, true},
		{0646, true},
	}
	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "c.yaml")
		if err := os.WriteFile(path, nil, 0600); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(path, tt.mode); err != nil {
			t.Fatal(err)
		}
		err := validatePermissions(path)
		if (err != nil) != tt.wantErr {
			t.Errorf("mode %o: err = %v, wantErr %v", tt.mode, err, tt.wantErr)
		}
	}
}
