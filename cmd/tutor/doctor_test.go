package main

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tutor-ai/internal/infra/config"
)

func TestCheckConfigFile_Missing(t *testing.T) {
	result := checkConfigFile("/nonexistent/path/config.yaml", nil)(nil)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing config, got %s", result.Status)
	}
}

func TestCheckConfigFile_LoadError(t *testing.T) {
	fn := checkConfigFile("config.yaml", &config.ValidationError{Errors: []string{"llm.backend is invalid"}})
	result := fn(nil)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for load error, got %s", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion")
	}
}

func TestCheckConfigFile_Valid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("llm:\n  model: gemini-2.5-flash\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	result := checkConfigFile(cfgPath, nil)(nil)
	if result.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckAPIKey(t *testing.T) {
	if r := checkAPIKey(nil); r.Status != StatusFail {
		t.Errorf("nil config: expected FAIL, got %s", r.Status)
	}

	cfg := config.Defaults()
	if r := checkAPIKey(cfg); r.Status != StatusFail || !strings.Contains(r.Fix, "GEMINI_API_KEY") {
		t.Errorf("no key: got %s (%s)", r.Status, r.Fix)
	}

	cfg.LLM.BaseURL = "http://localhost:8080"
	if r := checkAPIKey(cfg); r.Status != StatusWarn {
		t.Errorf("proxy without key: expected WARN, got %s", r.Status)
	}

	cfg.LLM.APIKey = "k"
	if r := checkAPIKey(cfg); r.Status != StatusPass {
		t.Errorf("with key: expected PASS, got %s", r.Status)
	}
}

func TestCheckBackend(t *testing.T) {
	cfg := config.Defaults()
	if r := checkBackend(cfg); r.Status != StatusPass {
		t.Errorf("default backend: expected PASS, got %s: %s", r.Status, r.Message)
	}
	cfg.LLM.Backend = "openai"
	r := checkBackend(cfg)
	if r.Status != StatusFail {
		t.Errorf("unknown backend: expected FAIL, got %s", r.Status)
	}
	if !strings.Contains(r.Fix, "rest") || !strings.Contains(r.Fix, "sdk") {
		t.Errorf("fix should list backends: %s", r.Fix)
	}
}

func TestCheckConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.LLM.BaseURL = srv.URL
	if r := checkConnectivity(srv.Client())(cfg); r.Status != StatusPass {
		t.Errorf("expected PASS for any HTTP answer, got %s: %s", r.Status, r.Message)
	}

	srv.Close()
	if r := checkConnectivity(srv.Client())(cfg); r.Status != StatusFail {
		t.Errorf("expected FAIL for closed server, got %s", r.Status)
	}
}

func TestCheckSpeech(t *testing.T) {
	cfg := config.Defaults()
	if r := checkSpeech(cfg); r.Status != StatusPass {
		t.Errorf("gemini: expected PASS, got %s", r.Status)
	}

	cfg.Speech.Provider = "none"
	if r := checkSpeech(cfg); r.Status != StatusWarn {
		t.Errorf("none: expected WARN, got %s", r.Status)
	}

	cfg.Speech.Provider = "polly"
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	if r := checkSpeech(cfg); r.Status != StatusPass {
		t.Errorf("polly with credentials: expected PASS, got %s", r.Status)
	}
}

func TestCheckAudio_Disabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Audio.Output = "none"
	if r := checkAudio(cfg); r.Status != StatusWarn {
		t.Errorf("expected WARN, got %s", r.Status)
	}
}

func TestCheckGateway(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Addr = "127.0.0.1:0"
	r := checkGateway(cfg)
	if r.Status != StatusPass || !strings.Contains(r.Message, "loopback") {
		t.Errorf("free addr: got %s: %s", r.Status, r.Message)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	cfg.Gateway.Addr = ln.Addr().String()
	cfg.Gateway.Auth = config.AuthConfig{Type: "static", Tokens: []config.TokenConfig{{Token: "t", Name: "n"}}}
	if r := checkGateway(cfg); r.Status != StatusWarn {
		t.Errorf("busy addr: expected WARN, got %s", r.Status)
	}
}

func TestReport(t *testing.T) {
	pass := Check{Name: "ok", Fn: func(*config.Config) CheckResult { return CheckResult{Status: StatusPass, Message: "fine"} }}
	warn := Check{Name: "meh", Fn: func(*config.Config) CheckResult {
		return CheckResult{Status: StatusWarn, Message: "hmm", Fix: "do a thing"}
	}}
	fail := Check{Name: "bad", Fn: func(*config.Config) CheckResult { return CheckResult{Status: StatusFail, Message: "broken"} }}

	var buf bytes.Buffer
	if err := report(&buf, []Check{pass, warn}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"[PASS] ok: fine", "[WARN] meh: hmm", "Fix: do a thing", "1 passed, 1 warnings, 0 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	err := report(&buf, []Check{pass, fail}, nil)
	if err == nil || !strings.Contains(err.Error(), "1 check(s) failed") {
		t.Errorf("expected failure error, got %v", err)
	}
	if errors.Unwrap(err) != nil {
		t.Errorf("report error should be a plain message")
	}
}

func TestStatusIcon(t *testing.T) {
	tests := map[CheckStatus]string{
		StatusPass:  "[PASS]",
		StatusWarn:  "[WARN]",
		StatusFail:  "[FAIL]",
		"something": "[????]",
	}
	for status, want := range tests {
		if got := statusIcon(status); got != want {
			t.Errorf("statusIcon(%s) = %s, want %s", status, got, want)
		}
	}
}
