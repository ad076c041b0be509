package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"tutor-ai/internal/adapter/audio"
	"tutor-ai/internal/adapter/llm"
	"tutor-ai/internal/infra/config"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/"

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor(args []string) error {
	cfgPath := configPath(args)

	// Some checks still run when the config does not load.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "API key", Fn: checkAPIKey},
		{Name: "Generation backend", Fn: checkBackend},
		{Name: "Backend connectivity", Fn: checkConnectivity(http.DefaultClient)},
		{Name: "Speech", Fn: checkSpeech},
		{Name: "Audio output", Fn: checkAudio},
		{Name: "Gateway", Fn: checkGateway},
	}
	return report(os.Stdout, checks, cfg)
}

// report runs checks and prints one line per result. It fails when any
// check failed.
func report(w io.Writer, checks []Check, cfg *config.Config) error {
	fmt.Fprintln(w, "tutor doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Fprintln(w, "\nFix the FAIL issues above before running tutor.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Fprintln(w, "\ntutor should work, but consider addressing the warnings.")
	} else {
		fmt.Fprintln(w, "\nAll checks passed! tutor is ready to run.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

func notLoaded() CheckResult {
	return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
}

// checkConfigFile returns a check on the config load result. A missing file
// is only a warning since every setting has a default.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Fix " + cfgPath + " or the TUTORAI_* variables it reports",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkAPIKey verifies the backend has a key. A custom base URL may point
// at a proxy that needs none.
func checkAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if cfg.LLM.APIKey != "" {
		return CheckResult{Status: StatusPass, Message: "API key configured"}
	}
	if cfg.LLM.BaseURL != "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no API key; requests go to %s unauthenticated", cfg.LLM.BaseURL),
		}
	}
	return CheckResult{
		Status:  StatusFail,
		Message: "no API key found",
		Fix:     "Set GEMINI_API_KEY or llm.api_key",
	}
}

// checkBackend verifies the configured backend name is known.
func checkBackend(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	names := llm.NewRegistry().List()
	if !slices.Contains(names, cfg.LLM.Backend) {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("unknown backend %q", cfg.LLM.Backend),
			Fix:     "Set llm.backend to one of: " + strings.Join(names, ", "),
		}
	}
	msg := fmt.Sprintf("%s backend, model %s", cfg.LLM.Backend, cfg.LLM.Model)
	if cfg.LLM.CircuitBreaker.Enabled {
		msg += ", circuit breaker on"
	}
	return CheckResult{Status: StatusPass, Message: msg}
}

// checkConnectivity returns a check that the backend endpoint answers HTTP.
// Any response counts; only transport failures fail.
func checkConnectivity(client *http.Client) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		if cfg == nil {
			return notLoaded()
		}
		endpoint := defaultGeminiEndpoint
		if cfg.LLM.BaseURL != "" {
			endpoint = strings.TrimRight(cfg.LLM.BaseURL, "/") + "/"
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("bad endpoint %q: %v", endpoint, err),
				Fix:     "Check llm.base_url",
			}
		}
		start := time.Now()
		resp, err := client.Do(req)
		latency := time.Since(start)
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
				Fix:     "Check your internet connection and firewall settings",
			}
		}
		resp.Body.Close()

		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s reachable (latency: %dms)", endpoint, latency.Milliseconds()),
		}
	}
}

// checkSpeech reports the speech provider and what it needs.
func checkSpeech(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	switch cfg.Speech.Provider {
	case "none":
		return CheckResult{Status: StatusWarn, Message: "speech disabled, summaries will not be spoken"}
	case "polly":
		if _, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); !ok {
			if _, ok := os.LookupEnv("AWS_PROFILE"); !ok {
				return CheckResult{
					Status:  StatusWarn,
					Message: "polly selected but no AWS_ACCESS_KEY_ID or AWS_PROFILE in the environment",
					Fix:     "Configure AWS credentials or set speech.provider to gemini",
				}
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("polly (%s engine)", cfg.Speech.Engine)}
	default:
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("gemini voice %s", cfg.Speech.Voice)}
	}
}

// checkAudio opens the system audio device when playback is enabled.
func checkAudio(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if cfg.Audio.Output == "none" {
		return CheckResult{Status: StatusWarn, Message: "audio output disabled"}
	}
	out, err := audio.NewOtoOutput(slog.New(slog.DiscardHandler))
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no audio device: %v", err),
			Fix:     "Answers still print; set audio.output to none to silence this",
		}
	}
	_ = out.Close()
	return CheckResult{Status: StatusPass, Message: "system audio device available"}
}

// checkGateway reports the listen address and auth mode, and whether the
// address is free.
func checkGateway(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	auth := "open (loopback only)"
	if cfg.Gateway.Auth.Type == "static" {
		auth = fmt.Sprintf("%d token(s)", len(cfg.Gateway.Auth.Tokens))
	}

	ln, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is not free: %v", cfg.Gateway.Addr, err),
			Fix:     "Stop the other process or pass serve --addr",
		}
	}
	ln.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s free, auth %s", cfg.Gateway.Addr, auth),
	}
}
