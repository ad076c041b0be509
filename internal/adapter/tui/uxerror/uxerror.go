// Package uxerror translates raw errors into user-friendly messages with
// recovery hints for the terminal.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"tutor-ai/internal/adapter/tui/theme"
	"tutor-ai/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string   // short heading, e.g. "Connection Failed"
	Message string   // one-liner explanation
	Hints   []string // actionable recovery suggestions
	Raw     string   // original error text (for debug)
}

// Render formats the FriendlyError for display.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	// Domain sentinel errors (checked first so errors.Is works through wrapping).
	{
		// The overload message is shown to users verbatim.
		match: isErr(domain.ErrOverloaded),
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Overloaded",
				Message: domain.ErrOverloaded.Error(),
				Raw:     err.Error(),
			}
		},
	},
	{
		match:   isErr(domain.ErrCircuitOpen),
		produce: constantError("Backend Paused", "Too many recent failures; calls are paused for a short while.", []string{"Wait a few seconds and try again"}),
	},
	{
		match:   isErr(domain.ErrAuthInvalid),
		produce: constantError("Authentication Failed", "The API key or credentials were rejected.", []string{"Set GEMINI_API_KEY or llm.api_key", "Verify the key hasn't expired"}),
	},
	{
		match:   isErr(domain.ErrUnknownSubject),
		produce: constantError("Unknown Subject", "That subject is not supported.", []string{"Use one of: math, physics, chemistry, diary"}),
	},
	{
		match:   isErr(domain.ErrUnknownAgent),
		produce: constantError("Unknown Agent", "That agent does not exist.", []string{"Use one of: speed, socratic, notebook, perplexity"}),
	},
	{
		match:   isErr(domain.ErrContextOverflow),
		produce: constantError("Problem Too Large", "The problem or image is too large for the model.", []string{"Crop the image to the question", "Shorten the text"}),
	},
	{
		match:   isErr(domain.ErrAudioDevice),
		produce: constantError("No Audio Output", "The audio device could not be opened.", []string{"Set audio.output to none to disable playback", "Check your sound settings"}),
	},
	{
		match:   isErr(domain.ErrConfigLoad),
		produce: constantError("Invalid Configuration", "The configuration could not be loaded.", []string{"Check the file passed to --config", "Run 'tutor help' for the supported keys"}),
	},
	{
		match:   isErr(domain.ErrInvalidInput),
		produce: constantError("Invalid Input", "The problem could not be read.", []string{"Pass the problem as text or with --image", "Images must be files or base64 data URLs"}),
	},
	{
		match:   isErr(domain.ErrEmptyResponse),
		produce: constantError("Empty Answer", "The model returned no content.", []string{"Try again", "Rephrase the problem"}),
	},

	// Network / connectivity patterns (string matching for external errors).
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the remote service.", []string{"Check your internet connection", "Verify llm.base_url in config", "Check if a firewall is blocking the connection"}),
	},
	{
		match:   containsAny("deadline exceeded", "timeout", "context deadline"),
		produce: constantError("Request Timed Out", "The request took too long to complete.", []string{"Check your network connection", "Increase llm.resp_timeout in config"}),
	},
	{
		match:   containsAny("429", "rate limit", "too many requests"),
		produce: constantError("Rate Limited", "Too many requests sent to the API provider.", []string{"Wait a moment before retrying", "Lower llm.rate_limit.requests_per_second"}),
	},
	{
		match:   containsAny("402", "quota", "billing", "insufficient"),
		produce: constantError("Quota Exceeded", "Your API quota or billing limit has been reached.", []string{"Check your API provider billing dashboard"}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}

	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}

	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with logger.level=debug for more details"},
		Raw:     err.Error(),
	}
}

func isErr(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

// constantError returns a produce func that always returns the same FriendlyError.
func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
