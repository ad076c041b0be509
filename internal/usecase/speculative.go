package usecase

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"tutor-ai/internal/domain"
)

// speedResultSchema describes the object the Speed agent is asked for.
const speedResultSchema = `{
	"type": "object",
	"properties": {
		"finalAnswer": {"type": "string"},
		"casioSteps": {"type": "string"}
	},
	"required": ["finalAnswer"]
}`

var compileSpeedSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile([]byte(speedResultSchema))
})

// fenceRe matches markdown fence markers anywhere in the text, so an
// opening fence on a still-streaming answer is removed too.
var fenceRe = regexp.MustCompile("(?i)```(?:json)?")

// stripCodeFences removes markdown code fences the model may wrap JSON in.
func stripCodeFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}

// TryParseSpeed attempts to read a SpeedResult from text that may still be
// streaming. It returns nil for non-primary agents and for any text that is
// not yet a complete, well-formed result.
func TryParseSpeed(agent domain.AgentKind, text string) *domain.SpeedResult {
	if !agent.Structured() {
		return nil
	}
	clean := stripCodeFences(text)
	if clean == "" {
		return nil
	}

	var raw any
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil
	}
	if schema, err := compileSpeedSchema(); err == nil {
		if !schema.Validate(raw).IsValid() {
			return nil
		}
	}

	var res domain.SpeedResult
	if err := json.Unmarshal([]byte(clean), &res); err != nil {
		return nil
	}
	return &res
}
