package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-ai/internal/domain"
)

func TestTryParseSpeed(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *domain.SpeedResult
	}{
		{"plain", `{"finalAnswer":"x=2","casioSteps":"SHIFT SOLVE"}`, &domain.SpeedResult{FinalAnswer: "x=2", CasioSteps: "SHIFT SOLVE"}},
		{"fenced", "```json\n{\"finalAnswer\":\"42\"}\n```", &domain.SpeedResult{FinalAnswer: "42"}},
		{"bare fence", "```\n{\"finalAnswer\":\"1\"}\n```", &domain.SpeedResult{FinalAnswer: "1"}},
		{"incomplete", `{"finalAnswer":"x=`, nil},
		{"open fence mid-stream", "```json\n{\"finalAnswer\":\"x", nil},
		{"empty", "", nil},
		{"missing answer", `{"casioSteps":"AC"}`, nil},
		{"wrong type", `{"finalAnswer":5}`, nil},
		{"not an object", `["x"]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TryParseSpeed(domain.AgentSpeed, tt.text)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTryParseSpeed_NonPrimaryAgent(t *testing.T) {
	assert.Nil(t, TryParseSpeed(domain.AgentSocratic, `{"finalAnswer":"x"}`))
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```JSON\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`  {"a":1}  `))
}

func TestRunObserveSpeed_NonRegression(t *testing.T) {
	run := newRun(domain.SubjectMath, "q", false)

	// Simulated stream of the primary agent: partial, complete, then a
	// garbled continuation that no longer parses.
	texts := []string{
		`{"finalAnswer":"x`,
		`{"finalAnswer":"x=2"}`,
		`{"finalAnswer":"x=2"} trailing`,
	}

	assert.False(t, run.ObserveSpeed(TryParseSpeed(domain.AgentSpeed, texts[0])))
	assert.Nil(t, run.Speed())

	assert.True(t, run.ObserveSpeed(TryParseSpeed(domain.AgentSpeed, texts[1])))
	require.NotNil(t, run.Speed())

	assert.False(t, run.ObserveSpeed(TryParseSpeed(domain.AgentSpeed, texts[2])))
	assert.Equal(t, "x=2", run.Speed().FinalAnswer)
}

func TestRunObserveSpeed_LaterValidReplaces(t *testing.T) {
	run := newRun(domain.SubjectMath, "q", false)
	run.ObserveSpeed(&domain.SpeedResult{FinalAnswer: "a"})
	assert.True(t, run.ObserveSpeed(&domain.SpeedResult{FinalAnswer: "b"}))
	assert.Equal(t, "b", run.Speed().FinalAnswer)

	// Same value again is not a change.
	assert.False(t, run.ObserveSpeed(&domain.SpeedResult{FinalAnswer: "b"}))
}
