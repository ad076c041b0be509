package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-ai/internal/domain"
)

func TestNewRun_UniqueSortableIDs(t *testing.T) {
	a := newRun(domain.SubjectMath, "q", false)
	b := newRun(domain.SubjectMath, "q", false)
	assert.Len(t, a.ID, 26)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Done())
	assert.Empty(t, a.Outcomes())
}

func TestRun_Outcome(t *testing.T) {
	run := settledRun("ans", nil)
	require.True(t, run.Done())

	o, ok := run.Outcome(domain.AgentSocratic)
	require.True(t, ok)
	assert.Equal(t, "detail", o.Text)

	_, ok = run.Outcome(domain.AgentPerplexity)
	assert.False(t, ok)

	text, ok := run.PrimaryText()
	assert.True(t, ok)
	assert.Equal(t, "ans", text)
}

func TestRun_OutcomesIsCopy(t *testing.T) {
	run := settledRun("ans", nil)
	out := run.Outcomes()
	out[0].Text = "mutated"
	o, _ := run.Outcome(domain.AgentSpeed)
	assert.Equal(t, "ans", o.Text)
}

func TestRun_SpeedIsCopy(t *testing.T) {
	run := newRun(domain.SubjectMath, "q", false)
	assert.Nil(t, run.Speed())
	run.ObserveSpeed(&domain.SpeedResult{FinalAnswer: "1"})
	s := run.Speed()
	s.FinalAnswer = "2"
	assert.Equal(t, "1", run.Speed().FinalAnswer)
}

func TestRun_TryMarkEnriched(t *testing.T) {
	run := newRun(domain.SubjectMath, "q", false)
	assert.False(t, run.Enriched())
	assert.True(t, run.TryMarkEnriched())
	assert.False(t, run.TryMarkEnriched())
	assert.True(t, run.Enriched())
}
