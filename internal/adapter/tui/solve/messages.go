// Package solve implements the interactive Bubble Tea view of one run: a
// pane per agent, filled as the answers stream in.
package solve

import "tutor-ai/internal/domain"

// FragmentMsg carries the cumulative text of one agent.
type FragmentMsg struct {
	Agent domain.AgentKind
	Text  string
}

// SpeedMsg carries a newly accepted structured answer.
type SpeedMsg struct {
	Result domain.SpeedResult
}

// RunDoneMsg signals that every agent has settled.
type RunDoneMsg struct {
	Outcomes []domain.Outcome
}

// EnrichedMsg carries the spoken summary once enrichment finishes. Summary
// is empty when enrichment produced nothing.
type EnrichedMsg struct {
	Summary  string
	HasAudio bool
}

// SpeakDoneMsg signals that a replay request finished.
type SpeakDoneMsg struct {
	Err error
}
