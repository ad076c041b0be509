package domain

// SpeedResult is the structured answer produced by the Speed agent.
type SpeedResult struct {
	FinalAnswer string `json:"finalAnswer"`
	CasioSteps  string `json:"casioSteps,omitempty"`
}

// Outcome is the settled result of one agent within a run.
type Outcome struct {
	Agent AgentKind
	Text  string
	Err   error
}

// OK reports whether the agent completed without error.
func (o Outcome) OK() bool { return o.Err == nil }

// Quiz is a practice question generated from a finished solution.
type Quiz struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Correct  string   `json:"correct"`
}
