package domain

// RunStartedPayload is the payload for EventRunStarted events.
type RunStartedPayload struct {
	Subject  Subject     `json:"subject"`
	Agents   []AgentKind `json:"agents"`
	HasImage bool        `json:"has_image"`
}

// AgentFragmentPayload is the payload for EventAgentFragment events.
// Text is the cumulative text so far, not the increment. Seq increases by
// one per fragment of the same agent.
type AgentFragmentPayload struct {
	Agent AgentKind `json:"agent"`
	Text  string    `json:"text"`
	Seq   int       `json:"seq"`
}

// AgentCompletedPayload is the payload for EventAgentCompleted events.
type AgentCompletedPayload struct {
	Agent AgentKind `json:"agent"`
	Text  string    `json:"text"`
}

// AgentFailedPayload is the payload for EventAgentFailed events.
type AgentFailedPayload struct {
	Agent AgentKind `json:"agent"`
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// RunCompletedPayload is the payload for EventRunCompleted events.
type RunCompletedPayload struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// SpeedParsedPayload is published each time a new structured result is
// accepted for a run.
type SpeedParsedPayload struct {
	Result SpeedResult `json:"result"`
}

// RunEnrichedPayload is the payload for EventRunEnriched events.
type RunEnrichedPayload struct {
	Summary      string `json:"summary"`
	AudioSamples int    `json:"audio_samples"`
	SampleRate   int    `json:"sample_rate"`
}
