package domain

import (
	"fmt"
	"strings"
)

// AgentKind identifies one response-generation strategy. The set is closed.
type AgentKind string

const (
	// AgentSpeed is the primary agent. It answers with a JSON object that
	// the speculative parser reads while the stream is still open.
	AgentSpeed      AgentKind = "SPEED"
	AgentSocratic   AgentKind = "SOCRATIC"
	AgentNotebook   AgentKind = "NOTEBOOK"
	AgentPerplexity AgentKind = "PERPLEXITY"
)

var agentOrder = []AgentKind{AgentSpeed, AgentSocratic, AgentNotebook, AgentPerplexity}

var agentLabels = map[AgentKind]string{
	AgentSpeed:      "Speed",
	AgentSocratic:   "Socratic",
	AgentNotebook:   "Notebook",
	AgentPerplexity: "Perplexity",
}

// AllAgents returns the fixed variant order used by every run.
func AllAgents() []AgentKind {
	out := make([]AgentKind, len(agentOrder))
	copy(out, agentOrder)
	return out
}

// Valid reports whether a is one of the known agent kinds.
func (a AgentKind) Valid() bool {
	_, ok := agentLabels[a]
	return ok
}

// Structured reports whether the agent is asked for JSON output.
func (a AgentKind) Structured() bool { return a == AgentSpeed }

// Primary reports whether the agent's result drives enrichment.
func (a AgentKind) Primary() bool { return a == AgentSpeed }

// Label returns a short display name.
func (a AgentKind) Label() string {
	if l, ok := agentLabels[a]; ok {
		return l
	}
	return string(a)
}

// ParseAgentKind resolves a case-insensitive agent name.
func ParseAgentKind(s string) (AgentKind, error) {
	k := AgentKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAgent, s)
	}
	return k, nil
}

// Subject is the school subject a problem belongs to.
type Subject string

const (
	SubjectMath      Subject = "MATH"
	SubjectPhysics   Subject = "PHYSICS"
	SubjectChemistry Subject = "CHEMISTRY"
	SubjectDiary     Subject = "DIARY"
)

// Labels are the names the model sees in the prompt.
var subjectLabels = map[Subject]string{
	SubjectMath:      "Toán học",
	SubjectPhysics:   "Vật lí",
	SubjectChemistry: "Hóa học",
	SubjectDiary:     "Nhật ký",
}

// AllSubjects lists the supported subjects in display order.
func AllSubjects() []Subject {
	return []Subject{SubjectMath, SubjectPhysics, SubjectChemistry, SubjectDiary}
}

// Valid reports whether s is a known subject.
func (s Subject) Valid() bool {
	_, ok := subjectLabels[s]
	return ok
}

// Label returns the localized subject name.
func (s Subject) Label() string {
	if l, ok := subjectLabels[s]; ok {
		return l
	}
	return string(s)
}

// ParseSubject resolves a case-insensitive subject name.
func ParseSubject(s string) (Subject, error) {
	sub := Subject(strings.ToUpper(strings.TrimSpace(s)))
	if !sub.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSubject, s)
	}
	return sub, nil
}
