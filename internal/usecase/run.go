package usecase

import (
	"crypto/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"tutor-ai/internal/domain"
)

// Run is the state of one multi-agent request: per-agent outcomes, the
// latest structured answer, and the enrichment results.
type Run struct {
	ID        string
	Subject   domain.Subject
	Input     string
	HasImage  bool
	StartedAt time.Time

	mu       sync.RWMutex
	outcomes []domain.Outcome
	speed    *domain.SpeedResult
	summary  string
	audio    *domain.AudioClip
	quiz     *domain.Quiz
	done     bool

	enriched atomic.Bool
}

func newRun(subject domain.Subject, input string, hasImage bool) *Run {
	now := time.Now()
	return &Run{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Subject:   subject,
		Input:     input,
		HasImage:  hasImage,
		StartedAt: now,
	}
}

// ObserveSpeed offers a parse attempt to the run. A nil result never
// replaces an earlier valid one. It reports whether the stored value changed.
func (r *Run) ObserveSpeed(res *domain.SpeedResult) bool {
	if res == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.speed != nil && *r.speed == *res {
		return false
	}
	cp := *res
	r.speed = &cp
	return true
}

// Speed returns the last valid structured answer, or nil.
func (r *Run) Speed() *domain.SpeedResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.speed == nil {
		return nil
	}
	cp := *r.speed
	return &cp
}

func (r *Run) setOutcomes(out []domain.Outcome) {
	r.mu.Lock()
	r.outcomes = out
	r.done = true
	r.mu.Unlock()
}

// Outcomes returns the settled outcomes in agent order. It is empty until
// every agent has settled.
func (r *Run) Outcomes() []domain.Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Outcome returns the outcome for one agent.
func (r *Run) Outcome(agent domain.AgentKind) (domain.Outcome, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.outcomes {
		if o.Agent == agent {
			return o, true
		}
	}
	return domain.Outcome{}, false
}

// Done reports whether all agents have settled.
func (r *Run) Done() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.done
}

// TryMarkEnriched claims the one enrichment slot of this run. Only the
// first caller gets true.
func (r *Run) TryMarkEnriched() bool {
	return r.enriched.CompareAndSwap(false, true)
}

// Enriched reports whether enrichment has been triggered.
func (r *Run) Enriched() bool { return r.enriched.Load() }

func (r *Run) attachSummary(s string) {
	r.mu.Lock()
	r.summary = s
	r.mu.Unlock()
}

func (r *Run) attachAudio(clip *domain.AudioClip) {
	r.mu.Lock()
	r.audio = clip
	r.mu.Unlock()
}

// Summary returns the spoken summary, if enrichment produced one.
func (r *Run) Summary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summary
}

// Audio returns the attached speech clip, or nil.
func (r *Run) Audio() *domain.AudioClip {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audio
}

func (r *Run) attachQuiz(q *domain.Quiz) {
	r.mu.Lock()
	r.quiz = q
	r.mu.Unlock()
}

// Quiz returns the generated practice question, or nil.
func (r *Run) Quiz() *domain.Quiz {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.quiz
}

// PrimaryText returns the primary agent's final text if it succeeded.
func (r *Run) PrimaryText() (string, bool) {
	for _, a := range domain.AllAgents() {
		if !a.Primary() {
			continue
		}
		o, ok := r.Outcome(a)
		if !ok || !o.OK() || o.Text == "" {
			return "", false
		}
		return o.Text, true
	}
	return "", false
}
