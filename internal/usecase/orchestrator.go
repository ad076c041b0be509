package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/tracer"
)

// AgentDispatcher runs a single agent request.
type AgentDispatcher interface {
	Dispatch(ctx context.Context, req domain.AgentRequest, onFragment func(string)) (string, error)
}

// UpdateFunc receives the cumulative text of one agent.
type UpdateFunc func(agent domain.AgentKind, text string)

// OrchestratorDeps holds the dependencies for an Orchestrator.
type OrchestratorDeps struct {
	Dispatcher AgentDispatcher
	Bus        domain.EventBus // optional
	Logger     *slog.Logger
	// Agents overrides the variant list. Empty means domain.AllAgents().
	Agents []domain.AgentKind
	// Retention bounds the finished runs kept for lookup.
	Retention RunRetention
}

// RunRetention bounds tracked runs. Finished runs older than TTL are
// released, and beyond MaxRuns the oldest finished runs go first. Runs still
// in progress are never released. Zero disables a bound.
type RunRetention struct {
	MaxRuns int
	TTL     time.Duration
}

// Orchestrator fans one problem out to every agent variant and waits for
// all of them to settle.
type Orchestrator struct {
	deps   OrchestratorDeps
	agents []domain.AgentKind

	now func() time.Time

	runsMu sync.Mutex
	runs   map[string]*trackedRun
	order  []string // run IDs, oldest first
}

type trackedRun struct {
	run        *Run
	finishedAt time.Time // zero while in progress
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	agents := deps.Agents
	if len(agents) == 0 {
		agents = domain.AllAgents()
	}
	return &Orchestrator{
		deps:   deps,
		agents: agents,
		now:    time.Now,
		runs:   make(map[string]*trackedRun),
	}
}

// RunAll dispatches every agent concurrently and returns once all have
// settled. A failing agent never affects the others, and RunAll itself
// never fails: per-agent errors are reported in the run's outcomes.
//
// onUpdate calls are serialized. For a given agent they arrive in stream
// order; across agents they interleave arbitrarily. For the primary agent
// every update is also offered to the speculative parser.
func (o *Orchestrator) RunAll(ctx context.Context, subject domain.Subject, input string, image *domain.Image, onUpdate UpdateFunc) *Run {
	hasImage := image != nil && len(image.Data) > 0
	run := newRun(subject, input, hasImage)
	o.track(run)

	ctx, span := tracer.StartSpan(ctx, "orchestrator.run",
		trace.WithAttributes(
			tracer.StringAttr("run.id", run.ID),
			tracer.StringAttr("subject", string(subject)),
			tracer.IntAttr("agents", len(o.agents)),
		),
	)
	defer span.End()

	o.publish(ctx, domain.EventRunStarted, run.ID, domain.RunStartedPayload{
		Subject:  subject,
		Agents:   o.agents,
		HasImage: hasImage,
	})

	var updateMu sync.Mutex
	outcomes := make([]domain.Outcome, len(o.agents))

	var wg sync.WaitGroup
	for i, agent := range o.agents {
		wg.Add(1)
		go func(idx int, agent domain.AgentKind) {
			defer wg.Done()
			outcomes[idx] = o.runAgent(ctx, run, agent, image, &updateMu, onUpdate)
		}(i, agent)
	}
	wg.Wait()

	run.setOutcomes(outcomes)
	o.finish(run.ID)

	var ok, failed int
	for _, oc := range outcomes {
		if oc.OK() {
			ok++
		} else {
			failed++
		}
	}
	span.SetAttributes(tracer.IntAttr("agents.failed", failed))
	if failed == len(outcomes) && failed > 0 {
		tracer.RecordError(span, outcomes[0].Err)
	} else {
		tracer.SetOK(span)
	}

	o.publish(ctx, domain.EventRunCompleted, run.ID, domain.RunCompletedPayload{Succeeded: ok, Failed: failed})
	o.deps.Logger.Info("run completed",
		"run_id", run.ID,
		"subject", subject,
		"succeeded", ok,
		"failed", failed,
	)
	return run
}

func (o *Orchestrator) runAgent(ctx context.Context, run *Run, agent domain.AgentKind, image *domain.Image, updateMu *sync.Mutex, onUpdate UpdateFunc) (out domain.Outcome) {
	out.Agent = agent
	defer func() {
		if r := recover(); r != nil {
			o.deps.Logger.Error("agent panicked", "run_id", run.ID, "agent", agent, "panic", r)
			out = domain.Outcome{Agent: agent, Err: domain.NewDomainError("Orchestrator.RunAll", domain.ErrProviderError, "agent panicked")}
			o.publish(ctx, domain.EventAgentFailed, run.ID, domain.AgentFailedPayload{
				Agent: agent,
				Error: out.Err.Error(),
				Code:  domain.ErrorCodeOf(out.Err),
			})
		}
	}()

	req := domain.AgentRequest{Subject: run.Subject, Agent: agent, Input: run.Input, Image: image}

	seq := 0
	text, err := o.deps.Dispatcher.Dispatch(ctx, req, func(full string) {
		seq++
		updateMu.Lock()
		if onUpdate != nil {
			onUpdate(agent, full)
		}
		updateMu.Unlock()

		o.publish(ctx, domain.EventAgentFragment, run.ID, domain.AgentFragmentPayload{Agent: agent, Text: full, Seq: seq})

		if agent.Primary() {
			if run.ObserveSpeed(TryParseSpeed(agent, full)) {
				o.publish(ctx, domain.EventSpeedParsed, run.ID, domain.SpeedParsedPayload{Result: *run.Speed()})
			}
		}
	})
	if err != nil {
		out.Err = err
		o.publish(ctx, domain.EventAgentFailed, run.ID, domain.AgentFailedPayload{
			Agent: agent,
			Error: err.Error(),
			Code:  domain.ErrorCodeOf(err),
		})
		return out
	}

	out.Text = text
	o.publish(ctx, domain.EventAgentCompleted, run.ID, domain.AgentCompletedPayload{Agent: agent, Text: text})
	return out
}

// Run returns a tracked run by ID. Released runs are not found.
func (o *Orchestrator) Run(id string) (*Run, error) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	o.pruneLocked()
	t, ok := o.runs[id]
	if !ok {
		return nil, domain.NewDomainError("Orchestrator.Run", domain.ErrRunNotFound, id)
	}
	return t.run, nil
}

// Tracked returns the number of runs held for lookup.
func (o *Orchestrator) Tracked() int {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	return len(o.runs)
}

func (o *Orchestrator) track(r *Run) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	o.runs[r.ID] = &trackedRun{run: r}
	o.order = append(o.order, r.ID)
	o.pruneLocked()
}

func (o *Orchestrator) finish(id string) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	if t, ok := o.runs[id]; ok {
		t.finishedAt = o.now()
	}
	o.pruneLocked()
}

// pruneLocked releases finished runs past the retention bounds.
func (o *Orchestrator) pruneLocked() {
	ret := o.deps.Retention
	now := o.now()
	excess := len(o.order) - ret.MaxRuns

	kept := make([]string, 0, len(o.order))
	for _, id := range o.order {
		t := o.runs[id]
		finished := !t.finishedAt.IsZero()
		expired := finished && ret.TTL > 0 && now.Sub(t.finishedAt) > ret.TTL
		overflow := finished && ret.MaxRuns > 0 && excess > 0
		if expired || overflow {
			delete(o.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	o.order = kept
}

func (o *Orchestrator) publish(ctx context.Context, t domain.EventType, runID string, payload any) {
	if o.deps.Bus == nil {
		return
	}
	o.deps.Bus.Publish(ctx, domain.NewEvent(t, runID, payload))
}
