package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tutor-ai/internal/domain"
	"tutor-ai/internal/usecase"
	"tutor-ai/internal/usecase/resultcache"
)

// HandlerDeps holds dependencies needed by RPC handlers.
type HandlerDeps struct {
	Orchestrator *usecase.Orchestrator
	Enricher     *usecase.Enricher
	Quiz         *usecase.QuizGenerator // can be nil
	Cache        *resultcache.Cache     // can be nil
	Bus          domain.EventBus        // can be nil (no metrics)
	Logger       *slog.Logger
	Version      string
}

// RegisterRESTHandlers registers HTTP REST endpoints on the gateway server.
func RegisterRESTHandlers(s *Server, deps HandlerDeps) *Metrics {
	startTime := time.Now()
	metrics := &Metrics{}

	if deps.Bus != nil {
		deps.Bus.Subscribe(domain.EventRunStarted, func(context.Context, domain.Event) {
			metrics.RunsStarted.Add(1)
		})
		deps.Bus.Subscribe(domain.EventRunCompleted, func(context.Context, domain.Event) {
			metrics.RunsCompleted.Add(1)
		})
		deps.Bus.Subscribe(domain.EventRunEnriched, func(context.Context, domain.Event) {
			metrics.RunsEnriched.Add(1)
		})
		deps.Bus.Subscribe(domain.EventAgentFragment, func(context.Context, domain.Event) {
			metrics.Fragments.Add(1)
		})
		deps.Bus.Subscribe(domain.EventAgentCompleted, func(context.Context, domain.Event) {
			metrics.AgentsCompleted.Add(1)
		})
		deps.Bus.Subscribe(domain.EventAgentFailed, func(context.Context, domain.Event) {
			metrics.AgentsFailed.Add(1)
		})
	}

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.auth.Authenticate(requestToken(r)); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	s.RegisterHTTPRoute("/api/v1/status", authMiddleware(statusHandler(deps, s, startTime, metrics)))
	s.RegisterHTTPRoute("/metrics", authMiddleware(metricsHandler(deps, s, startTime, metrics)))
	s.RegisterHTTPRoute("/healthz", healthHandler)

	return metrics
}

// RegisterDefaultHandlers registers all built-in RPC handlers on the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	s.RegisterHandler("solve.run", solveRunHandler(deps))
	s.RegisterHandler("solve.enrich", solveEnrichHandler(deps))
	if deps.Quiz != nil {
		s.RegisterHandler("solve.quiz", solveQuizHandler(deps))
	}
	s.RegisterHandler("run.get", runGetHandler(deps))
	s.RegisterHandler("run.subscribe", runSubscribeHandler(s, deps))
	s.RegisterHandler("run.unsubscribe", runUnsubscribeHandler(s))
	s.RegisterHandler("meta.catalog", catalogHandler())
}

// --- views ---

type outcomeView struct {
	Agent domain.AgentKind `json:"agent"`
	Text  string           `json:"text,omitempty"`
	Error string           `json:"error,omitempty"`
	Code  domain.ErrorCode `json:"code,omitempty"`
}

type runView struct {
	RunID     string              `json:"run_id"`
	Subject   domain.Subject      `json:"subject"`
	HasImage  bool                `json:"has_image"`
	StartedAt time.Time           `json:"started_at"`
	Done      bool                `json:"done"`
	Outcomes  []outcomeView       `json:"outcomes"`
	Speed     *domain.SpeedResult `json:"speed,omitempty"`
	Enriched  bool                `json:"enriched"`
	Summary   string              `json:"summary,omitempty"`
	Audio     *domain.AudioClip   `json:"audio,omitempty"`
	Quiz      *domain.Quiz        `json:"quiz,omitempty"`
}

func viewRun(run *usecase.Run, withAudio bool) runView {
	v := runView{
		RunID:     run.ID,
		Subject:   run.Subject,
		HasImage:  run.HasImage,
		StartedAt: run.StartedAt,
		Done:      run.Done(),
		Outcomes:  []outcomeView{},
		Speed:     run.Speed(),
		Enriched:  run.Enriched(),
		Summary:   run.Summary(),
		Quiz:      run.Quiz(),
	}
	if withAudio {
		v.Audio = run.Audio()
	}
	for _, o := range run.Outcomes() {
		ov := outcomeView{Agent: o.Agent, Text: o.Text}
		if o.Err != nil {
			ov.Error = o.Err.Error()
			ov.Code = domain.ErrorCodeOf(o.Err)
		}
		v.Outcomes = append(v.Outcomes, ov)
	}
	return v
}

// --- solve.* ---

type solveRunRequest struct {
	Subject string `json:"subject"`
	Input   string `json:"input"`
	Image   string `json:"image,omitempty"` // data URL or bare base64
	// Enrich starts the summary and speech pipeline once the run settles.
	Enrich bool `json:"enrich,omitempty"`
}

// solveRunHandler runs every agent and returns the settled run. The calling
// connection receives the run's events while it streams; agent.fragment
// events follow the highest-seq-wins rule documented on Frame.
func solveRunHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req solveRunRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.NewDomainError("solve.run", domain.ErrRPCInvalidPayload, err.Error())
		}

		subject, err := domain.ParseSubject(req.Subject)
		if err != nil {
			return nil, domain.WrapOp("solve.run", err)
		}
		var image *domain.Image
		if req.Image != "" {
			image, err = domain.ParseDataURL(req.Image)
			if err != nil {
				return nil, domain.WrapOp("solve.run", err)
			}
		}
		if strings.TrimSpace(req.Input) == "" && image == nil {
			return nil, domain.NewDomainError("solve.run", domain.ErrInvalidInput, "input or image is required")
		}

		deps.Logger.Info("solve requested", "client", client.Name, "subject", subject, "has_image", image != nil)

		run := deps.Orchestrator.RunAll(ctx, subject, req.Input, image, nil)

		if req.Enrich && deps.Enricher != nil {
			go deps.Enricher.Enrich(context.WithoutCancel(ctx), run)
		}

		return json.Marshal(viewRun(run, false))
	}
}

type runIDRequest struct {
	RunID string `json:"run_id"`
}

func lookupRun(deps HandlerDeps, op string, payload json.RawMessage) (*usecase.Run, error) {
	var req runIDRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.NewDomainError(op, domain.ErrRPCInvalidPayload, err.Error())
	}
	if req.RunID == "" {
		return nil, domain.NewDomainError(op, domain.ErrRPCInvalidPayload, "run_id is required")
	}
	run, err := deps.Orchestrator.Run(req.RunID)
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}
	return run, nil
}

func solveEnrichHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		run, err := lookupRun(deps, "solve.enrich", payload)
		if err != nil {
			return nil, err
		}
		if !run.Done() {
			return nil, domain.NewDomainError("solve.enrich", domain.ErrInvalidInput, "run still in progress")
		}
		if deps.Enricher != nil {
			deps.Enricher.Enrich(ctx, run)
		}
		return json.Marshal(viewRun(run, true))
	}
}

func solveQuizHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		run, err := lookupRun(deps, "solve.quiz", payload)
		if err != nil {
			return nil, err
		}
		if q := run.Quiz(); q != nil {
			return json.Marshal(q)
		}
		if !run.Done() {
			return nil, domain.NewDomainError("solve.quiz", domain.ErrInvalidInput, "run still in progress")
		}
		q := deps.Quiz.GenerateForRun(ctx, run)
		if q == nil {
			return nil, domain.NewDomainError("solve.quiz", domain.ErrEmptyResponse, "no quiz generated")
		}
		return json.Marshal(q)
	}
}

// --- run.* ---

func runGetHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		run, err := lookupRun(deps, "run.get", payload)
		if err != nil {
			return nil, err
		}
		return json.Marshal(viewRun(run, false))
	}
}

func runSubscribeHandler(s *Server, deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		run, err := lookupRun(deps, "run.subscribe", payload)
		if err != nil {
			return nil, err
		}
		if err := s.subscribeRun(ctx, run.ID); err != nil {
			return nil, err
		}
		return json.Marshal(viewRun(run, false))
	}
}

func runUnsubscribeHandler(s *Server) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req runIDRequest
		if err := json.Unmarshal(payload, &req); err != nil || req.RunID == "" {
			return nil, domain.NewDomainError("run.unsubscribe", domain.ErrRPCInvalidPayload, "run_id is required")
		}
		return json.Marshal(map[string]bool{"unsubscribed": s.unsubscribeRun(ctx, req.RunID)})
	}
}

// --- meta.* ---

type catalogEntry struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func catalogHandler() RPCHandler {
	return func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		var resp struct {
			Subjects []catalogEntry `json:"subjects"`
			Agents   []catalogEntry `json:"agents"`
		}
		for _, s := range domain.AllSubjects() {
			resp.Subjects = append(resp.Subjects, catalogEntry{ID: string(s), Label: s.Label()})
		}
		for _, a := range domain.AllAgents() {
			resp.Agents = append(resp.Agents, catalogEntry{ID: string(a), Label: a.Label()})
		}
		return json.Marshal(resp)
	}
}
