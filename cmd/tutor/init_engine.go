package main

import (
	"context"
	"fmt"
	"log/slog"

	"tutor-ai/internal/adapter/audio"
	"tutor-ai/internal/adapter/llm"
	"tutor-ai/internal/adapter/speech"
	"tutor-ai/internal/domain"
	"tutor-ai/internal/infra/config"
	"tutor-ai/internal/infra/logger"
	"tutor-ai/internal/infra/tracer"
	"tutor-ai/internal/usecase"
	"tutor-ai/internal/usecase/eventbus"
	"tutor-ai/internal/usecase/playback"
	"tutor-ai/internal/usecase/resultcache"
)

// Engine holds the wired components shared by every command.
type Engine struct {
	Config       *config.Config
	Logger       *slog.Logger
	Bus          *eventbus.Bus
	Cache        *resultcache.Cache
	Backend      domain.GenerationBackend
	Speech       domain.SpeechSynthesizer
	Player       *playback.Manager
	Agents       []domain.AgentKind
	Orchestrator *usecase.Orchestrator
	Enricher     *usecase.Enricher
	Quiz         *usecase.QuizGenerator
}

// loadConfig loads the config and builds the logger. The returned closer
// flushes the log output.
func loadConfig(args []string) (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	log, closer, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, closer, nil
}

// initEngine wires the engine. The cleanup function stops playback, drains
// the event bus and flushes traces, in that order.
func initEngine(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Engine, func(), error) {
	// 1. Tracer
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, nil, fmt.Errorf("tracer: %w", err)
	}

	// 2. Generation backend (throttle and breaker applied by the registry)
	backend, err := llm.NewRegistry().Build(cfg.LLM, log)
	if err != nil {
		_ = tracerShutdown(ctx)
		return nil, nil, fmt.Errorf("llm: %w", err)
	}

	// 3. Speech and playback
	synth, err := speech.New(cfg, log)
	if err != nil {
		_ = tracerShutdown(ctx)
		return nil, nil, fmt.Errorf("speech: %w", err)
	}
	player := playback.NewManager(func() (domain.AudioOutput, error) {
		return audio.New(cfg.Audio, log)
	}, log)

	// 4. Agents and prompts
	agents, templates, err := agentSettings(cfg.Agents)
	if err != nil {
		_ = tracerShutdown(ctx)
		return nil, nil, fmt.Errorf("agents: %w", err)
	}
	prompts := usecase.NewPromptBuilder(templates)

	// 5. Engine
	bus := eventbus.New(log)
	cache := resultcache.New()
	dispatcher := usecase.NewDispatcher(usecase.DispatcherDeps{
		Backend:     backend,
		Cache:       cache,
		Prompts:     prompts,
		Temperature: cfg.Agents.Temperature,
		Logger:      log,
	})
	eng := &Engine{
		Config:  cfg,
		Logger:  log,
		Bus:     bus,
		Cache:   cache,
		Backend: backend,
		Speech:  synth,
		Player:  player,
		Agents:  agents,
		Orchestrator: usecase.NewOrchestrator(usecase.OrchestratorDeps{
			Dispatcher: dispatcher,
			Bus:        bus,
			Logger:     log,
			Agents:     agents,
			Retention: usecase.RunRetention{
				MaxRuns: cfg.Gateway.RunRetention.MaxRuns,
				TTL:     cfg.Gateway.RunRetention.TTL,
			},
		}),
		Enricher: usecase.NewEnricher(usecase.EnricherDeps{
			Backend:     backend,
			Speech:      synth,
			Cache:       cache,
			Prompts:     prompts,
			Bus:         bus,
			Temperature: cfg.Agents.Temperature,
			Logger:      log,
		}),
		Quiz: usecase.NewQuizGenerator(backend, prompts, log),
	}

	log.Debug("engine ready",
		"backend", backend.Name(),
		"speech", synth.Name(),
		"agents", len(agents),
	)

	cleanup := func() {
		if err := player.Close(); err != nil {
			log.Warn("close audio output", "error", err)
		}
		bus.Close()
		if err := tracerShutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown", "error", err)
		}
	}
	return eng, cleanup, nil
}

// agentSettings resolves the enabled agent list and template overrides.
// An empty enabled list means every agent, in the default order.
func agentSettings(cfg config.AgentsConfig) ([]domain.AgentKind, map[domain.AgentKind]string, error) {
	var agents []domain.AgentKind
	for _, name := range cfg.Enabled {
		a, err := domain.ParseAgentKind(name)
		if err != nil {
			return nil, nil, err
		}
		agents = append(agents, a)
	}
	if len(agents) == 0 {
		agents = domain.AllAgents()
	}

	templates := make(map[domain.AgentKind]string, len(cfg.Templates))
	for name, tmpl := range cfg.Templates {
		a, err := domain.ParseAgentKind(name)
		if err != nil {
			return nil, nil, err
		}
		templates[a] = tmpl
	}
	return agents, templates, nil
}
