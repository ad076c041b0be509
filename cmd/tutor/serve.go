package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tutor-ai/internal/adapter/gateway"
	"tutor-ai/internal/infra/config"
	"tutor-ai/internal/infra/middleware"
)

// serveFlags holds the parsed serve flags.
type serveFlags struct {
	Addr string
}

func parseServeArgs(args []string) (serveFlags, error) {
	var f serveFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if v, ok := strings.CutPrefix(arg, "--addr="); ok {
			f.Addr = v
			continue
		}
		switch {
		case arg == "--addr" && i+1 < len(args):
			f.Addr = args[i+1]
			i++
		case arg == "--config" && i+1 < len(args):
			i++
		case strings.HasPrefix(arg, "--config="):
		default:
			return f, fmt.Errorf("unknown argument %s", arg)
		}
	}
	return f, nil
}

func runServe(args []string) error {
	flags, err := parseServeArgs(args)
	if err != nil {
		return err
	}
	cfg, log, logCloser, err := loadConfig(args)
	if err != nil {
		return err
	}
	defer logCloser()
	if flags.Addr != "" {
		cfg.Gateway.Addr = flags.Addr
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, cleanup, err := initEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := gateway.NewServer(eng.Bus, gateway.NewAuthenticator(cfg.Gateway.Auth), cfg.Gateway.Addr, log)
	srv.Use(
		middleware.SecurityHeaders,
		middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerSecond: cfg.Gateway.RateLimit.RequestsPerSecond,
			Burst:             cfg.Gateway.RateLimit.Burst,
		}),
	)
	deps := gateway.HandlerDeps{
		Orchestrator: eng.Orchestrator,
		Enricher:     eng.Enricher,
		Quiz:         eng.Quiz,
		Cache:        eng.Cache,
		Bus:          eng.Bus,
		Logger:       log,
		Version:      version,
	}
	gateway.RegisterDefaultHandlers(srv, deps)
	gateway.RegisterRESTHandlers(srv, deps)

	log.Info("tutor-ai starting",
		"version", version,
		"addr", cfg.Gateway.Addr,
		"backend", eng.Backend.Name(),
		"speech", eng.Speech.Name(),
		"auth", cfg.Gateway.Auth.Type,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("gateway shutdown error", "error", err)
	}
	return <-errCh
}
