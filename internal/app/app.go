// Package app builds the service components from configuration and runs
// them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/abhisek/skillissue/internal/api"
	"github.com/abhisek/skillissue/internal/challenge"
	"github.com/abhisek/skillissue/internal/challengegen"
	"github.com/abhisek/skillissue/internal/config"
	"github.com/abhisek/skillissue/internal/llm"
	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/optimizer"
	"github.com/abhisek/skillissue/internal/promptopt"
	"github.com/abhisek/skillissue/internal/scheduler"
	"github.com/abhisek/skillissue/internal/store"
	"github.com/abhisek/skillissue/internal/trigger"
)

// Options holds what the caller resolved before building the app.
type Options struct {
	Config *config.File
	DBPath string
	Log    *logger.Logger

	// Provider overrides provider construction from the environment.
	Provider llm.Provider
}

// App is the wired service.
type App struct {
	Config     *config.File
	Log        *logger.Logger
	Store      *store.Store
	Provider   llm.Provider // nil when no LLM is configured
	Challenges *challenge.Service
	Scheduler  *scheduler.Scheduler
	Optimizer  *optimizer.Pipeline
	API        *api.Server
}

// New opens the store and constructs every component. Without an LLM
// provider the app still runs: challenges fall back to placeholders and the
// optimizer only detects.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(""); err != nil {
			return nil, err
		}
	}
	log := logger.OrNop(opts.Log)

	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{Config: cfg, Log: log, Store: st, Provider: opts.Provider}
	if a.Provider == nil {
		a.Provider = providerFromEnv(ctx, st, log)
	}

	var gen challenge.Generator
	var queue *optimizer.Queue
	if a.Provider != nil {
		g := challengegen.New(a.Provider, st, challengegen.DefaultConfig())
		gen = g
		opt := promptopt.New(a.Provider, g, promptopt.NewJudge(a.Provider), st, cfg.PromptOptSettings(), log)
		queue = optimizer.NewQueue(st, opt, cfg.QueueSettings(), log)
	}

	a.Challenges = challenge.New(st, gen, nil, cfg.ChallengeSettings(), log)
	a.Scheduler = scheduler.New(st, a.Challenges, cfg.SchedulerSettings(), log)
	a.Optimizer = optimizer.NewPipeline(optimizer.NewDetector(st, cfg.DetectorSettings(), log), queue, log)
	a.API = api.New(a.Challenges, st, log)
	return a, nil
}

func providerFromEnv(ctx context.Context, events llm.EventRecorder, log *logger.Logger) llm.Provider {
	lc, ok := llm.ConfigFromEnvOrDiscover()
	if !ok {
		log.Warn("LLM provider not configured, challenges will be placeholders and prompts will not be optimized")
		return nil
	}
	if err := lc.Validate(); err != nil {
		log.Warn("LLM provider misconfigured", "error", err)
		return nil
	}
	p, err := llm.NewProvider(ctx, lc, events, log)
	if err != nil {
		log.Warn("LLM provider unavailable", "provider", lc.Provider, "error", err)
		return nil
	}
	log.Info("LLM provider ready", "provider", lc.Provider, "model", p.ModelID())
	return p
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// Serve runs both periodic triggers and the HTTP API until ctx is done.
// Setting http.addr to "-" disables the API.
func (a *App) Serve(ctx context.Context) error {
	runner := trigger.New(a.Log)
	if err := runner.Add("tick", a.Config.Scheduler.Schedule, a.Config.Scheduler.StartupDelay,
		func(ctx context.Context) { a.Scheduler.Tick(ctx) }); err != nil {
		return err
	}
	if err := runner.Add("optimize", a.Config.Optimizer.Schedule, a.Config.Optimizer.StartupDelay,
		func(ctx context.Context) { a.Optimizer.Run(ctx) }); err != nil {
		return err
	}
	runner.Start(ctx)
	defer runner.Stop()

	if a.Config.HTTP.Addr == "-" {
		a.Log.Info("HTTP API disabled")
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           a.API.Router(),
		ReadHeaderTimeout: a.Config.HTTP.ReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("HTTP API listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	a.Log.Info("HTTP API stopped")
	return nil
}
