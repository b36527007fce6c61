// Command ariad runs aria's Conversation Orchestration Core: the Control
// Plane HTTP API fronting the Chat Orchestrator, Expert Dispatcher,
// Episodic Memory Manager, Satisfaction Tracker, and LLM Gateway.
//
// Wiring follows the teacher's agentd.Run(): load config, init
// observability, build every subsystem, mount the router, serve with
// graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aria/internal/actionlog"
	"aria/internal/auth"
	"aria/internal/config"
	"aria/internal/dispatch"
	"aria/internal/experts"
	"aria/internal/httpapi"
	"aria/internal/llm"
	"aria/internal/memory"
	"aria/internal/observability"
	"aria/internal/orchestrator"
	"aria/internal/outbound"
	"aria/internal/satisfaction"
	"aria/internal/storage"
	"aria/internal/storage/postgres"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// InitOTel runs first so its log provider exists before InitLogger
	// decides whether to mirror zerolog output into it.
	shutdownOTel, err := observability.InitOTel(context.Background(), cfg.Obs)
	otelEnabled := err == nil
	if err != nil {
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel, cfg.Obs.ServiceName, otelEnabled)
	if !otelEnabled {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
	}

	ctx := context.Background()
	srv, cleanup, err := build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialization failed")
	}
	defer cleanup()

	runServer(cfg, srv)
}

// runServer starts the HTTP listener and blocks until SIGINT/SIGTERM,
// then drains in-flight requests before returning.
func runServer(cfg config.Config, handler http.Handler) {
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("ariad listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	case <-stop:
		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown failed")
		}
	}
}

// build wires every subsystem into a Control Plane http.Handler and
// returns a cleanup func that stops background work and closes
// connections.
func build(ctx context.Context, cfg config.Config) (http.Handler, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	pool, err := postgres.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, cleanup, err
	}
	cleanups = append(cleanups, pool.Close)

	if err := postgres.Init(ctx, pool); err != nil {
		return nil, cleanup, err
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cleanups = append(cleanups, func() { _ = rdb.Close() })
	}

	episodes := postgres.NewEpisodeStore(pool)
	facts := postgres.NewMemoryFactStore(pool)
	actionLogs := postgres.NewActionLogStore(pool)
	satisfactionStore := postgres.NewSatisfactionStore(pool)
	descriptors := postgres.NewExpertDescriptorStore(pool)

	if err := seedExpertCatalog(ctx, descriptors); err != nil {
		log.Warn().Err(err).Msg("expert catalog seed failed, continuing with whatever persisted")
	}

	obClient := outbound.New(cfg)

	registry := experts.NewRegistry(
		experts.NewBirthdayExpert(obClient, cfg.Downstream.Calendar),
		experts.NewCalendarExpert(obClient, cfg.Downstream.Calendar),
		experts.NewHomeAssistantExpert(obClient, cfg.Downstream.HomeAssistant),
		experts.NewJournalExpert(obClient, cfg.Downstream.Journal),
		experts.NewListExpert(obClient, cfg.Downstream.Lists),
		experts.NewMemoryExpert(facts),
		experts.NewPlanningExpert(),
		experts.NewReminderExpert(obClient, cfg.Downstream.Reminders),
	)

	actionLogger := actionlog.New(actionLogs, rdb)
	cleanups = append(cleanups, actionLogger.Close)

	disp := dispatch.New(registry, actionLogger)

	gw, err := buildGateway(ctx, cfg)
	if err != nil {
		return nil, cleanup, err
	}
	gw.WarmUp(ctx)

	timeouts := map[storage.ContextType]time.Duration{
		storage.ContextChat:        cfg.EpisodeTimeouts.Chat,
		storage.ContextDevelopment: cfg.EpisodeTimeouts.Development,
		storage.ContextPlanning:    cfg.EpisodeTimeouts.Planning,
		storage.ContextGeneral:     cfg.EpisodeTimeouts.General,
	}
	mem := memory.New(episodes, facts, llm.CompleteAdapter{Gateway: gw}, rdb, timeouts)

	sweeper, err := memory.NewSweeper(mem, episodes, "* * * * *")
	if err != nil {
		return nil, cleanup, err
	}
	sweeper.Start()
	cleanups = append(cleanups, sweeper.Stop)

	sat := satisfaction.New(satisfactionStore)
	orch := orchestrator.New(mem, disp, gw, sat)
	shim := auth.New(obClient, cfg.AuthServiceURL, cfg.LocalDevMode)

	server := httpapi.New(orch, shim, mem, sat, registry, descriptors, disp, cfg.LocalDevMode)
	return server, cleanup, nil
}

// buildGateway constructs the LLM Gateway's fallback chain from every
// configured model entry (§4.G: providers[0] is primary).
func buildGateway(ctx context.Context, cfg config.Config) (*llm.Gateway, error) {
	httpClient := observability.NewHTTPClient(nil)

	providers := make([]llm.Provider, 0, len(cfg.LLMModels))
	for _, m := range cfg.LLMModels {
		p, err := llm.Build(ctx, m, httpClient)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return llm.NewGateway(providers), nil
}

// seedExpertCatalog upserts the fixed 8-expert descriptor catalog (§9:
// "no dynamic plugin loading — fixed list wired at process start").
func seedExpertCatalog(ctx context.Context, store storage.ExpertDescriptorStore) error {
	for _, d := range defaultExpertCatalog() {
		if err := store.Upsert(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
