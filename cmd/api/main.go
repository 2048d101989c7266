package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/softtouch/api/internal/app/migrate"
	"github.com/softtouch/api/internal/domain"
	httpx "github.com/softtouch/api/internal/http"
	"github.com/softtouch/api/internal/repository/postgres"
	"github.com/softtouch/api/internal/service/registry"
	"github.com/softtouch/api/internal/service/stats"
	"github.com/softtouch/api/internal/service/telemetry"
	"github.com/softtouch/api/internal/ws"
	"github.com/softtouch/api/pkg/config"
	"github.com/softtouch/api/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()

	telemetrySvc := telemetry.NewService(repo, repo, repo, hub, log, cfg.TelemetryQueueSize)
	telemetryDone := make(chan struct{})
	go func() {
		telemetrySvc.Run(ctx)
		close(telemetryDone)
	}()

	snapshotSvc := stats.New(repo, log)
	registrySvc := registry.New(repo, log)
	if err := seedRegistry(ctx, registrySvc); err != nil {
		log.Warn("endpoint registry seeding failed", "error", err)
	}

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, telemetrySvc, snapshotSvc, registrySvc, hub, limiter, cfg.AdminStatsToken, cfg.APIBaseURL, pool.Ping)
	defer router.Close()
	httpx.RegisterDemoAPI(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		// Run drains buffered records once the signal context is cancelled;
		// exiting before it finishes would lose them.
		<-telemetryDone
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// seedRegistry upserts the bundled demo endpoints so the docs route and the
// statistics visibility filter have rows to work with on a fresh database.
func seedRegistry(ctx context.Context, svc *registry.Service) error {
	seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	entries := []domain.Endpoint{
		{
			Name:            "Text Analyze",
			Method:          http.MethodPost,
			Route:           "/api/text/analyze",
			ResponseType:    "application/json",
			PartDescription: "Character, word and line counts",
			Description:     "Counts characters, words and lines in the submitted text.",
			Params:          []byte(`[{"name":"text","type":"string","required":true}]`),
			SampleRequest:   []byte(`{"text":"hello world"}`),
			SampleResponse:  []byte(`{"characters":11,"words":2,"lines":1}`),
			Enabled:         true,
			VisibleInStats:  true,
		},
		{
			Name:            "Text Reverse",
			Method:          http.MethodPost,
			Route:           "/api/text/reverse",
			ResponseType:    "application/json",
			PartDescription: "Reversed text",
			Description:     "Returns the submitted text reversed rune by rune.",
			Params:          []byte(`[{"name":"text","type":"string","required":true}]`),
			SampleRequest:   []byte(`{"text":"abc"}`),
			SampleResponse:  []byte(`{"text":"cba"}`),
			Enabled:         true,
			VisibleInStats:  true,
		},
		{
			Name:            "UUID Generator",
			Method:          http.MethodGet,
			Route:           "/api/tools/uuid",
			ResponseType:    "application/json",
			PartDescription: "Random UUID",
			Description:     "Generates a random version 4 UUID.",
			Params:          []byte(`[]`),
			SampleRequest:   []byte(`{}`),
			SampleResponse:  []byte(`{"uuid":"00000000-0000-0000-0000-000000000000"}`),
			Enabled:         true,
			VisibleInStats:  true,
		},
	}
	for i := range entries {
		if err := svc.Upsert(seedCtx, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}
