package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/atmx/margin-engine/internal/config"
	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/logger"
	"github.com/atmx/margin-engine/internal/metrics"
	"github.com/atmx/margin-engine/internal/refresh"
	"github.com/atmx/margin-engine/internal/simulator"
	"github.com/atmx/margin-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("margin-engine failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	st, backend, closeStore, err := store.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return err
	}
	cleanup = append(cleanup, closeStore)
	if backend == store.BackendMemory {
		log.Warn().Msg("DATABASE_URL and SQLITE_PATH not set, using in-memory store (data will not persist)")
	} else {
		log.Info().Str("backend", string(backend)).Msg("coverage store ready")
	}

	var cache store.ResultCache = store.NewMemoryResultCache(cfg.Model.Grid.CacheEntries)

	// Wrap with Redis read-through cache if configured.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
		cache = store.NewRedisResultCache(rdb, cfg.CacheTTL)
		log.Info().Dur("ttl", cfg.CacheTTL).Msg("Redis cache enabled")
	}

	// --- Coverage import ---
	if cfg.CoverageSource != "" {
		src, err := coverage.ParseSource(ctx, cfg.CoverageSource)
		if err != nil {
			return err
		}
		job := &refresh.Job{
			Source:      src,
			Store:       st,
			Breakpoints: cfg.Model.Coverage,
			Log:         log,
		}
		// A failed initial import leaves whatever the store already holds.
		if err := job.Run(); err != nil {
			log.Error().Err(err).Str("source", src.String()).Msg("initial coverage import failed")
		}

		if cfg.CoverageRefreshCron != "" {
			sched := refresh.NewScheduler(log)
			if err := sched.AddJob(cfg.CoverageRefreshCron, job); err != nil {
				return fmt.Errorf("schedule coverage import: %w", err)
			}
			sched.Start()
			cleanup = append(cleanup, sched.Stop)
		}
	}

	// --- Engine ---
	engine, err := simulator.NewEngine(simulator.Options{
		Limits:      cfg.Model.MarginLimits(),
		Grid:        cfg.Model.GridConfig(),
		Thresholds:  cfg.Model.RiskThresholds(),
		Multipliers: cfg.Model.ConfidenceMultipliers(),
		Coverage:    st,
		Cache:       cache,
		Log:         log,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	// --- WebSocket hub ---
	hub := simulator.NewWSHub(log, cfg.CORSOrigins)
	go hub.Run(ctx)

	svc := simulator.NewService(engine, st, hub, log)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"margin-engine","store":"` + string(backend) + `"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Mount)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("margin-engine listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Info().Msg("shutting down margin-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("margin-engine stopped")
	return nil
}
