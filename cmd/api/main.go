package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/kenvote/registry/internal/accounts"
	"github.com/kenvote/registry/internal/app"
	"github.com/kenvote/registry/internal/auth"
	"github.com/kenvote/registry/internal/blob"
	"github.com/kenvote/registry/internal/card"
	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/guard"
	"github.com/kenvote/registry/internal/handler"
	"github.com/kenvote/registry/internal/infra"
	"github.com/kenvote/registry/internal/metrics"
	"github.com/kenvote/registry/internal/regions"
	"github.com/kenvote/registry/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if cfg.AllowInsecureDefaults {
		logger.Warn("running with insecure defaults allowed")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Store
	base, health, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	docs := store.WithMetrics(base, m)

	// Login throttling, shared through Redis when configured
	var loginLimiter guard.Limiter = guard.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)
	rdb, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
		loginLimiter = guard.NewRedisRateLimiter(rdb, "registry:login:", cfg.LoginRateLimit, cfg.LoginRateWindow, logger)
		logger.Info("connected to redis")
	}

	// Lifecycle events
	producer := infra.NewKafkaProducer(cfg.KafkaBrokerList(), cfg.KafkaEnabled, logger)
	defer producer.Close()
	var events domain.EventPublisher = domain.NopPublisher{}
	var outbox *infra.Outbox
	if producer.Enabled() {
		outbox = infra.NewOutbox(producer, guard.NewCircuitBreaker(5, 30*time.Second), m, logger, 1024)
		events = outbox
	}

	// Files
	photos, err := blob.NewFileStore(cfg.UploadsDir, cfg.MaxPhotoBytes)
	if err != nil {
		return fmt.Errorf("open uploads: %w", err)
	}
	regionLoader := regions.NewLoader(cfg.RegionsPath)
	if _, err := regionLoader.Load(ctx); err != nil {
		logger.Warn("regions file unavailable", "path", cfg.RegionsPath, "error", err)
	}

	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	tokens := auth.NewTokenManager(cfg.SessionSecret)

	if cfg.BootstrapUsername != "" {
		svc := accounts.NewService(docs, tokens, nil, events, m, logger, cfg.BcryptCost)
		if _, err := svc.Bootstrap(ctx, cfg.BootstrapUsername, cfg.BootstrapPassword); err != nil {
			return fmt.Errorf("bootstrap superadmin: %w", err)
		}
	}

	r := app.NewRouter(app.RouterDeps{
		Store:          docs,
		Tokens:         tokens,
		LoginLimiter:   loginLimiter,
		PublicLimit:    guard.NewIPLimiter(cfg.PublicRPS, cfg.PublicBurst),
		Events:         events,
		Photos:         photos,
		Cards:          card.NewPDFRenderer(photos, logger),
		Regions:        regionLoader,
		Metrics:        m,
		Gatherer:       reg,
		Health:         health,
		Logger:         logger,
		CORSOrigins:    cfg.AllowedOrigins(),
		TrustedProxies: proxies,
		MaxPhotoBytes:  cfg.MaxPhotoBytes,
		BcryptCost:     cfg.BcryptCost,
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if outbox != nil {
		outbox.Start(gctx)
		g.Go(func() error {
			<-outbox.Done()
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("api server starting", "addr", addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

// openStore selects the document store named by STORE_DRIVER.
func openStore(ctx context.Context, cfg *infra.Config, logger *slog.Logger) (store.Store, handler.HealthCheck, func(), error) {
	retry := store.RetryPolicy{Retries: cfg.StoreRetries, Interval: 20 * time.Millisecond}

	switch cfg.StoreDriver {
	case infra.DriverPostgres:
		pool, err := infra.NewPostgresPool(ctx, cfg, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("connected to postgres")
		health := func(ctx context.Context) error { return infra.HealthCheck(ctx, pool) }
		return store.NewPostgresStore(pool, cfg.StoreLockTimeout, retry), health, pool.Close, nil

	case infra.DriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return store.NewMemoryStore(), nil, func() {}, nil

	default:
		fs, err := store.NewFileStore(cfg.DataPath, store.FileOptions{
			LockTimeout: cfg.StoreLockTimeout,
			Retry:       retry,
		}, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open data file: %w", err)
		}
		logger.Info("using file store", "path", fs.Path())
		return fs, nil, func() {}, nil
	}
}
