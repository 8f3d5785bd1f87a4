package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"khorcha/internal/amqp"
	"khorcha/internal/auth"
	"khorcha/internal/backend"
	"khorcha/internal/cache"
	"khorcha/internal/cli"
	"khorcha/internal/config"
	"khorcha/internal/core"
	apphttp "khorcha/internal/http"
	applog "khorcha/internal/log"
	"khorcha/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend)).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Error("Failed to close backend", "error", err)
		}
	}()

	snapshots := cache.NewLRUCache[core.Snapshot](cfg.SnapshotCacheSize, cfg.SnapshotCacheTTL)
	cacheManager := cache.NewManager(logger.WithComponent(applog.ComponentCache))
	cacheManager.Register(snapshots)

	opts := []services.Option{
		services.WithSnapshotCache(snapshots),
		services.WithLogger(logger.WithComponent(applog.ComponentExpense)),
	}
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, change events disabled", "error", err)
		} else {
			defer amqpClient.Close()
			opts = append(opts, services.WithPublisher(amqpClient))
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, change events will not be published")
	}
	expenseService := services.NewExpenseService(store.Repository, opts...)

	tokens := auth.NewTokenService(cfg.JWTSecret, 0)
	if !tokens.Enabled() {
		logger.Warn("JWT_SECRET is empty, trusting the X-User-ID header")
	}

	srv := apphttp.NewServer(":"+cfg.Port, expenseService,
		apphttp.WithTokens(tokens),
		apphttp.WithReadiness(store.Ready),
		apphttp.WithRateLimit(cfg.RateLimitPerMinute),
		apphttp.WithLogger(logger.WithComponent(applog.ComponentHTTP)),
	)
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		return cacheManager.Run(gctx, cfg.CacheCleanInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("Starting khorcha server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
