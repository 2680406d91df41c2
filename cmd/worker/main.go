package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EZERROUK/x-panel-sub002/internal/app"
	jobmetrics "github.com/EZERROUK/x-panel-sub002/internal/jobs"
	"github.com/EZERROUK/x-panel-sub002/internal/platform/cache"
	"github.com/EZERROUK/x-panel-sub002/internal/platform/db"
	"github.com/EZERROUK/x-panel-sub002/internal/promotions"
	"github.com/EZERROUK/x-panel-sub002/internal/shared"
	"github.com/EZERROUK/x-panel-sub002/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	promotionsRepo := promotions.NewRepository(pool)
	catalog := promotions.NewCachedCatalog(redisClient, promotionsRepo, cfg.PromotionsCacheTTL).WithLogger(logger)
	promotionsService := promotions.NewService(promotionsRepo, promotions.ServiceConfig{
		Catalog:     catalog,
		Invalidator: catalog,
		Audit:       shared.NewAuditLogger(pool),
		Logger:      logger,
	})

	expireJob := jobs.NewPromotionsExpireJob(promotionsService, shared.NewIdempotencyStore(pool), logger, jobmetrics.NewMetrics(nil))
	expireTask, err := jobs.NewPromotionsExpireTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build expire task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts.AsynqOptions(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPromotionsExpire, Handler: expireJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PromotionsExpireCron, Task: expireTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadTimeout: cfg.AppReadTimeout}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
