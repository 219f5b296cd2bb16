package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proofframe/proofframe/internal/analysis"
	"github.com/proofframe/proofframe/internal/api/router"
	"github.com/proofframe/proofframe/internal/app/bootstrap"
	appconfig "github.com/proofframe/proofframe/internal/config"
	"github.com/proofframe/proofframe/internal/http/handlers"
	"github.com/proofframe/proofframe/internal/integrity"
	"github.com/proofframe/proofframe/internal/liveness"
	"github.com/proofframe/proofframe/internal/observability/metrics"
	"github.com/proofframe/proofframe/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting proofframe decision API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler, decisionMetrics := setupDecisionMetrics()

	dbPool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	var sqlDB *sql.DB
	if dbPool != nil {
		defer dbPool.Close()
		sqlDB = stdlib.OpenDBFromPool(dbPool)
		defer func() { _ = sqlDB.Close() }()
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	thresholds, err := bootstrap.BuildThresholds(cfg)
	if err != nil {
		logger.Error("invalid policy thresholds", "error", err)
		os.Exit(1)
	}

	auditLog := bootstrap.BuildAuditStore(sqlDB)
	pipelineOpts := []analysis.PipelineOption{analysis.WithMetrics(decisionMetrics)}
	if analyzed := bootstrap.BuildAnalyzedMediaStore(dbPool); analyzed != nil {
		pipelineOpts = append(pipelineOpts, analysis.WithAnalyzedStore(analyzed))
	}
	pipeline := analysis.NewPipeline(
		integrity.NewValidator(cfg.IntegrityTimeout),
		thresholds,
		auditLog,
		logger.WithComponent("analysis"),
		pipelineOpts...,
	)

	manager := liveness.NewManager(
		bootstrap.BuildSessionStore(redisClient, cfg),
		logger.WithComponent("liveness"),
		liveness.WithTTL(cfg.LivenessTTL),
		liveness.WithRetention(cfg.LivenessRetention),
		liveness.WithFingerprintPolicy(liveness.FingerprintPolicy{AllowVirtualized: cfg.AllowVirtualized}),
		liveness.WithExpiryHook(handlers.ExpiryHook(pipeline, decisionMetrics, logger.WithComponent("liveness"))),
	)
	manager.StartSweeper(ctx, cfg.LivenessSweep)

	submitter, jobs, worker := setupAsyncAnalysis(cfg, pipeline, dbPool, logger)
	worker.Start(ctx)
	defer worker.Wait()

	r := router.New(&router.Config{
		Logger:             logger,
		Analysis:           handlers.NewAnalysisHandler(pipeline, submitter, jobs, logger),
		Liveness:           handlers.NewLivenessHandler(manager, pipeline, decisionMetrics, logger),
		AdminReports:       handlers.NewAdminReportsHandler(auditLog, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: splitOrigins(cfg.CORSAllowedOrigins),
		IssueRateLimit:     cfg.IssueRateLimit,
		IssueRateBurst:     cfg.IssueRateBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// setupDecisionMetrics builds the metrics registry and the exposition handler.
func setupDecisionMetrics() (http.Handler, *metrics.DecisionMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewDecisionMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), m
}

// connectPostgresPool returns a verified pgx pool or nil when the database
// is not configured or unreachable. The decision core runs without one.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Warn("failed to configure postgres", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("postgres not available, falling back to in-memory stores", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// setupAsyncAnalysis wires the in-process queue, job store and worker. The
// queue is always an in-memory channel; the job store is Postgres-backed
// when a database is available so job polls survive restarts.
func setupAsyncAnalysis(cfg *appconfig.Config, pipeline *analysis.Pipeline, dbPool *pgxpool.Pool, logger *logging.Logger) (*analysis.Submitter, analysis.JobRecorder, *analysis.Worker) {
	queue := analysis.NewMemoryQueue(cfg.QueueBuffer)

	var recorder analysis.JobRecorder
	var updater analysis.JobUpdater
	if dbPool != nil && !cfg.UseMemoryQueue {
		store := analysis.NewPGJobStore(dbPool)
		recorder, updater = store, store
	} else {
		store := analysis.NewMemoryJobStore()
		recorder, updater = store, store
	}

	worker := analysis.NewWorker(pipeline, queue, updater, logger.WithComponent("worker"),
		analysis.WithWorkerCount(cfg.WorkerCount))
	return analysis.NewSubmitter(queue, recorder), recorder, worker
}

func splitOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
