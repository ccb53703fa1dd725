package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/art-insight-service/internal/bootstrap"
	"github.com/kirillkom/art-insight-service/internal/config"
	"github.com/kirillkom/art-insight-service/internal/core/domain"
	"github.com/kirillkom/art-insight-service/internal/observability/logging"
	"github.com/kirillkom/art-insight-service/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("worker metrics listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeArchiveRecords(ctx, func(handlerCtx context.Context, record domain.ArchiveRecord) error {
		workerMetrics.StartRecord()
		workerMetrics.ObserveQueueLag(serviceName, time.Since(record.CreatedAt))
		start := time.Now()

		saveCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()
		saveErr := app.Archiver.Archive(saveCtx, record)

		workerMetrics.FinishRecord(serviceName, time.Since(start), saveErr)
		return saveErr
	})
	if err != nil {
		logger.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}
}
