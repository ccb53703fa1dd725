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

	httpadapter "github.com/kirillkom/art-insight-service/internal/adapters/http"
	"github.com/kirillkom/art-insight-service/internal/bootstrap"
	"github.com/kirillkom/art-insight-service/internal/config"
	"github.com/kirillkom/art-insight-service/internal/observability/logging"
	"github.com/kirillkom/art-insight-service/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		cfg,
		app.Analyzer,
		app.Deep,
		app.Generator,
		app.Collaborative,
		app.History,
		metrics.NewHTTPServerMetrics("api"),
	)

	server := &http.Server{
		Addr:        ":" + cfg.APIPort,
		Handler:     router.Handler(),
		ReadTimeout: 30 * time.Second,
		// streaming responses stay open for the whole pipeline run
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
