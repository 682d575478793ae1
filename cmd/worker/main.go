package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/loan-intake/internal/bootstrap"
	"github.com/kirillkom/loan-intake/internal/config"
	"github.com/kirillkom/loan-intake/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New("loan-intake-worker", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor, err := bootstrap.NewMonitor(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer monitor.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", monitor.Metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	logger.Info("queue_monitor_started",
		"subject", cfg.NATSChangeSubject,
		"group", cfg.NATSMonitorGroup,
		"interval", cfg.QueueMonitorInterval.String(),
		"metrics_port", cfg.WorkerMetricsPort,
	)
	if err := monitor.Monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("queue_monitor_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	logger.Info("queue_monitor_stopped")
}
