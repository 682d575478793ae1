package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/loan-intake/internal/adapters/http"
	"github.com/kirillkom/loan-intake/internal/bootstrap"
	"github.com/kirillkom/loan-intake/internal/config"
	"github.com/kirillkom/loan-intake/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New("loan-intake-api", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.Close(closeCtx)
	}()

	doc, err := httpadapter.LoadOpenAPI(ctx)
	if err != nil {
		logger.Error("openapi_load_failed", "error", err)
		os.Exit(1)
	}

	opts := httpadapter.RouterOptions{
		Metrics: app.HTTPMetrics,
		OpenAPI: doc,
		Logger:  logger,
	}
	if app.Files != nil {
		opts.Files = app.Files
	}
	router := httpadapter.NewRouter(cfg, app.UploadUC, app.VerificationUC, app.ActivityUC, opts)

	var handler http.Handler = router.Handler()
	if cfg.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "loan-intake-api")
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		logger.Error("api_listen_failed", "port", cfg.APIPort, "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("api_listening",
			"port", cfg.APIPort,
			"storage_backend", cfg.StorageBackend,
			"classifier_enabled", cfg.ClassifierEnabled,
			"max_connections", cfg.APIMaxConnections,
		)
		serverErr <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", "error", err)
	}
	logger.Info("api_stopped")
}
