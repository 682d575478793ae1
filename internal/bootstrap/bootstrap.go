package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kirillkom/loan-intake/internal/config"
	"github.com/kirillkom/loan-intake/internal/core/ports"
	"github.com/kirillkom/loan-intake/internal/core/usecase"
	natsfeed "github.com/kirillkom/loan-intake/internal/infrastructure/changefeed/nats"
	"github.com/kirillkom/loan-intake/internal/infrastructure/classifier/ollama"
	"github.com/kirillkom/loan-intake/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/loan-intake/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/loan-intake/internal/infrastructure/resilience"
	"github.com/kirillkom/loan-intake/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/loan-intake/internal/infrastructure/storage/s3store"
	"github.com/kirillkom/loan-intake/internal/observability/metrics"
	"github.com/kirillkom/loan-intake/internal/observability/tracing"
)

const serviceAPI = "api"

type App struct {
	Config config.Config
	Logger *slog.Logger

	UploadUC       *usecase.UploadDocumentUseCase
	VerificationUC *usecase.VerificationUseCase
	ActivityUC     *usecase.ActivityUseCase

	// Files is set only for the local storage backend, which serves its
	// own signed download links.
	Files       *localfs.Storage
	HTTPMetrics *metrics.HTTPServerMetrics

	closeFn func(context.Context)
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  "loan-intake-" + serviceAPI,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		OTLPInsecure: true,
		SampleRatio:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	var (
		httpMetrics   *metrics.HTTPServerMetrics
		intakeMetrics ports.IntakeMetrics
		onBreaker     func(operation, from, to string)
	)
	if cfg.MetricsEnabled {
		httpMetrics = metrics.NewHTTPServerMetrics(serviceAPI)
		im := metrics.NewIntakeMetrics(serviceAPI, httpMetrics.Registerer())
		intakeMetrics = im
		onBreaker = im.BreakerStateChanged
	}

	storageCfg := retryPolicy(cfg)
	storageCfg.OnStateChange = onBreaker
	storageExec := resilience.NewExecutor(storageCfg, logger)

	blobs, files, err := newBlobStore(ctx, cfg, storageExec)
	if err != nil {
		_ = db.Close()
		_ = shutdownTracing(ctx)
		return nil, err
	}

	natsCfg := retryPolicy(cfg)
	natsCfg.OnStateChange = onBreaker
	feed, err := natsfeed.New(cfg.NATSURL, cfg.NATSChangeSubject, natsfeed.Options{
		ResilienceExecutor: resilience.NewExecutor(natsCfg, logger),
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("init change feed: %w", err)
	}

	extractor := pdftext.NewExtractor(cfg.PDFMaxPages)
	classifierCfg := resilience.SingleShot(cfg.ClassifierBreakerEnabled)
	classifierCfg.OnStateChange = onBreaker
	classifier := ollama.New(cfg.ClassifierURL, cfg.ClassifierModel, ollama.Options{
		APIKey:        cfg.ClassifierAPIKey,
		HTTPClient:    &http.Client{Timeout: cfg.ClassifierTimeout},
		Executor:      resilience.NewExecutor(classifierCfg, logger),
		TextExtractor: extractor.ExtractText,
	})

	types := postgres.NewDocumentTypeRepository(db)
	records := postgres.NewDocumentRecordRepository(db)

	uploadUC := usecase.NewUploadDocumentUseCase(
		types,
		records,
		blobs,
		classifier,
		extractor,
		feed,
		intakeMetrics,
		logger.With("component", "upload"),
		usecase.UploadOptions{
			ClassifierEnabled: cfg.ClassifierEnabled,
			ClassifyPDF:       cfg.ClassifierPDFEnabled,
			ClassifierTimeout: cfg.ClassifierTimeout,
			StorageTimeout:    cfg.StorageTimeout,
			SignedURLTTL:      cfg.SignedURLTTL,
			MaxParallel:       cfg.UploadMaxParallel,
		},
	)
	verificationUC := usecase.NewVerificationUseCase(
		records,
		feed,
		feed,
		intakeMetrics,
		logger.With("component", "verification"),
	)
	activityUC := usecase.NewActivityUseCase(
		postgres.NewStatusHistoryRepository(db),
		records,
		postgres.NewActorDirectory(db),
		logger.With("component", "activity"),
		usecase.ActivityOptions{DefaultLimit: cfg.ActivityDefaultLimit},
	)

	return &App{
		Config:         cfg,
		Logger:         logger,
		UploadUC:       uploadUC,
		VerificationUC: verificationUC,
		ActivityUC:     activityUC,
		Files:          files,
		HTTPMetrics:    httpMetrics,
		closeFn: func(ctx context.Context) {
			feed.Close()
			_ = db.Close()
			if err := shutdownTracing(ctx); err != nil {
				logger.Warn("tracing_shutdown_failed", "error", err)
			}
		},
	}, nil
}

func (a *App) Close(ctx context.Context) {
	if a.closeFn != nil {
		a.closeFn(ctx)
	}
}

// Monitor is the queue monitor process: change feed in a queue group,
// record repository and its own metrics registry.
type Monitor struct {
	Config  config.Config
	Monitor *usecase.QueueMonitor
	Metrics *metrics.WorkerMetrics

	closeFn func()
}

func NewMonitor(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	feed, err := natsfeed.New(cfg.NATSURL, cfg.NATSChangeSubject, natsfeed.Options{Logger: logger})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init change feed: %w", err)
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")
	monitor := usecase.NewQueueMonitor(
		postgres.NewDocumentRecordRepository(db),
		feed.Group(cfg.NATSMonitorGroup),
		workerMetrics,
		logger.With("component", "queue_monitor"),
		cfg.QueueMonitorInterval,
	)
	return &Monitor{
		Config:  cfg,
		Monitor: monitor,
		Metrics: workerMetrics,
		closeFn: func() {
			feed.Close()
			_ = db.Close()
		},
	}, nil
}

func (m *Monitor) Close() {
	if m.closeFn != nil {
		m.closeFn()
	}
}

// OpenDatabase connects to Postgres and applies the schema.
func OpenDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func retryPolicy(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.MaxAttempts = cfg.RetryMaxAttempts
	out.InitialBackoff = cfg.RetryInitialBackoff
	out.MaxBackoff = cfg.RetryMaxBackoff
	return out
}

func newBlobStore(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.BlobStore, *localfs.Storage, error) {
	switch cfg.StorageBackend {
	case "local":
		storage, err := localfs.New(cfg.StoragePath, cfg.APIPublicURL, []byte(cfg.StorageSigningKey))
		if err != nil {
			return nil, nil, fmt.Errorf("init local storage: %w", err)
		}
		return storage, storage, nil
	case "s3":
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.S3Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
				o.UsePathStyle = true
			}
		})
		store, err := s3store.New(client, cfg.S3Bucket, cfg.S3Prefix, executor)
		if err != nil {
			return nil, nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return store, nil, nil
	default:
		return nil, nil, errors.New("unknown storage backend " + cfg.StorageBackend)
	}
}
