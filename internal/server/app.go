// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/api"
	"github.com/JakeFAU/seo-brief-automator/internal/archive"
	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/budget"
	"github.com/JakeFAU/seo-brief-automator/internal/clock/system"
	"github.com/JakeFAU/seo-brief-automator/internal/config"
	"github.com/JakeFAU/seo-brief-automator/internal/dispatcher"
	"github.com/JakeFAU/seo-brief-automator/internal/fetcher"
	collyfetcher "github.com/JakeFAU/seo-brief-automator/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/seo-brief-automator/internal/fetcher/headless"
	"github.com/JakeFAU/seo-brief-automator/internal/fetcher/serpapi"
	"github.com/JakeFAU/seo-brief-automator/internal/hash/sha256"
	"github.com/JakeFAU/seo-brief-automator/internal/headless/detector"
	"github.com/JakeFAU/seo-brief-automator/internal/id/uuid"
	"github.com/JakeFAU/seo-brief-automator/internal/live"
	"github.com/JakeFAU/seo-brief-automator/internal/llm/openai"
	"github.com/JakeFAU/seo-brief-automator/internal/logging"
	"github.com/JakeFAU/seo-brief-automator/internal/markdown"
	"github.com/JakeFAU/seo-brief-automator/internal/metrics"
	"github.com/JakeFAU/seo-brief-automator/internal/pipeline"
	"github.com/JakeFAU/seo-brief-automator/internal/policy/ratelimit"
	"github.com/JakeFAU/seo-brief-automator/internal/progress"
	progresssinks "github.com/JakeFAU/seo-brief-automator/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/seo-brief-automator/internal/publisher/memory"
	natspublisher "github.com/JakeFAU/seo-brief-automator/internal/publisher/nats"
	gcppublisher "github.com/JakeFAU/seo-brief-automator/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/seo-brief-automator/internal/queue/memory"
	"github.com/JakeFAU/seo-brief-automator/internal/research"
	"github.com/JakeFAU/seo-brief-automator/internal/storage"
	gcsstorage "github.com/JakeFAU/seo-brief-automator/internal/storage/gcs"
	localstorage "github.com/JakeFAU/seo-brief-automator/internal/storage/local"
	memoryStorage "github.com/JakeFAU/seo-brief-automator/internal/storage/memory"
	pgstore "github.com/JakeFAU/seo-brief-automator/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/seo-brief-automator/internal/storage/sqlite"
	"github.com/JakeFAU/seo-brief-automator/internal/telemetry"
	"github.com/JakeFAU/seo-brief-automator/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	registerer  prometheus.Registerer
	apiServer   *api.Server
	controller  *pipeline.Controller
	store       *pipeline.Store
	limiter     *budget.Limiter
	dispatch    *dispatcher.Dispatcher
	progressHub *progress.Hub
	queue       *queueMemory.Queue
	archive     *archive.Saver
	history     brief.HistoryRecorder
	publisher   brief.Publisher
	gcsClient   *gcs.Client
	headless    *headlessfetcher.Fetcher
	pacer       *ratelimit.Limiter
	closers     []func() error
	closeOnce   sync.Once

	tracerShutdown func(context.Context) error
}

// Option customizes Build.
type Option func(*App)

// WithLogger replaces the logger built from configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithRegisterer registers pipeline collectors on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	app := &App{cfg: cfg, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
		app.logger = logger
	}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("serp_provider", cfg.SERP.Provider),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("history_backend", cfg.History.Backend),
		zap.String("notify_backend", cfg.Notify.Backend),
	)
	metrics.Init()

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			SampleRatio: cfg.Telemetry.SampleRatio,
		}, app.logger.Named("trace"))
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracerShutdown = tp.Shutdown
	}

	if err := app.build(ctx); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.closeInfrastructure(closeCtx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	clock := system.New()
	a.limiter = budget.New(budget.Config{
		MaxRequests:       a.cfg.Budget.MaxRequests,
		RequestsPerSecond: a.cfg.Budget.RequestsPerSecond,
		Burst:             a.cfg.Budget.Burst,
	})

	model, err := openai.New(openai.Config{
		APIKey:     a.cfg.LLM.APIKey,
		BaseURL:    a.cfg.LLM.BaseURL,
		Model:      a.cfg.LLM.Model,
		Timeout:    time.Duration(a.cfg.LLM.TimeoutSeconds) * time.Second,
		MaxRetries: a.cfg.LLM.MaxRetries,
	}, a.logger.Named("openai"))
	if err != nil {
		return fmt.Errorf("llm client init failed: %w", err)
	}
	guarded := budget.Guard(model, a.limiter, a.logger.Named("budget"))
	renderer := markdown.New()
	researcher, err := research.New(guarded, renderer, clock, research.Config{
		ResearchModel: a.cfg.LLM.Model,
		AnalysisModel: a.cfg.LLM.AnalysisModel,
	}, a.logger.Named("research"))
	if err != nil {
		return fmt.Errorf("researcher init failed: %w", err)
	}

	serp, err := a.setupSERP()
	if err != nil {
		return err
	}

	blobStore, err := a.setupStorage(ctx)
	if err != nil {
		return err
	}
	a.archive, err = archive.New(blobStore, clock, archive.Config{Prefix: a.cfg.Storage.Prefix}, a.logger.Named("archive"))
	if err != nil {
		return fmt.Errorf("archive init failed: %w", err)
	}

	if err = a.setupHistory(ctx); err != nil {
		return err
	}
	if err = a.setupPublisher(ctx); err != nil {
		return err
	}

	a.store = pipeline.NewStore(context.Background(), clock, uuid.New(), a.limiter)
	a.closers = append(a.closers, func() error { a.store.Close(); return nil })
	statusReader := pipeline.NewStatusReader(a.store, a.limiter)
	broadcaster := live.NewBroadcaster(statusReader, nil, a.logger.Named("live"))

	if err = a.setupProgress(broadcaster); err != nil {
		return err
	}

	a.queue = queueMemory.NewQueue(a.cfg.Pipeline.QueueDepth)
	runner, err := pipeline.NewRunner(a.store, a.limiter, pipeline.Collaborators{
		SERP:       serp,
		Researcher: researcher,
		Model:      guarded,
		Renderer:   renderer,
		Saver:      a.archive,
		Hasher:     sha256.New(),
		Clock:      clock,
		History:    a.history,
		Publisher:  a.publisher,
		Emitter:    a.progressHub,
	}, pipeline.RunnerConfig{
		SERPLimit:      a.cfg.Pipeline.MaxSERPResults,
		FinalModel:     a.cfg.LLM.Model,
		CompletedTopic: a.cfg.Notify.Topic,
	}, a.logger.Named("runner"))
	if err != nil {
		return fmt.Errorf("runner init failed: %w", err)
	}

	workers := make([]*worker.Worker, 0, a.cfg.Pipeline.Workers)
	for i := 0; i < a.cfg.Pipeline.Workers; i++ {
		workers = append(workers, worker.New(a.queue, runner, worker.Config{
			StageTimeout: a.cfg.StageTimeout(),
			ID:           i,
		}, a.logger.Named("worker")))
	}
	a.dispatch = dispatcher.New(a.queue, workers)
	a.controller = pipeline.NewController(a.store, a.limiter, a.dispatch, a.progressHub, clock, a.logger.Named("controller"))

	a.apiServer, err = api.NewServer(api.Deps{
		Controller: a.controller,
		Archive:    a.archive,
		History:    a.history,
		Live:       broadcaster,
	}, *a.cfg, a.logger.Named("api"))
	if err != nil {
		return fmt.Errorf("api init failed: %w", err)
	}
	return nil
}

func (a *App) setupSERP() (brief.SERPFetcher, error) {
	timeout := time.Duration(a.cfg.SERP.TimeoutSeconds) * time.Second
	a.pacer = ratelimit.New(ratelimit.Config{RPS: a.cfg.SERP.HostRPS, Burst: a.cfg.SERP.HostBurst})
	switch a.cfg.SERP.Provider {
	case "colly":
		a.logger.Info("using colly SERP fetcher", zap.String("search_url", a.cfg.SERP.SearchURL))
		return a.newColly(timeout, nil), nil
	case "headless":
		f, err := a.newHeadless()
		if err != nil {
			return nil, err
		}
		a.logger.Info("using headless SERP fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		return f, nil
	case "auto":
		f, err := a.newHeadless()
		if err != nil {
			return nil, err
		}
		a.logger.Info("using colly SERP fetcher with headless promotion",
			zap.String("search_url", a.cfg.SERP.SearchURL),
			zap.Int("promotion_threshold", a.cfg.Headless.PromotionThresh),
		)
		return &fetcher.Fallback{
			Primary:   a.newColly(timeout, detector.NewHeuristic(a.cfg.Headless.PromotionThresh)),
			Secondary: f,
			Logger:    a.logger.Named("serp_fallback"),
		}, nil
	default:
		c, err := serpapi.New(serpapi.Config{
			APIKey:   a.cfg.SERP.APIKey,
			BaseURL:  a.cfg.SERP.BaseURL,
			Language: a.cfg.SERP.Language,
			Country:  a.cfg.SERP.Country,
			Timeout:  timeout,
		}, a.logger.Named("serpapi"))
		if err != nil {
			return nil, fmt.Errorf("serpapi client init failed: %w", err)
		}
		a.logger.Info("using serpapi SERP fetcher")
		return c, nil
	}
}

func (a *App) newColly(timeout time.Duration, detect collyfetcher.RenderDetector) *collyfetcher.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		SearchURL: a.cfg.SERP.SearchURL,
		UserAgent: a.cfg.SERP.UserAgent,
		Timeout:   timeout,
		Detector:  detect,
		Pacer:     a.pacer,
	}, a.logger.Named("colly"))
}

func (a *App) newHeadless() (*headlessfetcher.Fetcher, error) {
	f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		SearchURL:         a.cfg.SERP.SearchURL,
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.SERP.UserAgent,
		NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		Pacer:             a.pacer,
	}, a.logger.Named("headless"))
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	a.headless = f
	return f, nil
}

func (a *App) setupStorage(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case "local":
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.LocalDir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

func (a *App) setupHistory(ctx context.Context) error {
	switch a.cfg.History.Backend {
	case "postgres":
		store, err := pgstore.NewHistoryStore(ctx, pgstore.Config{
			DSN:         a.cfg.History.DSN,
			Table:       a.cfg.History.Table,
			CreateTable: a.cfg.History.CreateTable,
		})
		if err != nil {
			return fmt.Errorf("postgres history init failed: %w", err)
		}
		a.history = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		a.logger.Info("postgres run history initialized", zap.String("table", a.cfg.History.Table))
	case "sqlite":
		store, err := sqlitestore.Open(ctx, a.cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("sqlite history init failed: %w", err)
		}
		a.history = store
		a.closers = append(a.closers, store.Close)
		a.logger.Info("sqlite run history initialized")
	default:
		a.logger.Info("run history disabled")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	switch a.cfg.Notify.Backend {
	case "pubsub":
		p, err := gcppublisher.Dial(ctx, a.cfg.Notify.ProjectID, a.logger.Named("pubsub"))
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.publisher = p
		a.closers = append(a.closers, p.Close)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Notify.ProjectID),
			zap.String("topic", a.cfg.Notify.Topic),
		)
	case "nats":
		p, err := natspublisher.Connect(a.cfg.Notify.NATSURL, a.logger.Named("nats"))
		if err != nil {
			return fmt.Errorf("nats publisher init failed: %w", err)
		}
		a.publisher = p
		a.closers = append(a.closers, p.Close)
		a.logger.Info("NATS publisher initialized", zap.String("subject", a.cfg.Notify.Topic))
	case "memory":
		a.publisher = memorypublisher.New()
		a.logger.Info("using in-memory publisher")
	default:
		a.logger.Info("completion notifications disabled")
	}
	return nil
}

func (a *App) setupProgress(broadcaster *live.Broadcaster) error {
	promSink, err := progresssinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	hubCfg := progress.Config{
		BufferSize:   a.cfg.Progress.BufferSize,
		MaxBatchWait: time.Duration(a.cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		Logger:       a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg,
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
		broadcaster,
	)
	a.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Controller exposes the pipeline controller.
func (a *App) Controller() *pipeline.Controller {
	return a.controller
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Start launches the stage workers. They stop when ctx ends or the app closes.
func (a *App) Start(ctx context.Context) {
	go func() {
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Pipeline.Workers))
		a.dispatch.Run(ctx)
	}()
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application. Later calls are no-ops.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		a.closeInfrastructure(ctx)
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
		a.logger.Info("shutdown complete")
	})
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("resource close failed", zap.Error(err))
		}
	}
	a.closers = nil
	if a.headless != nil {
		a.headless.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}
