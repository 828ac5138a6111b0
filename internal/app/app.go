// Package app wires the fleet controller's long-running process: the
// Supervisor's liveness loop, the Enrichment and Suggestions background
// workers, and the control-plane HTTP server, grounded on the teacher's
// own app.Initialize/Start/Shutdown shape (internal/app/app.go).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/reddit-fleet/controller/internal/config"
	"github.com/reddit-fleet/controller/internal/controlplane"
	"github.com/reddit-fleet/controller/internal/enrichment"
	"github.com/reddit-fleet/controller/internal/errorreporting"
	"github.com/reddit-fleet/controller/internal/logger"
	"github.com/reddit-fleet/controller/internal/ratelimit"
	"github.com/reddit-fleet/controller/internal/redditclient"
	"github.com/reddit-fleet/controller/internal/security"
	"github.com/reddit-fleet/controller/internal/storage"
	"github.com/reddit-fleet/controller/internal/suggestions"
	"github.com/reddit-fleet/controller/internal/supervisor"
	"github.com/reddit-fleet/controller/internal/tracing"
)

// App holds every long-lived component of the controller process.
type App struct {
	Config      *config.Config
	Storage     storage.StorageInterface
	Supervisor  *supervisor.Supervisor
	Enrichment  *enrichment.Scheduler
	Suggestions *suggestions.Scheduler
	httpServer     *http.Server
	tracingStop    func(context.Context) error
	cancelLiveness context.CancelFunc
	log            *slog.Logger
}

// Initialize loads configuration and constructs every component without
// starting any background loop — Start does that.
func Initialize() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("app")

	if err := errorreporting.Init(envOrDefault()); err != nil {
		return nil, fmt.Errorf("init error reporting: %w", err)
	}

	tracingStop, err := tracing.Init(cfg.Monitoring.OTelServiceName, cfg.Monitoring.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	mongoStore, err := storage.NewMongoStorage(cfg.Database.MongoURI, cfg.Database.DatabaseName, cfg.Database.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("init mongo storage: %w", err)
	}

	sup := supervisor.New(supervisor.Config{
		CheckInterval:   cfg.Supervisor.CheckInterval,
		RestartDelay:    cfg.Supervisor.RestartDelay,
		RestartCooldown: cfg.Supervisor.RestartCooldown,
		WorkerBinary:    cfg.Supervisor.WorkerBinaryPath,
		MaxSubreddits:   cfg.Supervisor.MaxSubredditsPerInstance,
		LogDir:          workerLogDir(),
	}, mongoStore)

	cipher, err := security.LoadOrCreate(cfg.Security.CredentialKeyPath)
	if err != nil {
		return nil, fmt.Errorf("init credential cipher: %w", err)
	}

	var (
		embedder          enrichment.EmbeddingProvider
		chat              enrichment.ChatProvider
		enrichmentEnabled bool
	)
	if cfg.Providers.GeminiAPIKey != "" {
		embedder = enrichment.NewGeminiEmbeddingProvider(cfg.Providers.GeminiAPIKey, cfg.Providers.EmbeddingModel)
		chat = enrichment.NewGeminiChatProvider(cfg.Providers.GeminiAPIKey, cfg.Providers.ChatModel)
		enrichmentEnabled = true
	} else {
		log.Warn("GEMINI_API_KEY not set, enrichment worker disabled")
	}

	var enrichmentScheduler *enrichment.Scheduler
	if enrichmentEnabled {
		pipeline := enrichment.NewPipeline(mongoStore, embedder, chat)
		enrichmentScheduler, err = enrichment.NewScheduler(pipeline, mongoStore, everyExpr(cfg.Embedding.CheckInterval), cfg.Embedding.BatchSize, cfg.Embedding.MaxRetries)
		if err != nil {
			return nil, fmt.Errorf("init enrichment scheduler: %w", err)
		}
	}

	suggestionsWorker := suggestions.NewWorker(mongoStore)
	suggestionsScheduler, err := suggestions.NewScheduler(suggestionsWorker, everyExpr(cfg.Suggestions.CheckInterval))
	if err != nil {
		return nil, fmt.Errorf("init suggestions scheduler: %w", err)
	}

	governor := ratelimit.NewGovernor()
	countingTransport, err := ratelimit.NewCountingTransport(cfg.RateGovernor.ProxyURLs, governor, cfg.RateGovernor.CostPerRequest, cfg.RateGovernor.RingBufferSize)
	if err != nil {
		return nil, fmt.Errorf("init counting transport: %w", err)
	}
	discoveryClient, err := redditclient.NewClient(countingTransport, cfg.RateGovernor.UserAgent, "", cfg.RateGovernor.RequestTimeout, cfg.Scraper.MaxRetries, cfg.RateGovernor.RequestsPerSecond)
	if err != nil {
		return nil, fmt.Errorf("init discovery reddit client: %w", err)
	}

	// Interface params are only assigned when the concrete pointer is
	// non-nil: assigning a nil *enrichment.Scheduler directly would wrap a
	// nil pointer in a non-nil EnrichmentController interface value, and
	// s.enrichment == nil in the handler would then never be true.
	var queryEmbedder controlplane.QueryEmbedder
	var enrichmentCtrl controlplane.EnrichmentController
	if enrichmentEnabled {
		queryEmbedder = embedder
		enrichmentCtrl = enrichmentScheduler
	}

	server := controlplane.NewServer(sup, mongoStore, cipher, queryEmbedder, discoveryClient, enrichmentCtrl, enrichmentEnabled)
	router := controlplane.NewRouter(server)

	return &App{
		Config:      cfg,
		Storage:     mongoStore,
		Supervisor:  sup,
		Enrichment:  enrichmentScheduler,
		Suggestions: suggestionsScheduler,
		httpServer:  &http.Server{Addr: ":" + cfg.ServerPort, Handler: router},
		tracingStop: tracingStop,
		log:         log,
	}, nil
}

// Start reconciles in-flight Scraper Instances, launches every background
// loop, and blocks serving the control plane until the process is asked to
// shut down.
func (a *App) Start() error {
	ctx := context.Background()

	if err := a.Storage.Ping(ctx); err != nil {
		return fmt.Errorf("ping storage: %w", err)
	}

	if err := a.Supervisor.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile scraper instances: %w", err)
	}

	liveCtx, cancel := context.WithCancel(ctx)
	a.cancelLiveness = cancel
	go a.Supervisor.RunLiveness(liveCtx)

	if a.Enrichment != nil {
		a.Enrichment.Start()
	}
	a.Suggestions.Start()

	a.log.Info("starting control plane", "port", a.Config.ServerPort)
	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("control plane server: %w", err)
	}
	return nil
}

// Shutdown stops every background loop and the HTTP server, in reverse
// dependency order, within the configured grace window.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Supervisor.ShutdownGrace)
	defer cancel()

	a.log.Info("shutting down control plane")
	_ = a.httpServer.Shutdown(ctx)

	if a.cancelLiveness != nil {
		a.cancelLiveness()
	}
	if a.Enrichment != nil {
		_ = a.Enrichment.Stop(ctx)
	}
	if a.Suggestions != nil {
		_ = a.Suggestions.Stop(ctx)
	}
	if a.tracingStop != nil {
		_ = a.tracingStop(ctx)
	}
	if a.Storage != nil {
		_ = a.Storage.Close()
	}
}

func envOrDefault() string {
	if v := os.Getenv("ENV"); v != "" {
		return v
	}
	return "development"
}

// workerLogDir is the directory the Supervisor captures spawned worker
// stdout/stderr into; empty disables capture (supervisor.Config.LogDir).
func workerLogDir() string {
	return os.Getenv("WORKER_LOG_DIR")
}

// everyExpr builds a robfig/cron "@every" expression from a Duration.
func everyExpr(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}
