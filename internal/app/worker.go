package app

import (
	"context"
	"fmt"
	"time"

	"github.com/reddit-fleet/controller/internal/config"
	"github.com/reddit-fleet/controller/internal/logger"
	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/ratelimit"
	"github.com/reddit-fleet/controller/internal/redditclient"
	"github.com/reddit-fleet/controller/internal/scraper"
	"github.com/reddit-fleet/controller/internal/security"
	"github.com/reddit-fleet/controller/internal/storage"
)

// RunWorker is the entry point for the `scrape-worker --instance=<handle>`
// sub-process the Supervisor spawns (spec §4.3, §5). It loads the one
// Scraper Instance it was handed, builds that instance's own rate-governed
// Reddit client from its Account credential, and runs the four-phase
// cycle until the process is asked to stop.
func RunWorker(ctx context.Context, handle string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("scrape-worker").With("container_handle", handle)

	store, err := storage.NewMongoStorage(cfg.Database.MongoURI, cfg.Database.DatabaseName, cfg.Database.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("init mongo storage: %w", err)
	}
	defer store.Close()

	instance, err := findInstanceByHandle(ctx, store, handle)
	if err != nil {
		return err
	}

	account, err := store.GetAccount(ctx, instance.CredentialHandle)
	if err != nil {
		return fmt.Errorf("get account %q: %w", instance.CredentialHandle, err)
	}
	if account == nil {
		return fmt.Errorf("no such account: %q", instance.CredentialHandle)
	}

	cipher, err := security.LoadOrCreate(cfg.Security.CredentialKeyPath)
	if err != nil {
		return fmt.Errorf("init credential cipher: %w", err)
	}
	clientSecret, err := cipher.Decrypt(account.ClientSecret)
	if err != nil {
		return fmt.Errorf("decrypt client secret: %w", err)
	}
	password, err := cipher.Decrypt(account.Password)
	if err != nil {
		return fmt.Errorf("decrypt password: %w", err)
	}

	governor := ratelimit.NewGovernor()
	governor.SetAccountName(account.AccountName)
	counting, err := ratelimit.NewCountingTransport(cfg.RateGovernor.ProxyURLs, governor, cfg.RateGovernor.CostPerRequest, cfg.RateGovernor.RingBufferSize)
	if err != nil {
		return fmt.Errorf("init counting transport: %w", err)
	}

	userAgent := account.UserAgent
	if userAgent == "" {
		userAgent = cfg.RateGovernor.UserAgent
	}
	oauthTransport := redditclient.NewOAuthTransport(counting, account.ClientID, clientSecret, account.Username, password, userAgent)
	client, err := redditclient.NewClient(oauthTransport, userAgent, "", cfg.RateGovernor.RequestTimeout, cfg.Scraper.MaxRetries, cfg.RateGovernor.RequestsPerSecond)
	if err != nil {
		return fmt.Errorf("init reddit client: %w", err)
	}

	workerCfg := scraper.Config{
		Instance:        instance,
		Sorts:           sortSpecs(instance.SortingMethods),
		PostsLimit:      instance.PostsLimit,
		CommentBatch:    instance.CommentBatch,
		MaxCommentDepth: instance.MaxCommentDepth,
		MetadataMaxAge:  cfg.Scraper.SubredditUpdateInterval,
		MinRateBudget:   cfg.RateGovernor.MinRemaining,
		CycleInterval:   time.Duration(instance.Interval) * time.Second,
		InterSortDelay:  cfg.Scraper.InterSortDelay,
		InterPostDelay:  cfg.Scraper.InterPostDelay,
	}

	worker := scraper.NewWorker(workerCfg, client, store, governor, counting)

	log.Info("scrape worker starting", "subreddit_primary", instance.SubredditPrimary, "scraper_type", instance.ScraperType)
	worker.Run(ctx)
	log.Info("scrape worker stopped")
	return nil
}

// findInstanceByHandle linear-scans every Scraper Instance looking for a
// ContainerHandle match. The handle embeds the scraper type and subreddit
// primary (e.g. "scraper-comments-askreddit-<uuid>"), but subreddit_primary
// itself may contain hyphens, which makes splitting the handle back into
// its parts ambiguous — an exact-match scan sidesteps that instead.
func findInstanceByHandle(ctx context.Context, store storage.StorageInterface, handle string) (*models.ScraperInstance, error) {
	instances, err := store.GetAllScraperInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scraper instances: %w", err)
	}
	for i := range instances {
		if instances[i].ContainerHandle == handle {
			return &instances[i], nil
		}
	}
	return nil, fmt.Errorf("no scraper instance with container handle %q", handle)
}

// sortSpecs expands configured sort method names into SortSpec values,
// attaching the spec's default "day" time filter to top/controversial
// (spec §4.3 Phase A; per-sort time filter overrides are not yet a
// persisted Scraper Instance field). harvestPosts widens this to "month"
// on a subreddit's first run regardless of what's set here.
func sortSpecs(methods []string) []scraper.SortSpec {
	specs := make([]scraper.SortSpec, 0, len(methods))
	for _, m := range methods {
		spec := scraper.SortSpec{Method: m}
		if m == "top" || m == "controversial" {
			spec.TimeFilter = "day"
		}
		specs = append(specs, spec)
	}
	return specs
}
