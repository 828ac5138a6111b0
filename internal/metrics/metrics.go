// Package metrics registers the fleet controller's Prometheus collectors,
// grounded on subculture-collective's internal/metrics (promauto
// Counter/Histogram/GaugeVec registry exposed via promhttp.Handler).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScraperCyclesTotal counts completed Scraper Worker cycles, per
	// subreddit and scraper_type (spec §4.3 cycle loop).
	ScraperCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_scraper_cycles_total",
			Help: "Total scraper worker cycles completed",
		},
		[]string{"subreddit_primary", "scraper_type"},
	)

	ScraperCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_scraper_cycle_duration_seconds",
			Help:    "Duration of a scraper worker cycle",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subreddit_primary", "scraper_type"},
	)

	PostsCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_posts_collected_total",
			Help: "Total posts upserted by the scraper worker",
		},
		[]string{"subreddit_primary"},
	)

	CommentsCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_comments_collected_total",
			Help: "Total comments upserted by the scraper worker",
		},
		[]string{"subreddit_primary"},
	)

	ScrapeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_scrape_errors_total",
			Help: "Total scrape_errors rows appended, by error_type",
		},
		[]string{"error_type"},
	)

	// RateGovernorRemaining tracks the last-observed Reddit rate-limit
	// remaining quota per account (spec §4.1 Rate Governor).
	RateGovernorRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_rate_governor_remaining",
			Help: "Last observed Reddit API rate limit remaining",
		},
		[]string{"account_name"},
	)

	// ScraperInstancesByStatus mirrors the status-summary endpoint as a
	// gauge so it can be graphed over time.
	ScraperInstancesByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_scraper_instances",
			Help: "Number of scraper instances by status",
		},
		[]string{"status"},
	)

	SupervisorRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_supervisor_restarts_total",
			Help: "Total worker respawns initiated by the supervisor",
		},
		[]string{"subreddit_primary", "scraper_type", "reason"},
	)

	EmbeddingPipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_embedding_pipeline_runs_total",
			Help: "Total enrichment pipeline runs, by outcome",
		},
		[]string{"outcome"},
	)

	SuggestionsSyncedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_suggestions_synced_total",
			Help: "Total distinct suggested subreddit names synced into a scraper instance",
		},
	)
)
