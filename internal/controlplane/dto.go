package controlplane

import (
	"fmt"
	"time"

	"github.com/reddit-fleet/controller/internal/models"
)

// StartFlexibleRequest is the body of POST /scrapers/start-flexible (spec
// §6): either a single subreddit or a list, plus run parameters and either
// a saved account reference or inline credentials.
type StartFlexibleRequest struct {
	Subreddit       string   `json:"subreddit,omitempty"`
	Subreddits      []string `json:"subreddits,omitempty"`
	ScraperType     string   `json:"scraper_type"`
	PostsLimit      int      `json:"posts_limit"`
	Interval        int      `json:"interval_seconds"`
	CommentBatch    int      `json:"comment_batch"`
	SortingMethods  []string `json:"sorting_methods"`
	MaxCommentDepth int      `json:"max_comment_depth"`
	AutoRestart     bool     `json:"auto_restart"`

	SavedAccountName string               `json:"saved_account_name,omitempty"`
	Credentials      *InlineCredentials   `json:"credentials,omitempty"`
	SaveAccountAs    string               `json:"save_account_as,omitempty"`
}

// InlineCredentials are Reddit OAuth credentials supplied directly in the
// request body, rather than by reference to a saved Account.
type InlineCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	UserAgent    string `json:"user_agent"`
}

// ScraperView is the control-plane-safe projection of a ScraperInstance:
// credentials appear only as credential_handle, alongside live status and
// the instance's metrics, whose totals are aggregated across all of its
// subreddits. Per-subreddit post/comment totals are not included.
type ScraperView struct {
	Handle           string               `json:"handle"`
	SubredditPrimary string               `json:"subreddit_primary"`
	ScraperType      models.ScraperType   `json:"scraper_type"`
	Subreddits       []string             `json:"subreddits"`
	Status           models.ScraperStatus `json:"status"`
	AutoRestart      bool                 `json:"auto_restart"`
	RestartCount     int                  `json:"restart_count"`
	LastError        string               `json:"last_error,omitempty"`
	ContainerHandle  string               `json:"container_handle,omitempty"`
	CredentialHandle string               `json:"credential_handle"`
	Metrics          models.ScraperMetrics `json:"metrics"`
	LastUpdated      time.Time            `json:"last_updated"`
}

func toScraperView(instance *models.ScraperInstance) ScraperView {
	return ScraperView{
		Handle:           fmt.Sprintf("%s:%s", instance.ScraperType, instance.SubredditPrimary),
		SubredditPrimary: instance.SubredditPrimary,
		ScraperType:      instance.ScraperType,
		Subreddits:       instance.Subreddits,
		Status:           instance.Status,
		AutoRestart:      instance.AutoRestart,
		RestartCount:     instance.RestartCount,
		LastError:        instance.LastError,
		ContainerHandle:  instance.ContainerHandle,
		CredentialHandle: instance.CredentialHandle,
		Metrics:          instance.Metrics,
		LastUpdated:      instance.LastUpdated,
	}
}

// ListScrapersResponse answers GET /scrapers.
type ListScrapersResponse struct {
	Scrapers []ScraperView `json:"scrapers"`
}

// ScraperStatsResponse answers GET /scrapers/{s}/stats. Metrics is the
// worker-owned running total (spec §3: "the Worker is the sole writer of
// metrics.*"); PerSubredditPostCounts is populated only when ?detailed=true
// is set, since it costs one stored-count query per configured subreddit.
type ScraperStatsResponse struct {
	SubredditPrimary       string                  `json:"subreddit_primary"`
	Metrics                models.ScraperMetrics   `json:"metrics"`
	PerSubredditPostCounts map[string]int64        `json:"per_subreddit_post_counts,omitempty"`
}

// StatusSummaryResponse answers GET /scrapers/status-summary.
type StatusSummaryResponse struct {
	Counts map[models.ScraperStatus]int `json:"counts"`
	Total  int                          `json:"total"`
}

// AccountCreateRequest is the body of POST /accounts.
type AccountCreateRequest struct {
	AccountName  string `json:"account_name"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	UserAgent    string `json:"user_agent"`
}

// AccountsStatsResponse answers GET /accounts/stats. It reports the vault
// size only — the Persistence Layer keeps no per-account usage rollup, so
// a true per-account request/cost breakdown is out of scope here (the
// api_usage collection is keyed by subreddit/scraper_type, not account).
type AccountsStatsResponse struct {
	TotalAccounts int `json:"total_accounts"`
}

// SearchSubredditsRequest is the body of POST /search/subreddits — a
// semantic query embedded then vector-searched against subreddit_metadata.
type SearchSubredditsRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchSubredditsResponse carries the nearest-neighbor matches.
type SearchSubredditsResponse struct {
	Results []SubredditSearchHit `json:"results"`
}

type SubredditSearchHit struct {
	SubredditName   string `json:"subreddit_name"`
	Title           string `json:"title"`
	AudienceProfile string `json:"audience_profile,omitempty"`
}

// DiscoverSubredditsResponse answers POST /discover/subreddits — the
// query-param query/limit pair runs against Reddit's subreddit search and
// discovered rows are upserted as bare subreddit_metadata documents.
type DiscoverSubredditsResponse struct {
	Discovered []string `json:"discovered"`
	Upserted   int      `json:"upserted"`
}

// EmbeddingsStatsResponse answers GET /embeddings/stats.
type EmbeddingsStatsResponse struct {
	Pending  int64 `json:"pending"`
	Complete int64 `json:"complete"`
	Failed   int64 `json:"failed"`
}

// EmbeddingsWorkerStatusResponse answers GET /embeddings/worker/status.
type EmbeddingsWorkerStatusResponse struct {
	Enabled bool `json:"enabled"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status          string `json:"status"`
	DatabaseOK      bool   `json:"database_ok"`
	RunningScrapers int    `json:"running_scrapers"`
	TotalScrapers   int    `json:"total_scrapers"`
}

// errorResponse is the structured-detail error body spec.md §7 requires
// for control-plane failures.
type errorResponse struct {
	Detail string `json:"detail"`
}
