// Package controlplane implements the fleet controller's HTTP/JSON
// management surface (spec §6), a thin net/http + gorilla/mux router
// grounded on subculture-collective's internal/api/routes.go and
// internal/server/server.go. The HTML dashboard, vector-search query
// front-end, discovery CLI, and Reddit OAuth test harness it drives
// remain external collaborators — this package models their contracts
// (dto.go) without building any UI.
package controlplane

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reddit-fleet/controller/internal/logger"
	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/storage"
	"github.com/reddit-fleet/controller/internal/supervisor"
)

// ScraperOrchestrator is the subset of *supervisor.Supervisor the control
// plane depends on, narrowed to an interface so tests substitute a
// func-field double, grounded on scraper.RedditClient's own narrowing.
type ScraperOrchestrator interface {
	Spawn(ctx context.Context, instance *models.ScraperInstance) error
	Stop(ctx context.Context, key supervisor.InstanceKey) error
	Restart(ctx context.Context, key supervisor.InstanceKey) error
	Remove(ctx context.Context, key supervisor.InstanceKey) error
	SetAutoRestart(ctx context.Context, key supervisor.InstanceKey, autoRestart bool) error
	LogPath(key supervisor.InstanceKey) string
}

// QueryEmbedder embeds a free-text search query for /search/subreddits,
// the subset of enrichment.EmbeddingProvider this package needs.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, string, error)
}

// SubredditDiscoverer is the subset of *redditclient.Client the
// /discover/subreddits operation needs.
type SubredditDiscoverer interface {
	GetSubredditSearchURL(query string, limit int) string
	FetchJSON(ctx context.Context, rawURL string) (json.RawMessage, error)
}

// EnrichmentController is the subset of *enrichment.Scheduler the
// /embeddings/worker/process operation needs.
type EnrichmentController interface {
	RunNow(ctx context.Context) error
}

// Server holds the dependencies every handler closes over.
type Server struct {
	orchestrator ScraperOrchestrator
	store        storage.StorageInterface
	cipher       CredentialCipher
	embedder     QueryEmbedder
	discoverer   SubredditDiscoverer
	enrichment   EnrichmentController
	enrichmentOn bool
	log          *slog.Logger
}

// CredentialCipher is the subset of *security.CredentialCipher the
// account handlers depend on.
type CredentialCipher interface {
	Encrypt(plaintext string) ([]byte, error)
	Decrypt(sealed []byte) (string, error)
}

// NewServer wires a Server. embedder/discoverer/enrichmentCtrl may be nil
// (a provider-misconfiguration degrade per spec §7); the corresponding
// handlers then respond 503 rather than panicking.
func NewServer(
	orchestrator ScraperOrchestrator,
	store storage.StorageInterface,
	cipher CredentialCipher,
	embedder QueryEmbedder,
	discoverer SubredditDiscoverer,
	enrichmentCtrl EnrichmentController,
	enrichmentOn bool,
) *Server {
	return &Server{
		orchestrator: orchestrator,
		store:        store,
		cipher:       cipher,
		embedder:     embedder,
		discoverer:   discoverer,
		enrichment:   enrichmentCtrl,
		enrichmentOn: enrichmentOn,
		log:          logger.WithComponent("controlplane"),
	}
}

// NewRouter builds the gorilla/mux router for every operation spec §6
// names, grounded on cluster-map's api.NewRouter.
func NewRouter(s *Server) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/scrapers/start-flexible", s.handleStartFlexible).Methods("POST")
	r.HandleFunc("/scrapers/restart-all-failed", s.handleRestartAllFailed).Methods("POST")
	r.HandleFunc("/scrapers/status-summary", s.handleStatusSummary).Methods("GET")
	r.HandleFunc("/scrapers", s.handleListScrapers).Methods("GET")
	r.HandleFunc("/scrapers/{s}/stop", s.handleStop).Methods("POST")
	r.HandleFunc("/scrapers/{s}/restart", s.handleRestart).Methods("POST")
	r.HandleFunc("/scrapers/{s}/auto-restart", s.handleAutoRestart).Methods("PUT")
	r.HandleFunc("/scrapers/{s}/stats", s.handleScraperStats).Methods("GET")
	r.HandleFunc("/scrapers/{s}/logs", s.handleScraperLogs).Methods("GET")
	r.HandleFunc("/scrapers/{s}/status", s.handleScraperStatus).Methods("GET")
	r.HandleFunc("/scrapers/{s}", s.handleDeleteScraper).Methods("DELETE")

	r.HandleFunc("/accounts/stats", s.handleAccountStats).Methods("GET")
	r.HandleFunc("/accounts", s.handleCreateAccount).Methods("POST")
	r.HandleFunc("/accounts", s.handleListAccounts).Methods("GET")
	r.HandleFunc("/accounts/{n}", s.handleGetAccount).Methods("GET")
	r.HandleFunc("/accounts/{n}", s.handleDeleteAccount).Methods("DELETE")

	r.HandleFunc("/search/subreddits", s.handleSearchSubreddits).Methods("POST")
	r.HandleFunc("/discover/subreddits", s.handleDiscoverSubreddits).Methods("POST")

	r.HandleFunc("/embeddings/stats", s.handleEmbeddingsStats).Methods("GET")
	r.HandleFunc("/embeddings/worker/status", s.handleEmbeddingsWorkerStatus).Methods("GET")
	r.HandleFunc("/embeddings/worker/process", s.handleEmbeddingsWorkerProcess).Methods("POST")

	return r
}
