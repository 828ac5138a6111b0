// internal/storage/interface.go
package storage

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/reddit-fleet/controller/internal/models"
)

// StorageInterface is the Persistence Layer contract (spec §4.2):
// idempotent bulk upserts, uniqueness, and the indices hot-path queries need.
type StorageInterface interface {
	// Scraper instances (control collection)
	GetScraperInstance(ctx context.Context, subredditPrimary string, scraperType models.ScraperType) (*models.ScraperInstance, error)
	GetAllScraperInstances(ctx context.Context) ([]models.ScraperInstance, error)
	UpsertScraperInstance(ctx context.Context, instance *models.ScraperInstance) error
	UpdateScraperStatus(ctx context.Context, id primitive.ObjectID, status models.ScraperStatus, lastError string) error
	UpdateScraperHandle(ctx context.Context, id primitive.ObjectID, handle string) error
	IncrementRestartCount(ctx context.Context, id primitive.ObjectID) error
	SetAutoRestart(ctx context.Context, id primitive.ObjectID, autoRestart bool) error
	UpdateScraperMetrics(ctx context.Context, id primitive.ObjectID, metrics models.ScraperMetrics) error
	DeleteScraperInstance(ctx context.Context, id primitive.ObjectID) error
	GetActiveTargetScraper(ctx context.Context) (*models.ScraperInstance, error)
	AppendSubreddits(ctx context.Context, id primitive.ObjectID, names []string) error

	// Posts
	UpsertPosts(ctx context.Context, posts []models.Post) (inserted, modified int64, err error)
	GetPostsCount(ctx context.Context, subreddit string) (int64, error)
	GetCommentCandidates(ctx context.Context, subreddit string, batchSize int) ([]models.Post, error)
	GetStoredCommentIDs(ctx context.Context, postID string) (map[string]struct{}, error)
	MarkPostsCommentState(ctx context.Context, postIDs []string, initial bool) error
	GetPostCommentCount(ctx context.Context, postID string) (int64, error)

	// Comments
	UpsertComments(ctx context.Context, comments []models.Comment) (inserted, modified int64, err error)

	// Subreddit metadata / enrichment
	GetSubredditMetadata(ctx context.Context, subredditName string) (*models.SubredditMetadata, error)
	UpsertSubredditMetadata(ctx context.Context, metadata *models.SubredditMetadata) (needsEmbedding bool, err error)
	GetPendingEmbeddings(ctx context.Context, batchSize, maxRetries int) ([]models.SubredditMetadata, error)
	SetCombinedEmbedding(ctx context.Context, subredditName string, embedding models.Embedding) error
	SetPersonaEmbedding(ctx context.Context, subredditName string, embedding models.Embedding) error
	SetLLMEnrichment(ctx context.Context, subredditName string, enrichment models.LLMEnrichment) error
	MarkEmbeddingComplete(ctx context.Context, subredditName string) error
	MarkEmbeddingFailed(ctx context.Context, subredditName string, errMsg string) error
	SearchSubredditsByEmbedding(ctx context.Context, vector []float32, limit int) ([]models.SubredditMetadata, error)
	CountEmbeddingStatuses(ctx context.Context) (map[models.EmbeddingStatus]int64, error)

	// Errors & usage (append-only)
	RecordError(ctx context.Context, errRecord *models.ScrapeError) error
	AppendAPIUsage(ctx context.Context, usage *models.APIUsageRecord) error

	// Accounts
	UpsertAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, name string) (*models.Account, error)
	GetAllAccounts(ctx context.Context) ([]models.Account, error)
	DeleteAccount(ctx context.Context, name string) error

	// Suggestions
	GetPendingSuggestions(ctx context.Context) ([]models.SuggestionDocument, error)
	MarkSuggestionsSynced(ctx context.Context, ids []primitive.ObjectID, targetPrimary string) error

	// Health check and cleanup
	Ping(ctx context.Context) error
	Close() error
}
