// Package storagemock provides a func-field StorageInterface double for
// tests, grounded on Reddit_Ingestion's testing/mocks client_mock.go style.
package storagemock

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/storage"
)

var _ storage.StorageInterface = (*Store)(nil)

// Store is a StorageInterface test double. Only the Func fields a test sets
// are invoked; calling an unset Func panics with a nil pointer, which is
// intentional — it flags an untested call path. Ping and Close are the
// exceptions: they return nil when their Func is unset.
type Store struct {
	GetScraperInstanceFunc    func(ctx context.Context, subredditPrimary string, scraperType models.ScraperType) (*models.ScraperInstance, error)
	GetAllScraperInstancesFunc func(ctx context.Context) ([]models.ScraperInstance, error)
	UpsertScraperInstanceFunc func(ctx context.Context, instance *models.ScraperInstance) error
	UpdateScraperStatusFunc   func(ctx context.Context, id primitive.ObjectID, status models.ScraperStatus, lastError string) error
	UpdateScraperHandleFunc   func(ctx context.Context, id primitive.ObjectID, handle string) error
	IncrementRestartCountFunc func(ctx context.Context, id primitive.ObjectID) error
	SetAutoRestartFunc        func(ctx context.Context, id primitive.ObjectID, autoRestart bool) error
	UpdateScraperMetricsFunc  func(ctx context.Context, id primitive.ObjectID, metrics models.ScraperMetrics) error
	DeleteScraperInstanceFunc func(ctx context.Context, id primitive.ObjectID) error
	GetActiveTargetScraperFunc func(ctx context.Context) (*models.ScraperInstance, error)
	AppendSubredditsFunc      func(ctx context.Context, id primitive.ObjectID, names []string) error

	UpsertPostsFunc          func(ctx context.Context, posts []models.Post) (int64, int64, error)
	GetPostsCountFunc        func(ctx context.Context, subreddit string) (int64, error)
	GetCommentCandidatesFunc func(ctx context.Context, subreddit string, batchSize int) ([]models.Post, error)
	GetStoredCommentIDsFunc  func(ctx context.Context, postID string) (map[string]struct{}, error)
	MarkPostsCommentStateFunc func(ctx context.Context, postIDs []string, initial bool) error
	GetPostCommentCountFunc  func(ctx context.Context, postID string) (int64, error)

	UpsertCommentsFunc func(ctx context.Context, comments []models.Comment) (int64, int64, error)

	GetSubredditMetadataFunc    func(ctx context.Context, subredditName string) (*models.SubredditMetadata, error)
	UpsertSubredditMetadataFunc func(ctx context.Context, metadata *models.SubredditMetadata) (bool, error)
	GetPendingEmbeddingsFunc    func(ctx context.Context, batchSize, maxRetries int) ([]models.SubredditMetadata, error)
	SetCombinedEmbeddingFunc    func(ctx context.Context, subredditName string, embedding models.Embedding) error
	SetPersonaEmbeddingFunc     func(ctx context.Context, subredditName string, embedding models.Embedding) error
	SetLLMEnrichmentFunc        func(ctx context.Context, subredditName string, enrichment models.LLMEnrichment) error
	MarkEmbeddingCompleteFunc   func(ctx context.Context, subredditName string) error
	MarkEmbeddingFailedFunc     func(ctx context.Context, subredditName string, errMsg string) error
	SearchSubredditsByEmbeddingFunc func(ctx context.Context, vector []float32, limit int) ([]models.SubredditMetadata, error)
	CountEmbeddingStatusesFunc  func(ctx context.Context) (map[models.EmbeddingStatus]int64, error)

	RecordErrorFunc    func(ctx context.Context, errRecord *models.ScrapeError) error
	AppendAPIUsageFunc func(ctx context.Context, usage *models.APIUsageRecord) error

	UpsertAccountFunc    func(ctx context.Context, account *models.Account) error
	GetAccountFunc       func(ctx context.Context, name string) (*models.Account, error)
	GetAllAccountsFunc   func(ctx context.Context) ([]models.Account, error)
	DeleteAccountFunc    func(ctx context.Context, name string) error

	GetPendingSuggestionsFunc func(ctx context.Context) ([]models.SuggestionDocument, error)
	MarkSuggestionsSyncedFunc func(ctx context.Context, ids []primitive.ObjectID, targetPrimary string) error

	PingFunc  func(ctx context.Context) error
	CloseFunc func() error
}

func (s *Store) GetScraperInstance(ctx context.Context, subredditPrimary string, scraperType models.ScraperType) (*models.ScraperInstance, error) {
	return s.GetScraperInstanceFunc(ctx, subredditPrimary, scraperType)
}
func (s *Store) GetAllScraperInstances(ctx context.Context) ([]models.ScraperInstance, error) {
	return s.GetAllScraperInstancesFunc(ctx)
}
func (s *Store) UpsertScraperInstance(ctx context.Context, instance *models.ScraperInstance) error {
	return s.UpsertScraperInstanceFunc(ctx, instance)
}
func (s *Store) UpdateScraperStatus(ctx context.Context, id primitive.ObjectID, status models.ScraperStatus, lastError string) error {
	return s.UpdateScraperStatusFunc(ctx, id, status, lastError)
}
func (s *Store) UpdateScraperHandle(ctx context.Context, id primitive.ObjectID, handle string) error {
	return s.UpdateScraperHandleFunc(ctx, id, handle)
}
func (s *Store) IncrementRestartCount(ctx context.Context, id primitive.ObjectID) error {
	return s.IncrementRestartCountFunc(ctx, id)
}
func (s *Store) SetAutoRestart(ctx context.Context, id primitive.ObjectID, autoRestart bool) error {
	return s.SetAutoRestartFunc(ctx, id, autoRestart)
}
func (s *Store) UpdateScraperMetrics(ctx context.Context, id primitive.ObjectID, metrics models.ScraperMetrics) error {
	return s.UpdateScraperMetricsFunc(ctx, id, metrics)
}
func (s *Store) DeleteScraperInstance(ctx context.Context, id primitive.ObjectID) error {
	return s.DeleteScraperInstanceFunc(ctx, id)
}
func (s *Store) GetActiveTargetScraper(ctx context.Context) (*models.ScraperInstance, error) {
	return s.GetActiveTargetScraperFunc(ctx)
}
func (s *Store) AppendSubreddits(ctx context.Context, id primitive.ObjectID, names []string) error {
	return s.AppendSubredditsFunc(ctx, id, names)
}

func (s *Store) UpsertPosts(ctx context.Context, posts []models.Post) (int64, int64, error) {
	return s.UpsertPostsFunc(ctx, posts)
}
func (s *Store) GetPostsCount(ctx context.Context, subreddit string) (int64, error) {
	return s.GetPostsCountFunc(ctx, subreddit)
}
func (s *Store) GetCommentCandidates(ctx context.Context, subreddit string, batchSize int) ([]models.Post, error) {
	return s.GetCommentCandidatesFunc(ctx, subreddit, batchSize)
}
func (s *Store) GetStoredCommentIDs(ctx context.Context, postID string) (map[string]struct{}, error) {
	return s.GetStoredCommentIDsFunc(ctx, postID)
}
func (s *Store) MarkPostsCommentState(ctx context.Context, postIDs []string, initial bool) error {
	return s.MarkPostsCommentStateFunc(ctx, postIDs, initial)
}
func (s *Store) GetPostCommentCount(ctx context.Context, postID string) (int64, error) {
	return s.GetPostCommentCountFunc(ctx, postID)
}

func (s *Store) UpsertComments(ctx context.Context, comments []models.Comment) (int64, int64, error) {
	return s.UpsertCommentsFunc(ctx, comments)
}

func (s *Store) GetSubredditMetadata(ctx context.Context, subredditName string) (*models.SubredditMetadata, error) {
	return s.GetSubredditMetadataFunc(ctx, subredditName)
}
func (s *Store) UpsertSubredditMetadata(ctx context.Context, metadata *models.SubredditMetadata) (bool, error) {
	return s.UpsertSubredditMetadataFunc(ctx, metadata)
}
func (s *Store) GetPendingEmbeddings(ctx context.Context, batchSize, maxRetries int) ([]models.SubredditMetadata, error) {
	return s.GetPendingEmbeddingsFunc(ctx, batchSize, maxRetries)
}
func (s *Store) SetCombinedEmbedding(ctx context.Context, subredditName string, embedding models.Embedding) error {
	return s.SetCombinedEmbeddingFunc(ctx, subredditName, embedding)
}
func (s *Store) SetPersonaEmbedding(ctx context.Context, subredditName string, embedding models.Embedding) error {
	return s.SetPersonaEmbeddingFunc(ctx, subredditName, embedding)
}
func (s *Store) SetLLMEnrichment(ctx context.Context, subredditName string, enrichment models.LLMEnrichment) error {
	return s.SetLLMEnrichmentFunc(ctx, subredditName, enrichment)
}
func (s *Store) MarkEmbeddingComplete(ctx context.Context, subredditName string) error {
	return s.MarkEmbeddingCompleteFunc(ctx, subredditName)
}
func (s *Store) MarkEmbeddingFailed(ctx context.Context, subredditName string, errMsg string) error {
	return s.MarkEmbeddingFailedFunc(ctx, subredditName, errMsg)
}
func (s *Store) SearchSubredditsByEmbedding(ctx context.Context, vector []float32, limit int) ([]models.SubredditMetadata, error) {
	return s.SearchSubredditsByEmbeddingFunc(ctx, vector, limit)
}
func (s *Store) CountEmbeddingStatuses(ctx context.Context) (map[models.EmbeddingStatus]int64, error) {
	return s.CountEmbeddingStatusesFunc(ctx)
}

func (s *Store) RecordError(ctx context.Context, errRecord *models.ScrapeError) error {
	return s.RecordErrorFunc(ctx, errRecord)
}
func (s *Store) AppendAPIUsage(ctx context.Context, usage *models.APIUsageRecord) error {
	return s.AppendAPIUsageFunc(ctx, usage)
}

func (s *Store) UpsertAccount(ctx context.Context, account *models.Account) error {
	return s.UpsertAccountFunc(ctx, account)
}
func (s *Store) GetAccount(ctx context.Context, name string) (*models.Account, error) {
	return s.GetAccountFunc(ctx, name)
}
func (s *Store) GetAllAccounts(ctx context.Context) ([]models.Account, error) {
	return s.GetAllAccountsFunc(ctx)
}
func (s *Store) DeleteAccount(ctx context.Context, name string) error {
	return s.DeleteAccountFunc(ctx, name)
}

func (s *Store) GetPendingSuggestions(ctx context.Context) ([]models.SuggestionDocument, error) {
	return s.GetPendingSuggestionsFunc(ctx)
}
func (s *Store) MarkSuggestionsSynced(ctx context.Context, ids []primitive.ObjectID, targetPrimary string) error {
	return s.MarkSuggestionsSyncedFunc(ctx, ids, targetPrimary)
}

func (s *Store) Ping(ctx context.Context) error {
	if s.PingFunc == nil {
		return nil
	}
	return s.PingFunc(ctx)
}
func (s *Store) Close() error {
	if s.CloseFunc == nil {
		return nil
	}
	return s.CloseFunc()
}
