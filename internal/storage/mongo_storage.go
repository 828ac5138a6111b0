// internal/storage/mongo_storage.go
package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/reddit-fleet/controller/internal/models"
)

const (
	ScrapersCollection           = "scrapers"
	PostsCollection              = "posts"
	CommentsCollection           = "comments"
	SubredditMetadataCollection  = "subreddit_metadata"
	ScrapeErrorsCollection       = "scrape_errors"
	APIUsageCollection           = "api_usage"
	AccountsCollection           = "accounts"
	SuggestionsCollection        = "subreddit_suggestions"

	// PersonaVectorIndex names the Atlas Search vector index over
	// subreddit_metadata.embeddings.persona_embedding.vector, provisioned
	// out of band (index creation is the out-of-scope vector-index
	// provisioning utility named in spec.md §1).
	PersonaVectorIndex = "persona_embedding_vector_index"
)

var _ StorageInterface = (*MongoStorage)(nil)

type MongoStorage struct {
	client   *mongo.Client
	database *mongo.Database
}

func NewMongoStorage(mongoURI, databaseName string, connectTimeout time.Duration) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(databaseName)

	s := &MongoStorage{
		client:   client,
		database: database,
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return s, nil
}

func (s *MongoStorage) createIndexes(ctx context.Context) error {
	scrapersIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "subreddit_primary", Value: 1}, {Key: "scraper_type", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "last_updated", Value: -1}}},
	}
	if _, err := s.database.Collection(ScrapersCollection).Indexes().CreateMany(ctx, scrapersIndexes); err != nil {
		return err
	}

	postsIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "post_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "created_utc", Value: -1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "score", Value: -1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "num_comments", Value: -1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "scraped_at", Value: -1}}},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "sort_method", Value: 1}}},
		{Keys: bson.D{{Key: "initial_comments_scraped", Value: 1}}},
		{Keys: bson.D{{Key: "last_comment_fetch_time", Value: 1}}},
	}
	if _, err := s.database.Collection(PostsCollection).Indexes().CreateMany(ctx, postsIndexes); err != nil {
		return err
	}

	commentsIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "comment_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{Keys: bson.D{{Key: "post_id", Value: 1}, {Key: "created_utc", Value: -1}}},
		{Keys: bson.D{{Key: "post_id", Value: 1}, {Key: "score", Value: -1}}},
		{Keys: bson.D{{Key: "post_id", Value: 1}, {Key: "depth", Value: 1}}},
	}
	if _, err := s.database.Collection(CommentsCollection).Indexes().CreateMany(ctx, commentsIndexes); err != nil {
		return err
	}

	metadataIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "subreddit_name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "embedding_status", Value: 1}, {Key: "embedding_requested_at", Value: 1}}},
	}
	if _, err := s.database.Collection(SubredditMetadataCollection).Indexes().CreateMany(ctx, metadataIndexes); err != nil {
		return err
	}

	errorIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "resolved", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	}
	if _, err := s.database.Collection(ScrapeErrorsCollection).Indexes().CreateMany(ctx, errorIndexes); err != nil {
		return err
	}

	usageIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(30 * 24 * 60 * 60),
		},
		{Keys: bson.D{{Key: "subreddit", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := s.database.Collection(APIUsageCollection).Indexes().CreateMany(ctx, usageIndexes); err != nil {
		return err
	}

	accountIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := s.database.Collection(AccountsCollection).Indexes().CreateMany(ctx, accountIndexes); err != nil {
		return err
	}

	suggestionIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "synced_at", Value: 1}}},
	}
	if _, err := s.database.Collection(SuggestionsCollection).Indexes().CreateMany(ctx, suggestionIndexes); err != nil {
		return err
	}

	return nil
}

// Scraper instances

func (s *MongoStorage) GetScraperInstance(ctx context.Context, subredditPrimary string, scraperType models.ScraperType) (*models.ScraperInstance, error) {
	collection := s.database.Collection(ScrapersCollection)
	filter := bson.M{"subreddit_primary": subredditPrimary, "scraper_type": scraperType}

	var instance models.ScraperInstance
	err := collection.FindOne(ctx, filter).Decode(&instance)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &instance, nil
}

func (s *MongoStorage) GetAllScraperInstances(ctx context.Context) ([]models.ScraperInstance, error) {
	collection := s.database.Collection(ScrapersCollection)
	cursor, err := collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var instances []models.ScraperInstance
	if err := cursor.All(ctx, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

func (s *MongoStorage) UpsertScraperInstance(ctx context.Context, instance *models.ScraperInstance) error {
	collection := s.database.Collection(ScrapersCollection)
	filter := bson.M{"subreddit_primary": instance.SubredditPrimary, "scraper_type": instance.ScraperType}

	now := time.Now().UTC()
	instance.LastUpdated = now
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	update := bson.M{
		"$set": bson.M{
			"subreddit_primary": instance.SubredditPrimary,
			"scraper_type":      instance.ScraperType,
			"subreddits":        instance.Subreddits,
			"posts_limit":       instance.PostsLimit,
			"interval_seconds":  instance.Interval,
			"comment_batch":     instance.CommentBatch,
			"sorting_methods":   instance.SortingMethods,
			"max_comment_depth": instance.MaxCommentDepth,
			"credential_handle": instance.CredentialHandle,
			"auto_restart":      instance.AutoRestart,
			"status":            instance.Status,
			"last_updated":      now,
		},
		"$setOnInsert": bson.M{
			"created_at":    instance.CreatedAt,
			"restart_count": 0,
			"metrics":       models.ScraperMetrics{},
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := collection.UpdateOne(ctx, filter, update, opts)
	return err
}

func (s *MongoStorage) UpdateScraperStatus(ctx context.Context, id primitive.ObjectID, status models.ScraperStatus, lastError string) error {
	collection := s.database.Collection(ScrapersCollection)
	update := bson.M{"$set": bson.M{
		"status":       status,
		"last_error":   lastError,
		"last_updated": time.Now().UTC(),
	}}
	_, err := collection.UpdateByID(ctx, id, update)
	return err
}

func (s *MongoStorage) UpdateScraperHandle(ctx context.Context, id primitive.ObjectID, handle string) error {
	collection := s.database.Collection(ScrapersCollection)
	update := bson.M{"$set": bson.M{
		"container_handle": handle,
		"last_updated":     time.Now().UTC(),
	}}
	_, err := collection.UpdateByID(ctx, id, update)
	return err
}

func (s *MongoStorage) IncrementRestartCount(ctx context.Context, id primitive.ObjectID) error {
	collection := s.database.Collection(ScrapersCollection)
	update := bson.M{
		"$inc": bson.M{"restart_count": 1},
		"$set": bson.M{"last_updated": time.Now().UTC()},
	}
	_, err := collection.UpdateByID(ctx, id, update)
	return err
}

func (s *MongoStorage) SetAutoRestart(ctx context.Context, id primitive.ObjectID, autoRestart bool) error {
	collection := s.database.Collection(ScrapersCollection)
	update := bson.M{"$set": bson.M{
		"auto_restart": autoRestart,
		"last_updated": time.Now().UTC(),
	}}
	_, err := collection.UpdateByID(ctx, id, update)
	return err
}

func (s *MongoStorage) UpdateScraperMetrics(ctx context.Context, id primitive.ObjectID, metrics models.ScraperMetrics) error {
	collection := s.database.Collection(ScrapersCollection)
	update := bson.M{"$set": bson.M{
		"metrics":      metrics,
		"last_updated": time.Now().UTC(),
	}}
	_, err := collection.UpdateByID(ctx, id, update)
	return err
}

func (s *MongoStorage) DeleteScraperInstance(ctx context.Context, id primitive.ObjectID) error {
	collection := s.database.Collection(ScrapersCollection)
	_, err := collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStorage) GetActiveTargetScraper(ctx context.Context) (*models.ScraperInstance, error) {
	collection := s.database.Collection(ScrapersCollection)
	filter := bson.M{"scraper_type": models.ScraperTypePosts, "status": models.StatusRunning}

	var instance models.ScraperInstance
	err := collection.FindOne(ctx, filter).Decode(&instance)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &instance, nil
}

func (s *MongoStorage) AppendSubreddits(ctx context.Context, id primitive.ObjectID, names []string) error {
	if len(names) == 0 {
		return nil
	}
	collection := s.database.Collection(ScrapersCollection)
	update := bson.M{
		"$addToSet": bson.M{
			"subreddits":     bson.M{"$each": names},
			"pending_scrape": bson.M{"$each": names},
		},
		"$set": bson.M{"last_updated": time.Now().UTC()},
	}
	_, err := collection.UpdateByID(ctx, id, update)
	return err
}

// Ping/Close

func (s *MongoStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStorage) Close() error {
	return s.client.Disconnect(context.Background())
}
