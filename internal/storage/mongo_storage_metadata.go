// internal/storage/mongo_storage_metadata.go
package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/reddit-fleet/controller/internal/models"
)

func (s *MongoStorage) GetSubredditMetadata(ctx context.Context, subredditName string) (*models.SubredditMetadata, error) {
	collection := s.database.Collection(SubredditMetadataCollection)

	var metadata models.SubredditMetadata
	err := collection.FindOne(ctx, bson.M{"subreddit_name": subredditName}).Decode(&metadata)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &metadata, nil
}

// embeddingRelevantFields is the comparison set spec §4.2 names: if none of
// these differ from the stored document, upsert_subreddit_metadata leaves
// embedding_status untouched (avoids embedding-thrash).
func embeddingRelevantFields(m *models.SubredditMetadata) [7]string {
	return [7]string{
		m.Title,
		m.PublicDescription,
		m.Description,
		m.GuidelinesText,
		m.RulesText,
		joinTitles(m.SamplePostsTitles),
		m.AdvertiserCategory,
	}
}

func joinTitles(titles []string) string {
	out := ""
	for _, t := range titles {
		out += t + "\x1f"
	}
	return out
}

// UpsertSubredditMetadata writes the community-descriptor fields and stamps
// embedding_status=pending only when an embedding-relevant field actually
// changed (spec §4.2, testable property 5).
func (s *MongoStorage) UpsertSubredditMetadata(ctx context.Context, metadata *models.SubredditMetadata) (bool, error) {
	collection := s.database.Collection(SubredditMetadataCollection)

	existing, err := s.GetSubredditMetadata(ctx, metadata.SubredditName)
	if err != nil {
		return false, err
	}

	needsEmbedding := existing == nil
	if existing != nil {
		needsEmbedding = embeddingRelevantFields(existing) != embeddingRelevantFields(metadata)
	}

	now := time.Now().UTC()
	setDoc := bson.M{
		"subreddit_name":       metadata.SubredditName,
		"title":                metadata.Title,
		"public_description":   metadata.PublicDescription,
		"description":          metadata.Description,
		"guidelines_text":      metadata.GuidelinesText,
		"rules_text":           metadata.RulesText,
		"sample_posts_titles":  metadata.SamplePostsTitles,
		"advertiser_category":  metadata.AdvertiserCategory,
		"last_updated":         now,
	}
	if needsEmbedding {
		setDoc["embedding_status"] = models.EmbeddingPending
		setDoc["embedding_requested_at"] = now
	}

	update := bson.M{
		"$set": setDoc,
		"$setOnInsert": bson.M{
			"created_at":           now,
			"embedding_retry_count": 0,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(ctx, bson.M{"subreddit_name": metadata.SubredditName}, update, opts)
	return needsEmbedding, err
}

// GetPendingEmbeddings returns up to batchSize documents that are pending, or
// failed with retries remaining, ordered by embedding_requested_at ascending.
func (s *MongoStorage) GetPendingEmbeddings(ctx context.Context, batchSize, maxRetries int) ([]models.SubredditMetadata, error) {
	collection := s.database.Collection(SubredditMetadataCollection)

	filter := bson.M{
		"$or": []bson.M{
			{"embedding_status": models.EmbeddingPending},
			{"embedding_status": models.EmbeddingFailed, "embedding_retry_count": bson.M{"$lt": maxRetries}},
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "embedding_requested_at", Value: 1}}).
		SetLimit(int64(batchSize))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.SubredditMetadata
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *MongoStorage) SetCombinedEmbedding(ctx context.Context, subredditName string, embedding models.Embedding) error {
	collection := s.database.Collection(SubredditMetadataCollection)
	update := bson.M{"$set": bson.M{"embeddings.combined_embedding": embedding}}
	_, err := collection.UpdateOne(ctx, bson.M{"subreddit_name": subredditName}, update)
	return err
}

func (s *MongoStorage) SetPersonaEmbedding(ctx context.Context, subredditName string, embedding models.Embedding) error {
	collection := s.database.Collection(SubredditMetadataCollection)
	update := bson.M{"$set": bson.M{"embeddings.persona_embedding": embedding}}
	_, err := collection.UpdateOne(ctx, bson.M{"subreddit_name": subredditName}, update)
	return err
}

func (s *MongoStorage) SetLLMEnrichment(ctx context.Context, subredditName string, enrichment models.LLMEnrichment) error {
	collection := s.database.Collection(SubredditMetadataCollection)
	update := bson.M{"$set": bson.M{"llm_enrichment": enrichment}}
	_, err := collection.UpdateOne(ctx, bson.M{"subreddit_name": subredditName}, update)
	return err
}

func (s *MongoStorage) MarkEmbeddingComplete(ctx context.Context, subredditName string) error {
	collection := s.database.Collection(SubredditMetadataCollection)
	update := bson.M{
		"$set":   bson.M{"embedding_status": models.EmbeddingComplete},
		"$unset": bson.M{"embedding_error": ""},
	}
	_, err := collection.UpdateOne(ctx, bson.M{"subreddit_name": subredditName}, update)
	return err
}

func (s *MongoStorage) MarkEmbeddingFailed(ctx context.Context, subredditName string, errMsg string) error {
	collection := s.database.Collection(SubredditMetadataCollection)
	update := bson.M{
		"$set": bson.M{
			"embedding_status": models.EmbeddingFailed,
			"embedding_error":  errMsg,
		},
		"$inc": bson.M{"embedding_retry_count": 1},
	}
	_, err := collection.UpdateOne(ctx, bson.M{"subreddit_name": subredditName}, update)
	return err
}

// SearchSubredditsByEmbedding runs an Atlas `$vectorSearch` against the
// persona embedding index, returning the top `limit` nearest subreddits
// to the given query vector (spec §6: "POST /search/subreddits").
func (s *MongoStorage) SearchSubredditsByEmbedding(ctx context.Context, vector []float32, limit int) ([]models.SubredditMetadata, error) {
	collection := s.database.Collection(SubredditMetadataCollection)

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         PersonaVectorIndex,
			"path":          "embeddings.persona_embedding.vector",
			"queryVector":   vector,
			"numCandidates": limit * 10,
			"limit":         limit,
		}}},
	}

	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.SubredditMetadata
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode vector search results: %w", err)
	}
	return docs, nil
}

// CountEmbeddingStatuses tallies subreddit_metadata documents by
// embedding_status, for the control plane's GET /embeddings/stats.
func (s *MongoStorage) CountEmbeddingStatuses(ctx context.Context) (map[models.EmbeddingStatus]int64, error) {
	collection := s.database.Collection(SubredditMetadataCollection)

	counts := map[models.EmbeddingStatus]int64{
		models.EmbeddingPending:  0,
		models.EmbeddingComplete: 0,
		models.EmbeddingFailed:   0,
	}
	for status := range counts {
		n, err := collection.CountDocuments(ctx, bson.M{"embedding_status": status})
		if err != nil {
			return nil, fmt.Errorf("count embedding status %s: %w", status, err)
		}
		counts[status] = n
	}
	return counts, nil
}

// RecordError appends a scrape_errors row. Never updated by the core.
func (s *MongoStorage) RecordError(ctx context.Context, errRecord *models.ScrapeError) error {
	if errRecord.Timestamp.IsZero() {
		errRecord.Timestamp = time.Now().UTC()
	}
	collection := s.database.Collection(ScrapeErrorsCollection)
	_, err := collection.InsertOne(ctx, errRecord)
	return err
}

// AppendAPIUsage appends one api_usage record at the end of a worker cycle.
func (s *MongoStorage) AppendAPIUsage(ctx context.Context, usage *models.APIUsageRecord) error {
	if usage.Timestamp.IsZero() {
		usage.Timestamp = time.Now().UTC()
	}
	collection := s.database.Collection(APIUsageCollection)
	_, err := collection.InsertOne(ctx, usage)
	return err
}
