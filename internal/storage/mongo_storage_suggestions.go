// internal/storage/mongo_storage_suggestions.go
package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/reddit-fleet/controller/internal/models"
)

// GetPendingSuggestions returns every suggestion document whose synced_at is
// absent (spec §4.6).
func (s *MongoStorage) GetPendingSuggestions(ctx context.Context) ([]models.SuggestionDocument, error) {
	collection := s.database.Collection(SuggestionsCollection)

	// A Mongo equality match against nil matches both a missing field and an
	// explicit null, so this covers both "never synced" representations.
	cursor, err := collection.Find(ctx, bson.M{"synced_at": nil})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.SuggestionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// MarkSuggestionsSynced stamps synced_at/synced_to_scraper on the drained
// suggestion documents.
func (s *MongoStorage) MarkSuggestionsSynced(ctx context.Context, ids []primitive.ObjectID, targetPrimary string) error {
	if len(ids) == 0 {
		return nil
	}
	collection := s.database.Collection(SuggestionsCollection)
	now := time.Now().UTC()

	update := bson.M{"$set": bson.M{
		"synced_at":         now,
		"synced_to_scraper": targetPrimary,
	}}
	_, err := collection.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, update)
	return err
}
