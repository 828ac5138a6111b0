// internal/storage/mongo_storage_posts.go
package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/reddit-fleet/controller/internal/models"
)

// carryForward holds the comment-tracking fields preserved across a
// post upsert per the monotonic rule (spec §3, §4.2).
type carryForward struct {
	CommentsScraped        bool
	InitialCommentsScraped bool
	LastCommentFetchTime   *time.Time
	CommentsScrapedAt      *time.Time
}

// UpsertPosts bulk-upserts keyed on post_id. Before writing, it reads the
// existing comment-tracking fields for every ID in the batch and carries
// forward any true/non-null values, so a re-observed post from a later
// Phase A harvest can never regress a comment-tracking field that Phase B
// already advanced.
func (s *MongoStorage) UpsertPosts(ctx context.Context, posts []models.Post) (int64, int64, error) {
	if len(posts) == 0 {
		return 0, 0, nil
	}

	collection := s.database.Collection(PostsCollection)

	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.PostID
	}

	existing := make(map[string]carryForward, len(ids))
	cursor, err := collection.Find(ctx, bson.M{"post_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, 0, err
	}
	var priorPosts []models.Post
	if err := cursor.All(ctx, &priorPosts); err != nil {
		return 0, 0, err
	}
	for _, p := range priorPosts {
		existing[p.PostID] = carryForward{
			CommentsScraped:        p.CommentsScraped,
			InitialCommentsScraped: p.InitialCommentsScraped,
			LastCommentFetchTime:   p.LastCommentFetchTime,
			CommentsScrapedAt:      p.CommentsScrapedAt,
		}
	}

	now := time.Now().UTC()
	models_ := make([]mongo.WriteModel, 0, len(posts))

	for _, post := range posts {
		setDoc := bson.M{
			"subreddit":    post.Subreddit,
			"author":       post.Author,
			"title":        post.Title,
			"body":         post.Body,
			"score":        post.Score,
			"num_comments": post.NumComments,
			"url":          post.URL,
			"flair":        post.Flair,
			"sort_method":  post.SortMethod,
			"created_utc":  post.CreatedUTC,
			"updated_at":   now,
		}

		if prior, ok := existing[post.PostID]; ok {
			setDoc["comments_scraped"] = prior.CommentsScraped
			setDoc["initial_comments_scraped"] = prior.InitialCommentsScraped
			setDoc["last_comment_fetch_time"] = prior.LastCommentFetchTime
			setDoc["comments_scraped_at"] = prior.CommentsScrapedAt
		}

		update := bson.M{
			"$set": setDoc,
			"$setOnInsert": bson.M{
				"post_id":    post.PostID,
				"scraped_at": now,
			},
		}
		if _, ok := existing[post.PostID]; !ok {
			update["$setOnInsert"].(bson.M)["comments_scraped"] = false
			update["$setOnInsert"].(bson.M)["initial_comments_scraped"] = false
			update["$setOnInsert"].(bson.M)["last_comment_fetch_time"] = nil
			update["$setOnInsert"].(bson.M)["comments_scraped_at"] = nil
		}

		model := mongo.NewUpdateOneModel().
			SetFilter(bson.M{"post_id": post.PostID}).
			SetUpdate(update).
			SetUpsert(true)
		models_ = append(models_, model)
	}

	result, err := collection.BulkWrite(ctx, models_, options.BulkWrite().SetOrdered(false))
	if err != nil {
		if _, ok := err.(mongo.BulkWriteException); ok && result != nil {
			// Unordered bulk: partial success is reported in counts, per spec §4.2.
			return result.UpsertedCount + result.InsertedCount, result.ModifiedCount, nil
		}
		return 0, 0, err
	}

	return result.UpsertedCount + result.InsertedCount, result.ModifiedCount, nil
}

func (s *MongoStorage) GetPostsCount(ctx context.Context, subreddit string) (int64, error) {
	collection := s.database.Collection(PostsCollection)
	filter := bson.M{}
	if subreddit != "" {
		filter["subreddit"] = subreddit
	}
	return collection.CountDocuments(ctx, filter)
}

// GetCommentCandidates returns up to batchSize posts ordered per the four
// priority tiers of spec §4.3: never-scraped first, then staleness tiers by
// comment-count bracket, each tier sub-ordered by num_comments desc then
// created_utc desc.
func (s *MongoStorage) GetCommentCandidates(ctx context.Context, subreddit string, batchSize int) ([]models.Post, error) {
	collection := s.database.Collection(PostsCollection)
	now := time.Now().UTC()

	sortOpt := options.Find().SetSort(bson.D{{Key: "num_comments", Value: -1}, {Key: "created_utc", Value: -1}})

	var out []models.Post

	tiers := []bson.M{
		{"subreddit": subreddit, "initial_comments_scraped": false},
		{
			"subreddit": subreddit, "initial_comments_scraped": true,
			"num_comments":             bson.M{"$gt": 100},
			"last_comment_fetch_time":  bson.M{"$lt": now.Add(-2 * time.Hour)},
		},
		{
			"subreddit": subreddit, "initial_comments_scraped": true,
			"num_comments":             bson.M{"$gt": 20, "$lte": 100},
			"last_comment_fetch_time":  bson.M{"$lt": now.Add(-6 * time.Hour)},
		},
		{
			"subreddit": subreddit, "initial_comments_scraped": true,
			"num_comments":             bson.M{"$lte": 20},
			"last_comment_fetch_time":  bson.M{"$lt": now.Add(-24 * time.Hour)},
		},
	}

	seen := make(map[string]struct{})
	for _, filter := range tiers {
		remaining := batchSize - len(out)
		if remaining <= 0 {
			break
		}
		opts := sortOpt
		opts.SetLimit(int64(remaining))

		cursor, err := collection.Find(ctx, filter, opts)
		if err != nil {
			return nil, err
		}
		var tierPosts []models.Post
		if err := cursor.All(ctx, &tierPosts); err != nil {
			cursor.Close(ctx)
			return nil, err
		}
		cursor.Close(ctx)

		for _, p := range tierPosts {
			if _, dup := seen[p.PostID]; dup {
				continue
			}
			seen[p.PostID] = struct{}{}
			out = append(out, p)
		}
	}

	return out, nil
}

func (s *MongoStorage) GetStoredCommentIDs(ctx context.Context, postID string) (map[string]struct{}, error) {
	collection := s.database.Collection(CommentsCollection)
	cursor, err := collection.Find(ctx, bson.M{"post_id": postID}, options.Find().SetProjection(bson.M{"comment_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	ids := make(map[string]struct{})
	for cursor.Next(ctx) {
		var doc struct {
			CommentID string `bson:"comment_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ids[doc.CommentID] = struct{}{}
	}
	return ids, cursor.Err()
}

// MarkPostsCommentState sets comments_scraped=true, last_comment_fetch_time=now
// and, if initial, initial_comments_scraped=true + comments_scraped_at=now.
func (s *MongoStorage) MarkPostsCommentState(ctx context.Context, postIDs []string, initial bool) error {
	if len(postIDs) == 0 {
		return nil
	}
	collection := s.database.Collection(PostsCollection)
	now := time.Now().UTC()

	setDoc := bson.M{
		"comments_scraped":        true,
		"last_comment_fetch_time": now,
	}
	if initial {
		setDoc["initial_comments_scraped"] = true
		setDoc["comments_scraped_at"] = now
	}

	_, err := collection.UpdateMany(ctx, bson.M{"post_id": bson.M{"$in": postIDs}}, bson.M{"$set": setDoc})
	return err
}

func (s *MongoStorage) GetPostCommentCount(ctx context.Context, postID string) (int64, error) {
	collection := s.database.Collection(CommentsCollection)
	return collection.CountDocuments(ctx, bson.M{"post_id": postID})
}

// UpsertComments bulk-upserts keyed on comment_id.
func (s *MongoStorage) UpsertComments(ctx context.Context, comments []models.Comment) (int64, int64, error) {
	if len(comments) == 0 {
		return 0, 0, nil
	}

	collection := s.database.Collection(CommentsCollection)
	now := time.Now().UTC()

	writes := make([]mongo.WriteModel, 0, len(comments))
	for _, c := range comments {
		update := bson.M{
			"$set": bson.M{
				"post_id":     c.PostID,
				"parent_id":   c.ParentID,
				"parent_type": c.ParentType,
				"author":      c.Author,
				"body":        c.Body,
				"score":       c.Score,
				"depth":       c.Depth,
				"created_utc": c.CreatedUTC,
			},
			"$setOnInsert": bson.M{
				"comment_id": c.CommentID,
				"scraped_at": now,
			},
		}
		model := mongo.NewUpdateOneModel().
			SetFilter(bson.M{"comment_id": c.CommentID}).
			SetUpdate(update).
			SetUpsert(true)
		writes = append(writes, model)
	}

	result, err := collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		if result != nil {
			return result.UpsertedCount + result.InsertedCount, result.ModifiedCount, nil
		}
		return 0, 0, err
	}
	return result.UpsertedCount + result.InsertedCount, result.ModifiedCount, nil
}
