package scraper

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/storage/storagemock"
)

// mockRedditClient is a func-field RedditClient double, grounded on
// Reddit_Ingestion's testing/mocks/client_mock.go.
type mockRedditClient struct {
	FetchJSONFunc              func(ctx context.Context, rawURL string) (json.RawMessage, error)
	FetchMoreCommentsFunc      func(ctx context.Context, postID string, commentIDs []string) (json.RawMessage, error)
	GetSubredditURLFunc        func(subreddit, sortMethod string, limit int, after, timeFilter string) string
	GetPostURLFunc             func(postID string) string
	GetSubredditAboutURLFunc   func(subreddit string) string
	GetSubredditRulesURLFunc   func(subreddit string) string
}

func (m *mockRedditClient) FetchJSON(ctx context.Context, rawURL string) (json.RawMessage, error) {
	return m.FetchJSONFunc(ctx, rawURL)
}
func (m *mockRedditClient) FetchMoreComments(ctx context.Context, postID string, commentIDs []string) (json.RawMessage, error) {
	return m.FetchMoreCommentsFunc(ctx, postID, commentIDs)
}
func (m *mockRedditClient) GetSubredditURL(subreddit, sortMethod string, limit int, after, timeFilter string) string {
	return m.GetSubredditURLFunc(subreddit, sortMethod, limit, after, timeFilter)
}
func (m *mockRedditClient) GetPostURL(postID string) string { return m.GetPostURLFunc(postID) }
func (m *mockRedditClient) GetSubredditAboutURL(subreddit string) string {
	return m.GetSubredditAboutURLFunc(subreddit)
}
func (m *mockRedditClient) GetSubredditRulesURL(subreddit string) string {
	return m.GetSubredditRulesURLFunc(subreddit)
}

type noopGovernor struct{ calls int }

func (g *noopGovernor) CheckBudget(minRemaining int) { g.calls++ }

func testInstance() *models.ScraperInstance {
	return &models.ScraperInstance{
		ID:               primitive.NewObjectID(),
		SubredditPrimary: "golang",
		ScraperType:      models.ScraperTypePosts,
		Subreddits:       []string{"golang"},
		CreatedAt:        time.Now().Add(-time.Hour),
	}
}

func TestHarvestPostsDedupsAcrossSorts(t *testing.T) {
	postListing := json.RawMessage(`{"data":{"children":[
		{"kind":"t3","data":{"id":"p1","title":"one","author":"a","score":1,"created_utc":1620000000}},
		{"kind":"t3","data":{"id":"p2","title":"two","author":"a","score":1,"created_utc":1620000000}}
	],"after":""}}`)

	var upserted []models.Post
	client := &mockRedditClient{
		GetSubredditURLFunc: func(subreddit, sortMethod string, limit int, after, timeFilter string) string {
			return "https://reddit.com/r/" + subreddit + "/" + sortMethod + ".json"
		},
		FetchJSONFunc: func(ctx context.Context, rawURL string) (json.RawMessage, error) {
			return postListing, nil
		},
	}
	store := &storagemock.Store{
		GetPostsCountFunc: func(ctx context.Context, subreddit string) (int64, error) { return 5, nil },
		UpsertPostsFunc: func(ctx context.Context, posts []models.Post) (int64, int64, error) {
			upserted = posts
			return int64(len(posts)), 0, nil
		},
	}

	w := &Worker{
		cfg: Config{
			Instance:       testInstance(),
			Sorts:          []SortSpec{{Method: "hot"}, {Method: "new"}},
			PostsLimit:     25,
			MinRateBudget:  10,
			InterSortDelay: time.Millisecond,
		},
		client:   client,
		store:    store,
		governor: &noopGovernor{},
		log:      testLogger(),
	}

	posts, err := w.harvestPosts(context.Background(), "golang")
	if err != nil {
		t.Fatalf("harvestPosts returned error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 deduped posts across both sorts, got %d", len(posts))
	}
	if len(upserted) != 2 {
		t.Errorf("expected upsert to receive 2 posts, got %d", len(upserted))
	}
}

func TestHarvestPostsWidensFirstRunTopToMonth(t *testing.T) {
	emptyListing := json.RawMessage(`{"data":{"children":[],"after":""}}`)

	var gotTimeFilters []string
	client := &mockRedditClient{
		GetSubredditURLFunc: func(subreddit, sortMethod string, limit int, after, timeFilter string) string {
			gotTimeFilters = append(gotTimeFilters, timeFilter)
			return "https://reddit.com/r/" + subreddit + "/" + sortMethod + ".json"
		},
		FetchJSONFunc: func(ctx context.Context, rawURL string) (json.RawMessage, error) {
			return emptyListing, nil
		},
	}
	store := &storagemock.Store{
		GetPostsCountFunc: func(ctx context.Context, subreddit string) (int64, error) { return 0, nil },
	}

	w := &Worker{
		cfg: Config{
			Instance:       testInstance(),
			Sorts:          []SortSpec{{Method: "top", TimeFilter: "day"}},
			PostsLimit:     25,
			MinRateBudget:  10,
			InterSortDelay: time.Millisecond,
		},
		client:   client,
		store:    store,
		governor: &noopGovernor{},
		log:      testLogger(),
	}

	if _, err := w.harvestPosts(context.Background(), "golang"); err != nil {
		t.Fatalf("harvestPosts returned error: %v", err)
	}
	if len(gotTimeFilters) != 1 || gotTimeFilters[0] != "month" {
		t.Fatalf("expected first-run top sort to widen time filter to \"month\", got %v", gotTimeFilters)
	}
}

func TestHarvestPostsUsesConfiguredTimeFilterAfterFirstRun(t *testing.T) {
	emptyListing := json.RawMessage(`{"data":{"children":[],"after":""}}`)

	var gotTimeFilters []string
	client := &mockRedditClient{
		GetSubredditURLFunc: func(subreddit, sortMethod string, limit int, after, timeFilter string) string {
			gotTimeFilters = append(gotTimeFilters, timeFilter)
			return "https://reddit.com/r/" + subreddit + "/" + sortMethod + ".json"
		},
		FetchJSONFunc: func(ctx context.Context, rawURL string) (json.RawMessage, error) {
			return emptyListing, nil
		},
	}
	store := &storagemock.Store{
		GetPostsCountFunc: func(ctx context.Context, subreddit string) (int64, error) { return 5, nil },
	}

	w := &Worker{
		cfg: Config{
			Instance:       testInstance(),
			Sorts:          []SortSpec{{Method: "top", TimeFilter: "day"}},
			PostsLimit:     25,
			MinRateBudget:  10,
			InterSortDelay: time.Millisecond,
		},
		client:   client,
		store:    store,
		governor: &noopGovernor{},
		log:      testLogger(),
	}

	if _, err := w.harvestPosts(context.Background(), "golang"); err != nil {
		t.Fatalf("harvestPosts returned error: %v", err)
	}
	if len(gotTimeFilters) != 1 || gotTimeFilters[0] != "day" {
		t.Fatalf("expected configured time filter \"day\" once warmed up, got %v", gotTimeFilters)
	}
}

func TestRefreshCommentsGhostPostVerificationFailsInitialWithZeroStored(t *testing.T) {
	candidate := models.Post{PostID: "p1", InitialCommentsScraped: false}

	postAndComments := json.RawMessage(`[
		{"data":{"children":[{"kind":"t3","data":{"id":"p1","title":"t","author":"a","score":1,"created_utc":1620000000,"num_comments":1}}]}},
		{"data":{"children":[{"kind":"t1","data":{"id":"c1","author":"a","body":"b","score":1,"created_utc":1620000000,"replies":""}}]}}
	]`)

	var verificationRecorded bool
	var markedInitial []string

	client := &mockRedditClient{
		GetPostURLFunc: func(postID string) string { return "https://reddit.com/comments/" + postID },
		FetchJSONFunc: func(ctx context.Context, rawURL string) (json.RawMessage, error) {
			return postAndComments, nil
		},
	}
	store := &storagemock.Store{
		GetCommentCandidatesFunc: func(ctx context.Context, subreddit string, batchSize int) ([]models.Post, error) {
			return []models.Post{candidate}, nil
		},
		GetStoredCommentIDsFunc: func(ctx context.Context, postID string) (map[string]struct{}, error) {
			return map[string]struct{}{}, nil
		},
		UpsertCommentsFunc: func(ctx context.Context, comments []models.Comment) (int64, int64, error) {
			return int64(len(comments)), 0, nil
		},
		GetPostCommentCountFunc: func(ctx context.Context, postID string) (int64, error) {
			return 0, nil // the store shows zero even though the scrape claimed a comment
		},
		RecordErrorFunc: func(ctx context.Context, errRecord *models.ScrapeError) error {
			if errRecord.ErrorType == models.ErrorTypeVerificationFailed {
				verificationRecorded = true
			}
			return nil
		},
		MarkPostsCommentStateFunc: func(ctx context.Context, postIDs []string, initial bool) error {
			if initial {
				markedInitial = postIDs
			}
			return nil
		},
	}

	w := &Worker{
		cfg: Config{
			Instance:        testInstance(),
			CommentBatch:    10,
			MaxCommentDepth: 5,
			MinRateBudget:   10,
			InterPostDelay:  time.Millisecond,
		},
		client:   client,
		store:    store,
		governor: &noopGovernor{},
		log:      testLogger(),
	}

	n, err := w.refreshComments(context.Background(), "golang")
	if err != nil {
		t.Fatalf("refreshComments returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 comment collected, got %d", n)
	}
	if !verificationRecorded {
		t.Error("expected a verification_failed error to be recorded")
	}
	if len(markedInitial) != 0 {
		t.Errorf("expected the ghost post NOT to be marked initial_comments_scraped, got %v", markedInitial)
	}
}

func TestRefreshCommentsMarksUpdateCandidatesRegardlessOfCount(t *testing.T) {
	candidate := models.Post{PostID: "p1", InitialCommentsScraped: true}

	emptyPostAndComments := json.RawMessage(`[
		{"data":{"children":[{"kind":"t3","data":{"id":"p1","title":"t","author":"a","score":1,"created_utc":1620000000}}]}},
		{"data":{"children":[]}}
	]`)

	var markedUpdate []string

	client := &mockRedditClient{
		GetPostURLFunc: func(postID string) string { return "https://reddit.com/comments/" + postID },
		FetchJSONFunc: func(ctx context.Context, rawURL string) (json.RawMessage, error) {
			return emptyPostAndComments, nil
		},
	}
	store := &storagemock.Store{
		GetCommentCandidatesFunc: func(ctx context.Context, subreddit string, batchSize int) ([]models.Post, error) {
			return []models.Post{candidate}, nil
		},
		GetStoredCommentIDsFunc: func(ctx context.Context, postID string) (map[string]struct{}, error) {
			return map[string]struct{}{}, nil
		},
		MarkPostsCommentStateFunc: func(ctx context.Context, postIDs []string, initial bool) error {
			if !initial {
				markedUpdate = postIDs
			}
			return nil
		},
	}

	w := &Worker{
		cfg: Config{
			Instance:        testInstance(),
			CommentBatch:    10,
			MaxCommentDepth: 5,
			MinRateBudget:   10,
			InterPostDelay:  time.Millisecond,
		},
		client:   client,
		store:    store,
		governor: &noopGovernor{},
		log:      testLogger(),
	}

	if _, err := w.refreshComments(context.Background(), "golang"); err != nil {
		t.Fatalf("refreshComments returned error: %v", err)
	}
	if len(markedUpdate) != 1 || markedUpdate[0] != "p1" {
		t.Errorf("expected update candidate p1 to be marked regardless of comment count, got %v", markedUpdate)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
