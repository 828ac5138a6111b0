package suggestions

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/storage/storagemock"
)

func TestSyncDedupesCasingAndSkipsExistingSubreddits(t *testing.T) {
	docID := primitive.NewObjectID()
	targetID := primitive.NewObjectID()

	var appended []string
	var markedIDs []primitive.ObjectID
	var markedTarget string

	store := &storagemock.Store{
		GetPendingSuggestionsFunc: func(ctx context.Context) ([]models.SuggestionDocument, error) {
			return []models.SuggestionDocument{
				{
					ID: docID,
					Subreddits: []models.SuggestedName{
						{Name: "alpha"}, {Name: "beta"}, {Name: "ALPHA"},
					},
				},
			}, nil
		},
		GetActiveTargetScraperFunc: func(ctx context.Context) (*models.ScraperInstance, error) {
			return &models.ScraperInstance{
				ID:               targetID,
				SubredditPrimary: "alpha",
				Subreddits:       []string{"alpha"},
			}, nil
		},
		AppendSubredditsFunc: func(ctx context.Context, id primitive.ObjectID, names []string) error {
			appended = names
			return nil
		},
		MarkSuggestionsSyncedFunc: func(ctx context.Context, ids []primitive.ObjectID, targetPrimary string) error {
			markedIDs = ids
			markedTarget = targetPrimary
			return nil
		},
	}

	worker := NewWorker(store)
	stats, err := worker.Sync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Synced != 1 || stats.Skipped != 1 {
		t.Fatalf("expected synced=1 skipped=1, got synced=%d skipped=%d", stats.Synced, stats.Skipped)
	}
	if len(appended) != 1 || appended[0] != "beta" {
		t.Fatalf("expected only 'beta' appended, got %v", appended)
	}
	if len(markedIDs) != 1 || markedIDs[0] != docID {
		t.Fatalf("expected suggestion doc marked synced, got %v", markedIDs)
	}
	if markedTarget != "alpha" {
		t.Fatalf("expected synced_to_scraper=alpha, got %q", markedTarget)
	}
}

func TestSyncIsNoOpWhenNoSuggestionsPending(t *testing.T) {
	store := &storagemock.Store{
		GetPendingSuggestionsFunc: func(ctx context.Context) ([]models.SuggestionDocument, error) {
			return nil, nil
		},
	}
	worker := NewWorker(store)
	stats, err := worker.Sync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestSyncLeavesSuggestionsUnsyncedWhenNoActiveTarget(t *testing.T) {
	var markCalled bool
	store := &storagemock.Store{
		GetPendingSuggestionsFunc: func(ctx context.Context) ([]models.SuggestionDocument, error) {
			return []models.SuggestionDocument{{ID: primitive.NewObjectID(), Subreddits: []models.SuggestedName{{Name: "alpha"}}}}, nil
		},
		GetActiveTargetScraperFunc: func(ctx context.Context) (*models.ScraperInstance, error) {
			return nil, nil
		},
		MarkSuggestionsSyncedFunc: func(ctx context.Context, ids []primitive.ObjectID, targetPrimary string) error {
			markCalled = true
			return nil
		},
	}
	worker := NewWorker(store)
	stats, err := worker.Sync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
	if markCalled {
		t.Fatalf("suggestions must remain unsynced when there is no active target")
	}
}

func TestLastStatsReflectsMostRecentCycle(t *testing.T) {
	store := &storagemock.Store{
		GetPendingSuggestionsFunc: func(ctx context.Context) ([]models.SuggestionDocument, error) {
			return []models.SuggestionDocument{{ID: primitive.NewObjectID(), Subreddits: []models.SuggestedName{{Name: "gamma"}}}}, nil
		},
		GetActiveTargetScraperFunc: func(ctx context.Context) (*models.ScraperInstance, error) {
			return &models.ScraperInstance{ID: primitive.NewObjectID(), SubredditPrimary: "alpha"}, nil
		},
		AppendSubredditsFunc:      func(ctx context.Context, id primitive.ObjectID, names []string) error { return nil },
		MarkSuggestionsSyncedFunc: func(ctx context.Context, ids []primitive.ObjectID, targetPrimary string) error { return nil },
	}
	worker := NewWorker(store)
	if _, err := worker.Sync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if worker.LastStats().Synced != 1 {
		t.Fatalf("expected LastStats to reflect the completed cycle, got %+v", worker.LastStats())
	}
}
