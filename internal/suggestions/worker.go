// Package suggestions implements the Suggestions Sync Worker: periodically
// drains the external `subreddit_suggestions` queue into the active
// posts-scraper's subreddit list (spec §4.6).
package suggestions

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/reddit-fleet/controller/internal/logger"
	"github.com/reddit-fleet/controller/internal/metrics"
	"github.com/reddit-fleet/controller/internal/storage"
)

// Stats summarizes one sync cycle, at the granularity of distinct
// normalized subreddit names across all drained suggestion documents
// (spec §4.6 S6: duplicate casings of the same name collapse to one
// counted outcome).
type Stats struct {
	Synced  int
	Skipped int
}

// Worker drains pending suggestion documents on demand; Scheduler decides
// when to call Sync.
type Worker struct {
	store storage.StorageInterface
	log   *slog.Logger

	mu        sync.Mutex
	lastStats Stats
}

func NewWorker(store storage.StorageInterface) *Worker {
	return &Worker{store: store, log: logger.WithComponent("suggestions")}
}

// LastStats returns the most recently completed cycle's counts.
func (w *Worker) LastStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastStats
}

// Sync runs one drain cycle. If there are no pending suggestions, or no
// active target scraper yet, it is a no-op and the documents are left
// unsynced for the next tick (spec §4.6).
func (w *Worker) Sync(ctx context.Context) (Stats, error) {
	docs, err := w.store.GetPendingSuggestions(ctx)
	if err != nil {
		return Stats{}, err
	}
	if len(docs) == 0 {
		return Stats{}, nil
	}

	target, err := w.store.GetActiveTargetScraper(ctx)
	if err != nil {
		return Stats{}, err
	}
	if target == nil {
		w.log.Info("no active target scraper, leaving suggestions unsynced", "pending", len(docs))
		return Stats{}, nil
	}

	existing := make(map[string]struct{}, len(target.Subreddits))
	for _, name := range target.Subreddits {
		existing[strings.ToLower(name)] = struct{}{}
	}

	union := make(map[string]struct{})
	ids := make([]primitive.ObjectID, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
		for _, suggested := range doc.Subreddits {
			union[strings.ToLower(suggested.Name)] = struct{}{}
		}
	}

	var toAdd []string
	stats := Stats{}
	for name := range union {
		if _, ok := existing[name]; ok {
			stats.Skipped++
			continue
		}
		toAdd = append(toAdd, name)
		stats.Synced++
	}

	if len(toAdd) > 0 {
		if err := w.store.AppendSubreddits(ctx, target.ID, toAdd); err != nil {
			return Stats{}, err
		}
	}

	if err := w.store.MarkSuggestionsSynced(ctx, ids, target.SubredditPrimary); err != nil {
		return Stats{}, err
	}

	w.log.Info("suggestions sync cycle complete",
		"target", target.SubredditPrimary, "synced", stats.Synced, "skipped", stats.Skipped)
	metrics.SuggestionsSyncedTotal.Add(float64(stats.Synced))

	w.mu.Lock()
	w.lastStats = stats
	w.mu.Unlock()

	return stats, nil
}
