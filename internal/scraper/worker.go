// Package scraper implements the Scraper Worker state machine (spec §4.3):
// a four-phase cycle run per Scraper Instance — post harvest, comment
// refresh, metadata refresh, metrics flush.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/reddit-fleet/controller/internal/logger"
	"github.com/reddit-fleet/controller/internal/metrics"
	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/ratelimit"
	"github.com/reddit-fleet/controller/internal/redditclient"
	"github.com/reddit-fleet/controller/internal/storage"
)

// RedditClient is the subset of redditclient.Client the worker depends on;
// an interface so tests can substitute a func-field mock, grounded on
// testing/mocks/client_mock.go.
type RedditClient interface {
	FetchJSON(ctx context.Context, rawURL string) (json.RawMessage, error)
	FetchMoreComments(ctx context.Context, postID string, commentIDs []string) (json.RawMessage, error)
	GetSubredditURL(subreddit, sortMethod string, limit int, after, timeFilter string) string
	GetPostURL(postID string) string
	GetSubredditAboutURL(subreddit string) string
	GetSubredditRulesURL(subreddit string) string
}

// Governor is the subset of ratelimit.Governor the worker depends on.
type Governor interface {
	CheckBudget(minRemaining int)
}

// SortSpec is one configured post listing sort, with an optional time
// filter for `top`/`controversial` (spec §4.3 Phase A).
type SortSpec struct {
	Method     string
	TimeFilter string
}

// Config parameterises one worker instance (spec §4.3: "one credential, a
// list of target subreddits, and a config struct").
type Config struct {
	Instance        *models.ScraperInstance
	Sorts           []SortSpec
	PostsLimit      int
	CommentBatch    int
	MaxCommentDepth int
	MetadataMaxAge  time.Duration
	MinRateBudget   int
	CycleInterval   time.Duration
	InterSortDelay  time.Duration
	InterPostDelay  time.Duration
}

// Worker runs the four-phase cycle for one Scraper Instance until its
// context is cancelled (spec §4.3, §5: one sub-process per instance — here,
// one goroutine tree supervised by the caller).
type Worker struct {
	cfg      Config
	client   RedditClient
	store    storage.StorageInterface
	governor Governor
	counting *ratelimit.CountingTransport
	log      *slog.Logger
}

// NewWorker builds a Worker for one Scraper Instance.
func NewWorker(cfg Config, client RedditClient, store storage.StorageInterface, governor Governor, counting *ratelimit.CountingTransport) *Worker {
	return &Worker{
		cfg:      cfg,
		client:   client,
		store:    store,
		governor: governor,
		counting: counting,
		log:      logger.WithComponent("scraper").With("subreddit_primary", cfg.Instance.SubredditPrimary),
	}
}

// Run loops cycles until ctx is cancelled. On an unhandled panic-equivalent
// error from a cycle, it logs, sleeps 60s, and restarts from the top (spec
// §4.3 "Fatal" worker failure semantics) — the Supervisor remains the
// arbiter of process-level restart via its liveness check.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cycleStart := time.Now()
		if err := w.runCycle(ctx); err != nil {
			w.log.Error("cycle failed, restarting after backoff", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(60 * time.Second):
			}
			continue
		}

		elapsed := time.Since(cycleStart)
		w.log.Info("cycle complete", "duration_ms", elapsed.Milliseconds())

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.CycleInterval):
		}
	}
}

// runCycle executes phases A-D sequentially (spec §5: "Phase B never runs
// before Phase A has committed its batch to the store").
func (w *Worker) runCycle(ctx context.Context) error {
	cycleStart := time.Now()

	var lastCyclePosts, lastCycleComments int

	for _, subreddit := range w.cfg.Instance.Subreddits {
		posts, err := w.harvestPosts(ctx, subreddit)
		if err != nil {
			w.log.Warn("phase A failed for subreddit", "subreddit", subreddit, "error", err)
			continue
		}
		lastCyclePosts += len(posts)

		n, err := w.refreshComments(ctx, subreddit)
		if err != nil {
			w.log.Warn("phase B failed for subreddit", "subreddit", subreddit, "error", err)
		}
		lastCycleComments += n

		if err := w.refreshMetadata(ctx, subreddit); err != nil {
			w.log.Warn("phase C failed for subreddit", "subreddit", subreddit, "error", err)
		}
	}

	return w.flushMetrics(ctx, cycleStart, lastCyclePosts, lastCycleComments)
}

// harvestPosts is Phase A: multi-sort post harvest with cross-sort dedup
// and first-run `top` bootstrap widening.
func (w *Worker) harvestPosts(ctx context.Context, subreddit string) ([]models.Post, error) {
	existingCount, err := w.store.GetPostsCount(ctx, subreddit)
	if err != nil {
		return nil, fmt.Errorf("get posts count: %w", err)
	}
	firstRun := existingCount == 0

	seen := make(map[string]struct{})
	var batch []models.Post

	for _, sort := range w.cfg.Sorts {
		w.governor.CheckBudget(w.cfg.MinRateBudget)

		sortMethod := sort.Method
		timeFilter := sort.TimeFilter
		if sortMethod == "top" && firstRun {
			timeFilter = "month" // first-run bootstrap widening (spec §4.3, S1)
		}

		listingURL := w.client.GetSubredditURL(subreddit, sortMethod, w.cfg.PostsLimit, "", timeFilter)
		var data json.RawMessage
		err = withBackoff(ctx, 3, time.Second, func() error {
			var fetchErr error
			data, fetchErr = w.client.FetchJSON(ctx, listingURL)
			return fetchErr
		})
		if err != nil {
			w.recordTransientError(ctx, subreddit, "harvest_posts", err)
			continue
		}

		posts, _, err := redditclient.ParseListing(data, subreddit, sort.Method)
		if err != nil {
			w.recordTransientError(ctx, subreddit, "harvest_posts", err)
			continue
		}

		for _, p := range posts {
			if _, dup := seen[p.PostID]; dup {
				continue
			}
			seen[p.PostID] = struct{}{}
			batch = append(batch, p)
		}

		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		case <-time.After(w.cfg.InterSortDelay):
		}
	}

	if len(batch) > 0 {
		if _, _, err := w.store.UpsertPosts(ctx, batch); err != nil {
			return batch, fmt.Errorf("upsert posts: %w", err)
		}
	}

	return batch, nil
}

// candidateState tracks whether a comment candidate entered Phase B as
// never-scraped (initial) so the verification protocol knows which
// partition it belongs to (spec §4.3 Phase B step 2).
type candidateState struct {
	post    models.Post
	initial bool
}

// refreshComments is Phase B: priority-ordered comment refresh with the
// ghost-post verification protocol.
func (w *Worker) refreshComments(ctx context.Context, subreddit string) (int, error) {
	w.governor.CheckBudget(w.cfg.MinRateBudget)

	candidates, err := w.store.GetCommentCandidates(ctx, subreddit, w.cfg.CommentBatch)
	if err != nil {
		return 0, fmt.Errorf("get comment candidates: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	states := make([]candidateState, len(candidates))
	var commentBatch []models.Comment
	claimedByPost := make(map[string]int)

	for i, post := range candidates {
		states[i] = candidateState{post: post, initial: !post.InitialCommentsScraped}

		storedIDs, err := w.store.GetStoredCommentIDs(ctx, post.PostID)
		if err != nil {
			w.recordTransientError(ctx, subreddit, "refresh_comments", err)
			continue
		}

		w.governor.CheckBudget(w.cfg.MinRateBudget)
		comments, err := w.scrapePostComments(ctx, subreddit, post.PostID, storedIDs)
		if err != nil {
			w.recordTransientError(ctx, subreddit, "refresh_comments", err)
		}
		claimedByPost[post.PostID] = len(comments)
		commentBatch = append(commentBatch, comments...)

		select {
		case <-ctx.Done():
			return len(commentBatch), ctx.Err()
		case <-time.After(w.cfg.InterPostDelay):
		}
	}

	if len(commentBatch) > 0 {
		if _, _, err := w.store.UpsertComments(ctx, commentBatch); err != nil {
			return len(commentBatch), fmt.Errorf("upsert comments: %w", err)
		}
	}

	var initialIDs, updateIDs []string
	for _, st := range states {
		if st.initial {
			if claimedByPost[st.post.PostID] > 0 {
				stored, err := w.store.GetPostCommentCount(ctx, st.post.PostID)
				if err != nil {
					w.recordTransientError(ctx, subreddit, "verify_comment_count", err)
					continue
				}
				if stored == 0 {
					w.recordVerificationFailure(ctx, subreddit, st.post.PostID)
					continue
				}
			}
			initialIDs = append(initialIDs, st.post.PostID)
		} else {
			updateIDs = append(updateIDs, st.post.PostID)
		}
	}

	if len(initialIDs) > 0 {
		if err := w.store.MarkPostsCommentState(ctx, initialIDs, true); err != nil {
			return len(commentBatch), fmt.Errorf("mark initial comment state: %w", err)
		}
	}
	if len(updateIDs) > 0 {
		if err := w.store.MarkPostsCommentState(ctx, updateIDs, false); err != nil {
			return len(commentBatch), fmt.Errorf("mark update comment state: %w", err)
		}
	}

	return len(commentBatch), nil
}

// scrapePostComments fetches a post's comment tree, expands "more comments"
// placeholders via the worker pool, and filters out comments already
// present locally (still recursing into their replies so newly nested
// comments are collected).
func (w *Worker) scrapePostComments(ctx context.Context, subreddit, postID string, storedIDs map[string]struct{}) ([]models.Comment, error) {
	listingURL := w.client.GetPostURL(postID)
	var data json.RawMessage
	err := withBackoff(ctx, 3, time.Second, func() error {
		var fetchErr error
		data, fetchErr = w.client.FetchJSON(ctx, listingURL)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch post: %w", err)
	}

	_, comments, moreSets, err := redditclient.ParsePostAndComments(data, subreddit)
	if err != nil {
		return nil, fmt.Errorf("parse post: %w", err)
	}

	if w.cfg.MaxCommentDepth > 0 {
		moreSets = expandMoreComments(ctx, w.client, postID, moreSets, w.cfg.MaxCommentDepth, &comments)
	}

	var fresh []models.Comment
	for _, c := range comments {
		if c.Depth >= w.cfg.MaxCommentDepth && w.cfg.MaxCommentDepth > 0 {
			continue
		}
		if _, already := storedIDs[c.CommentID]; already {
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, nil
}

// refreshMetadata is Phase C: gated on elapsed time since the metadata
// document's last_updated.
func (w *Worker) refreshMetadata(ctx context.Context, subreddit string) error {
	existing, err := w.store.GetSubredditMetadata(ctx, subreddit)
	if err != nil {
		return fmt.Errorf("get subreddit metadata: %w", err)
	}
	if existing != nil && time.Since(existing.LastUpdated) < w.cfg.MetadataMaxAge {
		return nil
	}

	w.governor.CheckBudget(w.cfg.MinRateBudget)
	aboutURL := w.client.GetSubredditAboutURL(subreddit)
	aboutData, err := w.client.FetchJSON(ctx, aboutURL)
	if err != nil {
		return fmt.Errorf("fetch subreddit about: %w", err)
	}

	w.governor.CheckBudget(w.cfg.MinRateBudget)
	rulesURL := w.client.GetSubredditRulesURL(subreddit)
	rulesData, err := w.client.FetchJSON(ctx, rulesURL)
	if err != nil {
		w.log.Warn("fetch subreddit rules failed, proceeding without them", "subreddit", subreddit, "error", err)
		rulesData = nil
	}

	w.governor.CheckBudget(w.cfg.MinRateBudget)
	sampleURL := w.client.GetSubredditURL(subreddit, "top", 20, "", "month")
	sampleData, err := w.client.FetchJSON(ctx, sampleURL)
	if err != nil {
		w.log.Warn("fetch sample posts failed, proceeding without them", "subreddit", subreddit, "error", err)
		sampleData = nil
	}

	metadata, err := parseSubredditMetadata(subreddit, aboutData, rulesData, sampleData)
	if err != nil {
		return fmt.Errorf("parse subreddit metadata: %w", err)
	}

	_, err = w.store.UpsertSubredditMetadata(ctx, metadata)
	return err
}

// flushMetrics is Phase D: update the embedded metrics document and append
// one api_usage record, then reset the per-cycle counters.
func (w *Worker) flushMetrics(ctx context.Context, cycleStart time.Time, posts, comments int) error {
	cycleDuration := time.Since(cycleStart)

	instance := w.cfg.Instance
	m := instance.Metrics
	m.TotalPostsCollected += int64(posts)
	m.TotalCommentsCollected += int64(comments)
	m.CycleCount++
	m.LastCyclePosts = posts
	m.LastCycleComments = comments
	m.LastCycleAt = time.Now().UTC()

	if m.AvgCycleDurationMS == 0 {
		m.AvgCycleDurationMS = float64(cycleDuration.Milliseconds())
	} else {
		m.AvgCycleDurationMS = (m.AvgCycleDurationMS + float64(cycleDuration.Milliseconds())) / 2
	}

	if lifetime := time.Since(instance.CreatedAt).Hours(); lifetime > 0 {
		m.PostsPerHour = float64(m.TotalPostsCollected) / lifetime
		m.CommentsPerHour = float64(m.TotalCommentsCollected) / lifetime
	}

	if err := w.store.UpdateScraperMetrics(ctx, instance.ID, m); err != nil {
		return fmt.Errorf("update scraper metrics: %w", err)
	}
	instance.Metrics = m

	metrics.ScraperCyclesTotal.WithLabelValues(instance.SubredditPrimary, string(instance.ScraperType)).Inc()
	metrics.ScraperCycleDuration.WithLabelValues(instance.SubredditPrimary, string(instance.ScraperType)).Observe(cycleDuration.Seconds())
	metrics.PostsCollectedTotal.WithLabelValues(instance.SubredditPrimary).Add(float64(posts))
	metrics.CommentsCollectedTotal.WithLabelValues(instance.SubredditPrimary).Add(float64(comments))

	stats := w.counting.Stats()
	logicalCalls := len(instance.Subreddits) * len(w.cfg.Sorts)
	accuracy := 0.0
	if stats.CycleRequests > 0 {
		accuracy = float64(logicalCalls) / float64(stats.CycleRequests)
	}

	usage := &models.APIUsageRecord{
		Subreddit:          strings.Join(instance.Subreddits, ","),
		ScraperType:        instance.ScraperType,
		Timestamp:          time.Now().UTC(),
		LogicalCallCount:   int64(logicalCalls),
		ActualHTTPRequests: stats.CycleRequests,
		AccuracyRatio:      accuracy,
		AvgResponseTimeMS:  float64(stats.AvgResponseTimeMS),
		ErrorCount:         stats.ErrorCount,
		EstimatedCostUSD:   stats.EstimatedCostUSD,
	}
	if err := w.store.AppendAPIUsage(ctx, usage); err != nil {
		return fmt.Errorf("append api usage: %w", err)
	}

	w.counting.ResetCycle()
	return nil
}

func (w *Worker) recordTransientError(ctx context.Context, subreddit, phase string, cause error) {
	w.log.Warn("transient error", "subreddit", subreddit, "phase", phase, "error", cause)
	metrics.ScrapeErrorsTotal.WithLabelValues(models.ErrorTypeTransient).Inc()
	_ = w.store.RecordError(ctx, &models.ScrapeError{
		Subreddit: subreddit,
		ErrorType: models.ErrorTypeTransient,
		Message:   cause.Error(),
		Timestamp: time.Now().UTC(),
	})
}

func (w *Worker) recordVerificationFailure(ctx context.Context, subreddit, postID string) {
	w.log.Warn("comment verification failed, not marking post", "subreddit", subreddit, "post_id", postID)
	metrics.ScrapeErrorsTotal.WithLabelValues(models.ErrorTypeVerificationFailed).Inc()
	_ = w.store.RecordError(ctx, &models.ScrapeError{
		Subreddit: subreddit,
		PostID:    postID,
		ErrorType: models.ErrorTypeVerificationFailed,
		Message:   "scrape claimed comments but store shows zero",
		Timestamp: time.Now().UTC(),
	})
}

// withBackoff runs fn up to attempts times with exponential backoff,
// grounded on spec §4.3/§7's "bounded exponential backoff (e.g. 3 attempts,
// 2x factor)" — a hand-rolled helper, not a decorator, per spec §9.
func withBackoff(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(math.Pow(2, float64(attempt))) * base
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}
