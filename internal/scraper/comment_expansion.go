package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/redditclient"
)

const (
	expansionMaxIterations = 20
	expansionWorkerCount   = 3
	expansionBatchSize     = 15
)

type expansionJob struct {
	set   redditclient.MoreSet
	index int
}

type expansionResult struct {
	comments []models.Comment
	more     []redditclient.MoreSet
	index    int
}

// expandMoreComments resolves every "load more" placeholder discovered in
// the initial tree by fanning out morechildren calls across a small worker
// pool, stopping once max_comment_depth is exceeded or no sets remain,
// grounded on service.go's expandCommentsFast/commentWorker.
func expandMoreComments(ctx context.Context, client RedditClient, postID string, initial []redditclient.MoreSet, maxDepth int, comments *[]models.Comment) []redditclient.MoreSet {
	pending := initial

	for iteration := 0; iteration < expansionMaxIterations; iteration++ {
		var toExpand []redditclient.MoreSet
		for _, s := range pending {
			if maxDepth > 0 && s.Depth >= maxDepth {
				continue
			}
			toExpand = append(toExpand, s)
		}
		if len(toExpand) == 0 {
			break
		}
		if len(toExpand) > expansionBatchSize {
			toExpand = toExpand[:expansionBatchSize]
		}

		jobs := make(chan expansionJob, len(toExpand))
		results := make(chan expansionResult, len(toExpand))

		var wg sync.WaitGroup
		for i := 0; i < expansionWorkerCount; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for job := range jobs {
					c, more := fetchAndParseMore(ctx, client, postID, job.set)
					results <- expansionResult{comments: c, more: more, index: job.index}
				}
			}()
		}

		for i, s := range toExpand {
			jobs <- expansionJob{set: s, index: i}
		}
		close(jobs)

		go func() {
			wg.Wait()
			close(results)
		}()

		var nextPending []redditclient.MoreSet
		for r := range results {
			*comments = append(*comments, r.comments...)
			nextPending = append(nextPending, r.more...)
		}

		pending = nextPending

		select {
		case <-ctx.Done():
			return pending
		case <-time.After(500 * time.Millisecond):
		}
	}

	return pending
}

// fetchAndParseMore issues one morechildren call for a single MoreSet and
// reparents the resulting flat comments under it.
func fetchAndParseMore(ctx context.Context, client RedditClient, postID string, set redditclient.MoreSet) ([]models.Comment, []redditclient.MoreSet) {
	data, err := client.FetchMoreComments(ctx, postID, set.CommentIDs)
	if err != nil || data == nil {
		return nil, nil
	}

	comments, moreSets, err := redditclient.ParseMoreComments(data, postID)
	if err != nil {
		return nil, nil
	}

	for i := range comments {
		if comments[i].ParentID == postID && set.ParentID != postID {
			comments[i].ParentID = set.ParentID
			comments[i].ParentType = set.ParentType
			comments[i].Depth = set.Depth
		}
	}
	for i := range moreSets {
		if moreSets[i].ParentID == postID && set.ParentID != postID {
			moreSets[i].ParentID = set.ParentID
			moreSets[i].ParentType = set.ParentType
			moreSets[i].Depth = set.Depth
		}
	}

	return comments, moreSets
}
