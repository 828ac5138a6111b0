package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/reddit-fleet/controller/internal/logger"
	"github.com/reddit-fleet/controller/internal/metrics"
	"github.com/reddit-fleet/controller/internal/storage"
)

// Scheduler runs the Pipeline over every pending document on a cron tick,
// grounded on meows' Scheduler.createCron/RunNow isRunning-guard pattern.
type Scheduler struct {
	cron      *cron.Cron
	pipeline  *Pipeline
	store     storage.StorageInterface
	batchSize int
	maxRetry  int
	log       *slog.Logger

	mu        sync.Mutex
	isRunning bool
}

// NewScheduler builds a Scheduler that fires cronExpr (a standard 5-field
// cron spec or a descriptor such as "@every 60s") to drain up to batchSize pending
// documents per tick.
func NewScheduler(pipeline *Pipeline, store storage.StorageInterface, cronExpr string, batchSize, maxRetry int) (*Scheduler, error) {
	s := &Scheduler{
		pipeline:  pipeline,
		store:     store,
		batchSize: batchSize,
		maxRetry:  maxRetry,
		log:       logger.WithComponent("enrichment-scheduler"),
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(cronExpr, func() {
		if err := s.RunNow(context.Background()); err != nil {
			s.log.Error("enrichment batch failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("register enrichment cron job: %w", err)
	}

	return s, nil
}

// Start begins firing the cron schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop blocks until any in-flight batch finishes or ctx is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enrichment scheduler shutdown timeout")
	}
}

// RunNow drains up to batchSize pending documents immediately, skipping if
// a batch is already in flight.
func (s *Scheduler) RunNow(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		s.log.Info("enrichment batch already running, skipping tick")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	docs, err := s.store.GetPendingEmbeddings(ctx, s.batchSize, s.maxRetry)
	if err != nil {
		return fmt.Errorf("list pending embeddings: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	s.log.Info("enrichment batch starting", "count", len(docs))
	for i := range docs {
		doc := docs[i]
		if err := s.pipeline.Run(ctx, &doc); err != nil {
			s.log.Error("enrichment pipeline run failed", "subreddit", doc.SubredditName, "error", err)
			metrics.EmbeddingPipelineRunsTotal.WithLabelValues("error").Inc()
			continue
		}
		metrics.EmbeddingPipelineRunsTotal.WithLabelValues("success").Inc()
	}
	s.log.Info("enrichment batch complete", "count", len(docs))
	return nil
}
