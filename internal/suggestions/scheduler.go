package suggestions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/reddit-fleet/controller/internal/logger"
)

// Scheduler fires Worker.Sync on a cron tick, same shape as the
// Enrichment Worker's scheduler (spec §4.6: "Same cron-driven shape as
// Enrichment").
type Scheduler struct {
	cron   *cron.Cron
	worker *Worker
	log    *slog.Logger

	mu        sync.Mutex
	isRunning bool
}

func NewScheduler(worker *Worker, cronExpr string) (*Scheduler, error) {
	s := &Scheduler{
		worker: worker,
		log:    logger.WithComponent("suggestions-scheduler"),
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(cronExpr, func() {
		if err := s.RunNow(context.Background()); err != nil {
			s.log.Error("suggestions sync failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("register suggestions cron job: %w", err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("suggestions scheduler shutdown timeout")
	}
}

// RunNow runs one sync cycle immediately, skipping if one is already in
// flight.
func (s *Scheduler) RunNow(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		s.log.Info("suggestions sync already running, skipping tick")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	_, err := s.worker.Sync(ctx)
	return err
}
