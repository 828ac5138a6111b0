// Package supervisor owns the lifecycle of the Scraper Instance set,
// converging the live process population to the control collection's
// intent (spec §4.4).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/reddit-fleet/controller/internal/errorreporting"
	"github.com/reddit-fleet/controller/internal/logger"
	"github.com/reddit-fleet/controller/internal/metrics"
	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/storage"
)

// InstanceKey identifies a Scraper Instance the same way storage does:
// (subreddit_primary, scraper_type).
type InstanceKey struct {
	SubredditPrimary string
	ScraperType      models.ScraperType
}

// instanceState is the Supervisor's in-memory record for one live or
// recently-live worker sub-process.
type instanceState struct {
	instance *models.ScraperInstance
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	logFile  *os.File
}

// Config parameterises the Supervisor's liveness loop.
type Config struct {
	CheckInterval   time.Duration
	RestartDelay    time.Duration
	RestartCooldown time.Duration
	WorkerBinary    string
	MaxSubreddits   int
	LogDir          string // worker stdout/stderr destination; empty disables log capture
}

// Supervisor is a single process owning one sub-process per Scraper
// Instance (spec §5: "one credential per instance, one network identity
// per instance"). A single liveness loop executes sequentially; there is
// no concurrent mutation of the same instance (spec §4.4 "Ordering").
type Supervisor struct {
	cfg   Config
	store storage.StorageInterface
	log   *slog.Logger

	mu        sync.Mutex
	instances map[InstanceKey]*instanceState
}

// New builds a Supervisor. Call Reconcile once at startup before starting
// the liveness loop.
func New(cfg Config, store storage.StorageInterface) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		store:     store,
		log:       logger.WithComponent("supervisor"),
		instances: make(map[InstanceKey]*instanceState),
	}
}

func keyOf(instance *models.ScraperInstance) InstanceKey {
	return InstanceKey{SubredditPrimary: instance.SubredditPrimary, ScraperType: instance.ScraperType}
}

// Reconcile reads every Scraper Instance row and rehydrates the in-memory
// index; it does not itself respawn — the liveness loop picks up any
// instance whose status warrants a respawn on its next tick (spec §4.4:
// "Reconcile on startup").
func (s *Supervisor) Reconcile(ctx context.Context) error {
	rows, err := s.store.GetAllScraperInstances(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list scraper instances: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range rows {
		instance := rows[i]
		s.instances[keyOf(&instance)] = &instanceState{instance: &instance}
	}
	s.log.Info("reconciled scraper instances", "count", len(rows))
	return nil
}

// Spawn validates the request and starts a worker sub-process, persisting
// status transitions at each step (spec §4.4 "Spawn").
func (s *Supervisor) Spawn(ctx context.Context, instance *models.ScraperInstance) error {
	if len(instance.Subreddits) > s.cfg.MaxSubreddits {
		return fmt.Errorf("too many subreddits: %d exceeds max %d", len(instance.Subreddits), s.cfg.MaxSubreddits)
	}

	instance.Status = models.StatusStarting
	instance.ContainerHandle = deterministicHandle(instance.SubredditPrimary, instance.ScraperType)
	if err := s.store.UpsertScraperInstance(ctx, instance); err != nil {
		return fmt.Errorf("persist starting instance: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(instance)
	if existing, ok := s.instances[key]; ok && existing.cancel != nil {
		existing.cancel()
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd, logFile := s.buildCommand(procCtx, instance)

	if err := cmd.Start(); err != nil {
		cancel()
		if logFile != nil {
			logFile.Close()
		}
		_ = s.store.UpdateScraperStatus(ctx, instance.ID, models.StatusError, err.Error())
		return fmt.Errorf("spawn worker process: %w", err)
	}

	s.instances[key] = &instanceState{instance: instance, cmd: cmd, cancel: cancel, logFile: logFile}

	instance.Status = models.StatusRunning
	if err := s.store.UpdateScraperHandle(ctx, instance.ID, instance.ContainerHandle); err != nil {
		s.log.Warn("failed to persist handle", "error", err)
	}
	return s.store.UpdateScraperStatus(ctx, instance.ID, models.StatusRunning, "")
}

// buildCommand constructs the worker sub-process invocation. When LogDir is
// configured it opens a per-instance append-only log file and wires it to
// both stdout and stderr so the control plane's logs handler (via LogPath)
// can read it back; the returned *os.File is nil when log capture
// is disabled, and the caller is responsible for closing it on teardown.
func (s *Supervisor) buildCommand(ctx context.Context, instance *models.ScraperInstance) (*exec.Cmd, *os.File) {
	cmd := exec.CommandContext(ctx, s.cfg.WorkerBinary, "scrape-worker", "--instance="+instance.ContainerHandle)

	if s.cfg.LogDir == "" {
		return cmd, nil
	}

	logPath := filepath.Join(s.cfg.LogDir, instance.ContainerHandle+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.log.Warn("failed to open worker log file, proceeding without capture", "path", logPath, "error", err)
		return cmd, nil
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	return cmd, logFile
}

// LogPath returns the path the Supervisor would capture (or has captured)
// a live instance's worker output to, for the control plane's logs handler
// to tail. It returns "" when log capture is disabled.
func (s *Supervisor) LogPath(key InstanceKey) string {
	if s.cfg.LogDir == "" {
		return ""
	}
	s.mu.Lock()
	state, ok := s.instances[key]
	s.mu.Unlock()
	if !ok || state.instance.ContainerHandle == "" {
		return ""
	}
	return filepath.Join(s.cfg.LogDir, state.instance.ContainerHandle+".log")
}

// handleNamespace is an arbitrary fixed UUID used as the base for
// deterministic per-instance handle generation via uuid.NewSHA1 — the same
// (subreddit_primary, scraper_type) pair always yields the same handle.
var handleNamespace = uuid.MustParse("6f9e4e6c-0f2f-4c7f-9e9b-2f7d6a5e8b3a")

// deterministicHandle derives a stable sub-process handle from the
// instance's identity, grounded on google/uuid's use for handle naming in
// the ingestion teacher (spec §4.4: "deterministic handle").
func deterministicHandle(subredditPrimary string, scraperType models.ScraperType) string {
	id := uuid.NewSHA1(handleNamespace, []byte(string(scraperType)+":"+subredditPrimary))
	return fmt.Sprintf("scraper-%s-%s-%s", scraperType, subredditPrimary, id.String())
}

// Stop terminates the worker handle and marks the instance stopped.
func (s *Supervisor) Stop(ctx context.Context, key InstanceKey) error {
	s.mu.Lock()
	state, ok := s.instances[key]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such scraper instance: %+v", key)
	}

	s.terminate(state)
	return s.store.UpdateScraperStatus(ctx, state.instance.ID, models.StatusStopped, "")
}

// Restart tears down and respawns.
func (s *Supervisor) Restart(ctx context.Context, key InstanceKey) error {
	s.mu.Lock()
	state, ok := s.instances[key]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such scraper instance: %+v", key)
	}

	s.terminate(state)
	return s.Spawn(ctx, state.instance)
}

// Remove tears down the process and deletes the Scraper Instance row.
func (s *Supervisor) Remove(ctx context.Context, key InstanceKey) error {
	s.mu.Lock()
	state, ok := s.instances[key]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such scraper instance: %+v", key)
	}

	s.terminate(state)

	s.mu.Lock()
	delete(s.instances, key)
	s.mu.Unlock()

	return s.store.DeleteScraperInstance(ctx, state.instance.ID)
}

// SetAutoRestart mutates only the auto_restart flag.
func (s *Supervisor) SetAutoRestart(ctx context.Context, key InstanceKey, autoRestart bool) error {
	s.mu.Lock()
	state, ok := s.instances[key]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such scraper instance: %+v", key)
	}
	state.instance.AutoRestart = autoRestart
	return s.store.SetAutoRestart(ctx, state.instance.ID, autoRestart)
}

func (s *Supervisor) terminate(state *instanceState) {
	if state.cancel != nil {
		state.cancel()
	}
	if state.cmd != nil && state.cmd.Process != nil {
		_ = state.cmd.Process.Kill()
	}
	if state.logFile != nil {
		state.logFile.Close()
	}
}

// RunLiveness runs the probe loop until ctx is cancelled (spec §4.4
// "Liveness loop"): every check_interval, probe running instances and
// respawn stopped/failed ones past their cooldown.
func (s *Supervisor) RunLiveness(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			errorreporting.CapturePanic("supervisor", r)
			s.log.Error("panic in supervisor liveness tick", "recovered", r)
		}
	}()

	s.mu.Lock()
	snapshot := make([]*instanceState, 0, len(s.instances))
	for _, state := range s.instances {
		snapshot = append(snapshot, state)
	}
	s.mu.Unlock()

	for _, state := range snapshot {
		s.tickOne(ctx, state)
	}

	counts := make(map[models.ScraperStatus]int)
	for _, state := range snapshot {
		counts[state.instance.Status]++
	}
	for status, count := range counts {
		metrics.ScraperInstancesByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (s *Supervisor) tickOne(ctx context.Context, state *instanceState) {
	instance := state.instance

	switch instance.Status {
	case models.StatusRunning:
		if !s.isAlive(state) {
			s.log.Warn("worker handle not alive", "handle", instance.ContainerHandle)
			_ = s.store.UpdateScraperStatus(ctx, instance.ID, models.StatusFailed, "Container stopped unexpectedly")
			_ = s.store.IncrementRestartCount(ctx, instance.ID)
			instance.Status = models.StatusFailed
			instance.RestartCount++

			time.Sleep(s.cfg.RestartDelay)
			if instance.AutoRestart {
				if err := s.Spawn(ctx, instance); err != nil {
					s.log.Error("respawn after failure errored", "error", err)
				} else {
					metrics.SupervisorRestartsTotal.WithLabelValues(instance.SubredditPrimary, string(instance.ScraperType), "liveness_failure").Inc()
				}
			}
		}

	case models.StatusStopped, models.StatusFailed:
		if instance.AutoRestart && time.Since(instance.LastUpdated) > s.cfg.RestartCooldown {
			if err := s.Spawn(ctx, instance); err != nil {
				s.log.Error("cooldown respawn errored", "error", err)
			} else {
				metrics.SupervisorRestartsTotal.WithLabelValues(instance.SubredditPrimary, string(instance.ScraperType), "cooldown_respawn").Inc()
			}
		}
	}
}

// isAlive probes the sub-process with signal 0, which delivers no actual
// signal but fails if the process is gone (spec §4.4 liveness probe).
func (s *Supervisor) isAlive(state *instanceState) bool {
	if state.cmd == nil || state.cmd.Process == nil {
		return false
	}
	if state.cmd.ProcessState != nil {
		return false
	}
	return state.cmd.Process.Signal(syscall.Signal(0)) == nil
}
