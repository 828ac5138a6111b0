package supervisor_test

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/storage/storagemock"
	"github.com/reddit-fleet/controller/internal/supervisor"
)

func testConfig() supervisor.Config {
	return supervisor.Config{
		CheckInterval:   100 * time.Millisecond,
		RestartDelay:    time.Millisecond,
		RestartCooldown: time.Minute,
		WorkerBinary:    "/bin/true",
		MaxSubreddits:   25,
	}
}

func TestReconcileRehydratesIndexFromStorage(t *testing.T) {
	store := &storagemock.Store{
		GetAllScraperInstancesFunc: func(ctx context.Context) ([]models.ScraperInstance, error) {
			return []models.ScraperInstance{
				{ID: primitive.NewObjectID(), SubredditPrimary: "golang", ScraperType: models.ScraperTypePosts, Status: models.StatusRunning},
			}, nil
		},
		SetAutoRestartFunc: func(ctx context.Context, id primitive.ObjectID, autoRestart bool) error { return nil },
	}

	sup := supervisor.New(testConfig(), store)
	if err := sup.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}

	key := supervisor.InstanceKey{SubredditPrimary: "golang", ScraperType: models.ScraperTypePosts}
	if err := sup.SetAutoRestart(context.Background(), key, true); err != nil {
		t.Fatalf("expected reconciled instance in the index, got %v", err)
	}
}

func TestSpawnRejectsTooManySubreddits(t *testing.T) {
	store := &storagemock.Store{}
	cfg := testConfig()
	cfg.MaxSubreddits = 2
	sup := supervisor.New(cfg, store)

	instance := &models.ScraperInstance{
		ID:               primitive.NewObjectID(),
		SubredditPrimary: "golang",
		ScraperType:      models.ScraperTypePosts,
		Subreddits:       []string{"golang", "rust", "python"},
	}

	err := sup.Spawn(context.Background(), instance)
	if err == nil {
		t.Fatal("expected error for too many subreddits, got nil")
	}
}

func TestSpawnStartsProcessAndPersistsRunningStatus(t *testing.T) {
	var statuses []models.ScraperStatus
	var handleSet string

	store := &storagemock.Store{
		UpsertScraperInstanceFunc: func(ctx context.Context, instance *models.ScraperInstance) error {
			return nil
		},
		UpdateScraperHandleFunc: func(ctx context.Context, id primitive.ObjectID, handle string) error {
			handleSet = handle
			return nil
		},
		UpdateScraperStatusFunc: func(ctx context.Context, id primitive.ObjectID, status models.ScraperStatus, lastError string) error {
			statuses = append(statuses, status)
			return nil
		},
	}

	sup := supervisor.New(testConfig(), store)
	instance := &models.ScraperInstance{
		ID:               primitive.NewObjectID(),
		SubredditPrimary: "golang",
		ScraperType:      models.ScraperTypePosts,
		Subreddits:       []string{"golang"},
	}

	if err := sup.Spawn(context.Background(), instance); err != nil {
		t.Fatalf("Spawn returned error: %v", err)
	}

	if len(statuses) == 0 || statuses[len(statuses)-1] != models.StatusRunning {
		t.Errorf("expected final status running, got %v", statuses)
	}
	if handleSet == "" {
		t.Error("expected a container handle to be persisted")
	}
}

func TestStopUnknownInstanceErrors(t *testing.T) {
	sup := supervisor.New(testConfig(), &storagemock.Store{})
	err := sup.Stop(context.Background(), supervisor.InstanceKey{SubredditPrimary: "golang", ScraperType: models.ScraperTypePosts})
	if err == nil {
		t.Fatal("expected error stopping an instance the supervisor never spawned")
	}
}

func TestStopTerminatesAndPersistsStoppedStatus(t *testing.T) {
	var finalStatus models.ScraperStatus

	store := &storagemock.Store{
		UpsertScraperInstanceFunc: func(ctx context.Context, instance *models.ScraperInstance) error { return nil },
		UpdateScraperHandleFunc:   func(ctx context.Context, id primitive.ObjectID, handle string) error { return nil },
		UpdateScraperStatusFunc: func(ctx context.Context, id primitive.ObjectID, status models.ScraperStatus, lastError string) error {
			finalStatus = status
			return nil
		},
	}

	sup := supervisor.New(testConfig(), store)
	instance := &models.ScraperInstance{
		ID:               primitive.NewObjectID(),
		SubredditPrimary: "golang",
		ScraperType:      models.ScraperTypePosts,
		Subreddits:       []string{"golang"},
	}
	if err := sup.Spawn(context.Background(), instance); err != nil {
		t.Fatalf("Spawn returned error: %v", err)
	}

	key := supervisor.InstanceKey{SubredditPrimary: "golang", ScraperType: models.ScraperTypePosts}
	if err := sup.Stop(context.Background(), key); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if finalStatus != models.StatusStopped {
		t.Errorf("expected status stopped, got %s", finalStatus)
	}
}

func TestSetAutoRestartPersistsFlag(t *testing.T) {
	var persisted bool
	var calledWith bool

	store := &storagemock.Store{
		UpsertScraperInstanceFunc: func(ctx context.Context, instance *models.ScraperInstance) error { return nil },
		UpdateScraperHandleFunc:   func(ctx context.Context, id primitive.ObjectID, handle string) error { return nil },
		UpdateScraperStatusFunc:   func(ctx context.Context, id primitive.ObjectID, status models.ScraperStatus, lastError string) error { return nil },
		SetAutoRestartFunc: func(ctx context.Context, id primitive.ObjectID, autoRestart bool) error {
			persisted = true
			calledWith = autoRestart
			return nil
		},
	}

	sup := supervisor.New(testConfig(), store)
	instance := &models.ScraperInstance{
		ID:               primitive.NewObjectID(),
		SubredditPrimary: "golang",
		ScraperType:      models.ScraperTypePosts,
		Subreddits:       []string{"golang"},
	}
	if err := sup.Spawn(context.Background(), instance); err != nil {
		t.Fatalf("Spawn returned error: %v", err)
	}

	key := supervisor.InstanceKey{SubredditPrimary: "golang", ScraperType: models.ScraperTypePosts}
	if err := sup.SetAutoRestart(context.Background(), key, true); err != nil {
		t.Fatalf("SetAutoRestart returned error: %v", err)
	}
	if !persisted || !calledWith {
		t.Error("expected auto_restart=true to be persisted")
	}
}

func TestRemoveDeletesInstanceAndForgetsKey(t *testing.T) {
	var deleted bool

	store := &storagemock.Store{
		UpsertScraperInstanceFunc: func(ctx context.Context, instance *models.ScraperInstance) error { return nil },
		UpdateScraperHandleFunc:   func(ctx context.Context, id primitive.ObjectID, handle string) error { return nil },
		UpdateScraperStatusFunc:   func(ctx context.Context, id primitive.ObjectID, status models.ScraperStatus, lastError string) error { return nil },
		DeleteScraperInstanceFunc: func(ctx context.Context, id primitive.ObjectID) error {
			deleted = true
			return nil
		},
	}

	sup := supervisor.New(testConfig(), store)
	instance := &models.ScraperInstance{
		ID:               primitive.NewObjectID(),
		SubredditPrimary: "golang",
		ScraperType:      models.ScraperTypePosts,
		Subreddits:       []string{"golang"},
	}
	if err := sup.Spawn(context.Background(), instance); err != nil {
		t.Fatalf("Spawn returned error: %v", err)
	}

	key := supervisor.InstanceKey{SubredditPrimary: "golang", ScraperType: models.ScraperTypePosts}
	if err := sup.Remove(context.Background(), key); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if !deleted {
		t.Error("expected DeleteScraperInstance to be called")
	}

	if err := sup.Stop(context.Background(), key); err == nil {
		t.Error("expected Stop on a removed instance to error")
	}
}
