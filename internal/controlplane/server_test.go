package controlplane_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reddit-fleet/controller/internal/controlplane"
	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/storage/storagemock"
	"github.com/reddit-fleet/controller/internal/supervisor"
)

// fakeOrchestrator is a func-field ScraperOrchestrator double.
type fakeOrchestrator struct {
	spawnFunc          func(ctx context.Context, instance *models.ScraperInstance) error
	stopFunc           func(ctx context.Context, key supervisor.InstanceKey) error
	restartFunc        func(ctx context.Context, key supervisor.InstanceKey) error
	removeFunc         func(ctx context.Context, key supervisor.InstanceKey) error
	setAutoRestartFunc func(ctx context.Context, key supervisor.InstanceKey, autoRestart bool) error
	logPathFunc        func(key supervisor.InstanceKey) string
}

func (f *fakeOrchestrator) Spawn(ctx context.Context, instance *models.ScraperInstance) error {
	if f.spawnFunc == nil {
		return nil
	}
	return f.spawnFunc(ctx, instance)
}
func (f *fakeOrchestrator) Stop(ctx context.Context, key supervisor.InstanceKey) error {
	if f.stopFunc == nil {
		return nil
	}
	return f.stopFunc(ctx, key)
}
func (f *fakeOrchestrator) Restart(ctx context.Context, key supervisor.InstanceKey) error {
	if f.restartFunc == nil {
		return nil
	}
	return f.restartFunc(ctx, key)
}
func (f *fakeOrchestrator) Remove(ctx context.Context, key supervisor.InstanceKey) error {
	if f.removeFunc == nil {
		return nil
	}
	return f.removeFunc(ctx, key)
}
func (f *fakeOrchestrator) SetAutoRestart(ctx context.Context, key supervisor.InstanceKey, autoRestart bool) error {
	if f.setAutoRestartFunc == nil {
		return nil
	}
	return f.setAutoRestartFunc(ctx, key, autoRestart)
}
func (f *fakeOrchestrator) LogPath(key supervisor.InstanceKey) string {
	if f.logPathFunc == nil {
		return ""
	}
	return f.logPathFunc(key)
}

// fakeCipher is a no-op CredentialCipher double: round-trips plaintext
// through a fixed prefix so tests can assert encryption was invoked.
type fakeCipher struct{}

func (fakeCipher) Encrypt(plaintext string) ([]byte, error) { return []byte("enc:" + plaintext), nil }
func (fakeCipher) Decrypt(sealed []byte) (string, error)    { return string(sealed)[4:], nil }

func newTestServer(store *storagemock.Store, orch *fakeOrchestrator) http.Handler {
	if orch == nil {
		orch = &fakeOrchestrator{}
	}
	server := controlplane.NewServer(orch, store, fakeCipher{}, nil, nil, nil, false)
	return controlplane.NewRouter(server)
}

func TestHealthReportsRunningAndTotalCounts(t *testing.T) {
	store := &storagemock.Store{
		PingFunc: func(ctx context.Context) error { return nil },
		GetAllScraperInstancesFunc: func(ctx context.Context) ([]models.ScraperInstance, error) {
			return []models.ScraperInstance{
				{Status: models.StatusRunning},
				{Status: models.StatusFailed},
			}, nil
		},
	}
	srv := newTestServer(store, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp controlplane.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunningScrapers != 1 || resp.TotalScrapers != 2 {
		t.Fatalf("unexpected counts: %+v", resp)
	}
}

func TestHealthDegradedWhenStorageUnreachable(t *testing.T) {
	store := &storagemock.Store{
		PingFunc: func(ctx context.Context) error { return context.DeadlineExceeded },
		GetAllScraperInstancesFunc: func(ctx context.Context) ([]models.ScraperInstance, error) {
			return nil, nil
		},
	}
	srv := newTestServer(store, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestStartFlexibleRejectsUnknownScraperType(t *testing.T) {
	srv := newTestServer(&storagemock.Store{}, nil)

	body := bytes.NewBufferString(`{"subreddit":"golang","scraper_type":"bogus"}`)
	req := httptest.NewRequest(http.MethodPost, "/scrapers/start-flexible", body)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartFlexibleRejectsTooManySubreddits(t *testing.T) {
	srv := newTestServer(&storagemock.Store{}, nil)

	subs := make([]string, 31)
	for i := range subs {
		subs[i] = "sub"
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"subreddits":   subs,
		"scraper_type": "posts",
		"credentials":  map[string]string{"client_id": "a", "client_secret": "b", "username": "u", "password": "p"},
	})
	req := httptest.NewRequest(http.MethodPost, "/scrapers/start-flexible", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartFlexibleWithInlineCredentialsSpawnsAndPersistsAccount(t *testing.T) {
	var upserted *models.Account
	var spawned *models.ScraperInstance
	store := &storagemock.Store{
		UpsertAccountFunc: func(ctx context.Context, account *models.Account) error {
			upserted = account
			return nil
		},
	}
	orch := &fakeOrchestrator{
		spawnFunc: func(ctx context.Context, instance *models.ScraperInstance) error {
			spawned = instance
			return nil
		},
	}
	srv := newTestServer(store, orch)

	payload, _ := json.Marshal(map[string]interface{}{
		"subreddit":    "golang",
		"scraper_type": "posts",
		"credentials": map[string]string{
			"client_id": "id", "client_secret": "secret", "username": "u", "password": "p", "user_agent": "ua",
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/scrapers/start-flexible", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if upserted == nil {
		t.Fatal("expected an account to be upserted")
	}
	if spawned == nil || spawned.CredentialHandle != upserted.AccountName {
		t.Fatalf("expected spawned instance to reference the upserted account, got %+v", spawned)
	}
}

func TestStopResolvesCompositeHandle(t *testing.T) {
	var stoppedKey supervisor.InstanceKey
	orch := &fakeOrchestrator{
		stopFunc: func(ctx context.Context, key supervisor.InstanceKey) error {
			stoppedKey = key
			return nil
		},
	}
	srv := newTestServer(&storagemock.Store{}, orch)

	req := httptest.NewRequest(http.MethodPost, "/scrapers/posts:golang/stop", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if stoppedKey.ScraperType != models.ScraperTypePosts || stoppedKey.SubredditPrimary != "golang" {
		t.Fatalf("unexpected key: %+v", stoppedKey)
	}
}

func TestStopRejectsMalformedHandle(t *testing.T) {
	srv := newTestServer(&storagemock.Store{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/scrapers/notvalid/stop", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScraperLogsReturns404WhenCaptureDisabled(t *testing.T) {
	orch := &fakeOrchestrator{
		logPathFunc: func(key supervisor.InstanceKey) string { return "" },
	}
	srv := newTestServer(&storagemock.Store{}, orch)

	req := httptest.NewRequest(http.MethodGet, "/scrapers/posts:golang/logs", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestEmbeddingsWorkerProcessDisabledWhenEnrichmentOff(t *testing.T) {
	srv := newTestServer(&storagemock.Store{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/embeddings/worker/process", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAccountsStatsReportsVaultSize(t *testing.T) {
	store := &storagemock.Store{
		GetAllAccountsFunc: func(ctx context.Context) ([]models.Account, error) {
			return []models.Account{{AccountName: "a"}, {AccountName: "b"}}, nil
		},
	}
	srv := newTestServer(store, nil)

	req := httptest.NewRequest(http.MethodGet, "/accounts/stats", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp controlplane.AccountsStatsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalAccounts != 2 {
		t.Fatalf("expected 2 accounts, got %d", resp.TotalAccounts)
	}
}
