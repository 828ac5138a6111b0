package controlplane

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/supervisor"
)

const maxFlexibleSubreddits = 30

// handleStartFlexible implements POST /scrapers/start-flexible (spec §6):
// create-or-update a Scraper Instance from either a single subreddit or a
// bounded list, resolving credentials from a saved account or inline
// fields, and handing the result to the Supervisor to spawn.
func (s *Server) handleStartFlexible(w http.ResponseWriter, r *http.Request) {
	var req StartFlexibleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	scraperType, ok := parseScraperType(req.ScraperType)
	if !ok {
		writeError(w, http.StatusBadRequest, "scraper_type must be one of: posts, comments")
		return
	}

	subreddits := req.Subreddits
	if len(subreddits) == 0 && req.Subreddit != "" {
		subreddits = []string{req.Subreddit}
	}
	if len(subreddits) == 0 {
		writeError(w, http.StatusBadRequest, "subreddit or subreddits is required")
		return
	}
	if len(subreddits) > maxFlexibleSubreddits {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("subreddits exceeds the %d-subreddit limit", maxFlexibleSubreddits))
		return
	}

	credentialHandle, status, err := s.resolveCredentials(r.Context(), subreddits[0], scraperType, req)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	instance := &models.ScraperInstance{
		SubredditPrimary: subreddits[0],
		ScraperType:      scraperType,
		Subreddits:       subreddits,
		PostsLimit:       req.PostsLimit,
		Interval:         req.Interval,
		CommentBatch:     req.CommentBatch,
		SortingMethods:   req.SortingMethods,
		MaxCommentDepth:  req.MaxCommentDepth,
		CredentialHandle: credentialHandle,
		AutoRestart:      req.AutoRestart,
	}

	if err := s.orchestrator.Spawn(r.Context(), instance); err != nil {
		writeError(w, http.StatusInternalServerError, "spawn scraper instance: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toScraperView(instance))
}

// resolveCredentials picks a credential handle from either a saved account
// reference or inline credentials, optionally persisting the latter under
// save_account_as (spec §6: "either saved_account_name or inline
// credentials (with optional save_account_as)").
func (s *Server) resolveCredentials(ctx context.Context, primary string, scraperType models.ScraperType, req StartFlexibleRequest) (string, int, error) {
	if req.SavedAccountName != "" {
		account, err := s.store.GetAccount(ctx, req.SavedAccountName)
		if err != nil {
			return "", http.StatusInternalServerError, err
		}
		if account == nil {
			return "", http.StatusNotFound, fmt.Errorf("saved account %q not found", req.SavedAccountName)
		}
		return account.AccountName, http.StatusOK, nil
	}

	if req.Credentials == nil {
		return "", http.StatusBadRequest, fmt.Errorf("saved_account_name or credentials is required")
	}

	accountName := req.SaveAccountAs
	if accountName == "" {
		accountName = fmt.Sprintf("autogen-%s-%s", scraperType, primary)
	}

	encryptedSecret, err := s.cipher.Encrypt(req.Credentials.ClientSecret)
	if err != nil {
		return "", http.StatusInternalServerError, fmt.Errorf("encrypt client secret: %w", err)
	}
	encryptedPassword, err := s.cipher.Encrypt(req.Credentials.Password)
	if err != nil {
		return "", http.StatusInternalServerError, fmt.Errorf("encrypt password: %w", err)
	}

	account := &models.Account{
		AccountName:  accountName,
		ClientID:     req.Credentials.ClientID,
		ClientSecret: encryptedSecret,
		Username:     req.Credentials.Username,
		Password:     encryptedPassword,
		UserAgent:    req.Credentials.UserAgent,
	}
	if err := s.store.UpsertAccount(ctx, account); err != nil {
		return "", http.StatusInternalServerError, fmt.Errorf("persist account: %w", err)
	}
	return accountName, http.StatusOK, nil
}

// handleListScrapers implements GET /scrapers.
func (s *Server) handleListScrapers(w http.ResponseWriter, r *http.Request) {
	instances, err := s.store.GetAllScraperInstances(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]ScraperView, 0, len(instances))
	for i := range instances {
		views = append(views, toScraperView(&instances[i]))
	}
	writeJSON(w, http.StatusOK, ListScrapersResponse{Scrapers: views})
}

func (s *Server) instanceFromPath(w http.ResponseWriter, r *http.Request) (*models.ScraperInstance, bool) {
	key, ok := parseInstanceKey(mux.Vars(r)["s"])
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed scraper handle")
		return nil, false
	}
	instance, err := s.store.GetScraperInstance(r.Context(), key.SubredditPrimary, key.ScraperType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if instance == nil {
		writeError(w, http.StatusNotFound, "no such scraper instance")
		return nil, false
	}
	return instance, true
}

// handleStop implements POST /scrapers/{s}/stop.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	key, ok := parseInstanceKey(mux.Vars(r)["s"])
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed scraper handle")
		return
	}
	if err := s.orchestrator.Stop(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleRestart implements POST /scrapers/{s}/restart.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	key, ok := parseInstanceKey(mux.Vars(r)["s"])
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed scraper handle")
		return
	}
	if err := s.orchestrator.Restart(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarted"})
}

// handleAutoRestart implements PUT /scrapers/{s}/auto-restart?auto_restart=...
func (s *Server) handleAutoRestart(w http.ResponseWriter, r *http.Request) {
	key, ok := parseInstanceKey(mux.Vars(r)["s"])
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed scraper handle")
		return
	}
	autoRestart, err := strconv.ParseBool(r.URL.Query().Get("auto_restart"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "auto_restart must be a boolean")
		return
	}
	if err := s.orchestrator.SetAutoRestart(r.Context(), key, autoRestart); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"auto_restart": autoRestart})
}

// handleDeleteScraper implements DELETE /scrapers/{s}.
func (s *Server) handleDeleteScraper(w http.ResponseWriter, r *http.Request) {
	key, ok := parseInstanceKey(mux.Vars(r)["s"])
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed scraper handle")
		return
	}
	if err := s.orchestrator.Remove(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleScraperStatus implements GET /scrapers/{s}/status.
func (s *Server) handleScraperStatus(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instanceFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toScraperView(instance))
}

// handleScraperStats implements GET /scrapers/{s}/stats[?detailed=true].
func (s *Server) handleScraperStats(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instanceFromPath(w, r)
	if !ok {
		return
	}

	resp := ScraperStatsResponse{
		SubredditPrimary: instance.SubredditPrimary,
		Metrics:          instance.Metrics,
	}

	if r.URL.Query().Get("detailed") == "true" {
		counts := make(map[string]int64, len(instance.Subreddits))
		for _, name := range instance.Subreddits {
			count, err := s.store.GetPostsCount(r.Context(), name)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			counts[name] = count
		}
		resp.PerSubredditPostCounts = counts
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleScraperLogs implements GET /scrapers/{s}/logs?lines=N: tail the
// worker's captured stdout/stderr (supervisor.Config.LogDir) from the end.
func (s *Server) handleScraperLogs(w http.ResponseWriter, r *http.Request) {
	key, ok := parseInstanceKey(mux.Vars(r)["s"])
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed scraper handle")
		return
	}

	lines := 100
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = parsed
	}

	path := s.orchestrator.LogPath(key)
	if path == "" {
		writeError(w, http.StatusNotFound, "log capture is not enabled for this instance")
		return
	}

	tail, err := tailFile(path, lines)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "no log output captured yet")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"lines": tail})
}

// tailFile reads the last n lines of the file at path. It scans the whole
// file rather than seeking from the end — worker log files are rotated
// externally and stay small enough for this to be adequate.
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ring, nil
}

// handleRestartAllFailed implements POST /scrapers/restart-all-failed:
// bulk-restart every instance whose persisted status is failed, regardless
// of auto_restart (an operator override of the cooldown-gated liveness
// loop).
func (s *Server) handleRestartAllFailed(w http.ResponseWriter, r *http.Request) {
	instances, err := s.store.GetAllScraperInstances(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	restarted := 0
	for i := range instances {
		if instances[i].Status != models.StatusFailed {
			continue
		}
		key := supervisor.InstanceKey{SubredditPrimary: instances[i].SubredditPrimary, ScraperType: instances[i].ScraperType}
		if err := s.orchestrator.Restart(r.Context(), key); err != nil {
			s.log.Warn("restart-all-failed: restart errored", "handle", instanceKeyHandle(key), "error", err)
			continue
		}
		restarted++
	}
	writeJSON(w, http.StatusOK, map[string]int{"restarted": restarted})
}

// handleStatusSummary implements GET /scrapers/status-summary.
func (s *Server) handleStatusSummary(w http.ResponseWriter, r *http.Request) {
	instances, err := s.store.GetAllScraperInstances(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	counts := make(map[models.ScraperStatus]int)
	for i := range instances {
		counts[instances[i].Status]++
	}
	writeJSON(w, http.StatusOK, StatusSummaryResponse{Counts: counts, Total: len(instances)})
}
