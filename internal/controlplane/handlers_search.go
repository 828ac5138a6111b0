package controlplane

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/redditclient"
)

const defaultSearchLimit = 10

// handleSearchSubreddits implements POST /search/subreddits: embeds the
// query text then runs Mongo Atlas `$vectorSearch` over subreddit_metadata
// (spec §6).
func (s *Server) handleSearchSubreddits(w http.ResponseWriter, r *http.Request) {
	if s.embedder == nil {
		writeError(w, http.StatusServiceUnavailable, "embedding provider is not configured")
		return
	}

	var req SearchSubredditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	vector, _, err := s.embedder.Embed(r.Context(), req.Query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "embed query: "+err.Error())
		return
	}

	docs, err := s.store.SearchSubredditsByEmbedding(r.Context(), vector, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "vector search: "+err.Error())
		return
	}

	hits := make([]SubredditSearchHit, 0, len(docs))
	for _, doc := range docs {
		hit := SubredditSearchHit{SubredditName: doc.SubredditName, Title: doc.Title}
		if doc.LLMEnrichment != nil {
			hit.AudienceProfile = doc.LLMEnrichment.AudienceProfile
		}
		hits = append(hits, hit)
	}
	writeJSON(w, http.StatusOK, SearchSubredditsResponse{Results: hits})
}

// handleDiscoverSubreddits implements POST /discover/subreddits?query&limit:
// runs a subreddit-name search against Reddit and upserts bare
// subreddit_metadata rows for anything discovered, which the Enrichment
// Worker's next cron tick then picks up (spec §6, §4.5).
func (s *Server) handleDiscoverSubreddits(w http.ResponseWriter, r *http.Request) {
	if s.discoverer == nil {
		writeError(w, http.StatusServiceUnavailable, "subreddit discovery is not configured")
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	rawURL := s.discoverer.GetSubredditSearchURL(query, limit)
	data, err := s.discoverer.FetchJSON(r.Context(), rawURL)
	if err != nil {
		writeError(w, http.StatusBadGateway, "reddit subreddit search: "+err.Error())
		return
	}

	discovered, err := redditclient.ParseSubredditSearch(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "parse subreddit search: "+err.Error())
		return
	}

	names := make([]string, 0, len(discovered))
	upserted := 0
	for _, d := range discovered {
		names = append(names, d.Name)
		metadata := &models.SubredditMetadata{
			SubredditName:      d.Name,
			Title:              d.Title,
			PublicDescription:  d.PublicDescription,
			AdvertiserCategory: d.AdvertiserCategory,
		}
		if _, err := s.store.UpsertSubredditMetadata(r.Context(), metadata); err != nil {
			s.log.Warn("discover: upsert metadata failed", "subreddit", d.Name, "error", err)
			continue
		}
		upserted++
	}

	writeJSON(w, http.StatusOK, DiscoverSubredditsResponse{Discovered: names, Upserted: upserted})
}
