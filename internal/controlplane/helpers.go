package controlplane

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/reddit-fleet/controller/internal/models"
	"github.com/reddit-fleet/controller/internal/supervisor"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// parseScraperType validates the request's scraper_type against the two
// values models.ScraperType recognizes.
func parseScraperType(raw string) (models.ScraperType, bool) {
	switch models.ScraperType(raw) {
	case models.ScraperTypePosts, models.ScraperTypeComments:
		return models.ScraperType(raw), true
	default:
		return "", false
	}
}

// parseInstanceKey decodes the "{s}" path parameter used across every
// /scrapers/{s}/... route. A Scraper Instance is keyed by the pair
// (subreddit_primary, scraper_type), so the control plane encodes it as a
// single "<scraper_type>:<subreddit_primary>" path segment rather than
// adding a second path parameter.
func parseInstanceKey(raw string) (supervisor.InstanceKey, bool) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return supervisor.InstanceKey{}, false
	}
	scraperType, ok := parseScraperType(parts[0])
	if !ok {
		return supervisor.InstanceKey{}, false
	}
	return supervisor.InstanceKey{SubredditPrimary: parts[1], ScraperType: scraperType}, true
}

// instanceKeyHandle is the inverse of parseInstanceKey, used to build the
// "{s}" segment for a ScraperView so list responses are directly usable
// as the next request's path parameter.
func instanceKeyHandle(k supervisor.InstanceKey) string {
	return fmt.Sprintf("%s:%s", k.ScraperType, k.SubredditPrimary)
}
