package controlplane

import (
	"net/http"

	"github.com/reddit-fleet/controller/internal/models"
)

// handleHealth implements GET /health: DB connectivity, counts, and the
// proportion of Scraper Instances currently running.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	databaseOK := s.store.Ping(r.Context()) == nil

	var running, total int
	if instances, err := s.store.GetAllScraperInstances(r.Context()); err == nil {
		total = len(instances)
		for i := range instances {
			if instances[i].Status == models.StatusRunning {
				running++
			}
		}
	}

	status := "ok"
	httpStatus := http.StatusOK
	if !databaseOK {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:          status,
		DatabaseOK:      databaseOK,
		RunningScrapers: running,
		TotalScrapers:   total,
	})
}
