package controlplane

import "net/http"

// handleEmbeddingsStats implements GET /embeddings/stats.
func (s *Server) handleEmbeddingsStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountEmbeddingStatuses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, EmbeddingsStatsResponse{
		Pending:  counts["pending"],
		Complete: counts["complete"],
		Failed:   counts["failed"],
	})
}

// handleEmbeddingsWorkerStatus implements GET /embeddings/worker/status.
// enabled=false surfaces a provider misconfiguration without erroring
// (spec §7: "degrade gracefully ... surfaces enabled=false via its
// stats").
func (s *Server) handleEmbeddingsWorkerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, EmbeddingsWorkerStatusResponse{Enabled: s.enrichmentOn})
}

// handleEmbeddingsWorkerProcess implements POST /embeddings/worker/process:
// triggers one immediate enrichment batch outside the cron schedule.
func (s *Server) handleEmbeddingsWorkerProcess(w http.ResponseWriter, r *http.Request) {
	if !s.enrichmentOn || s.enrichment == nil {
		writeError(w, http.StatusServiceUnavailable, "enrichment worker is disabled")
		return
	}
	if err := s.enrichment.RunNow(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
