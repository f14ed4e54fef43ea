package api

import (
	"net/http"
)

func (s *Server) handleIndexStats(w http.ResponseWriter, r *http.Request) {
	stats := s.volumes.IndexStats()
	if stats == nil {
		jsonError(w, "index stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_depth": s.jobs.QueueDepth(),
		"stats":       stats.Snapshot(),
	})
}
