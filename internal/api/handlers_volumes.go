package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgallion1/apindex/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

const maxRequestBytes = 1 << 20

type indexRequest struct {
	Manifest  string   `json:"manifest"`
	Manifests []string `json:"manifests"`
}

type jobResult struct {
	Manifest string             `json:"manifest"`
	JobID    string             `json:"job_id,omitempty"`
	Status   pipeline.JobStatus `json:"status,omitempty"`
	PollURL  string             `json:"poll_url,omitempty"`
	Error    string             `json:"error,omitempty"`
}

func (s *Server) handleIndexVolumes(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if len(req.Manifests) == 0 {
		if strings.TrimSpace(req.Manifest) == "" {
			jsonError(w, "manifest or manifests is required", http.StatusBadRequest)
			return
		}
		res := s.submit(req.Manifest)
		if res.Error != "" {
			jsonError(w, res.Error, http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusAccepted, res)
		return
	}

	results := make([]jobResult, 0, len(req.Manifests))
	for _, uri := range req.Manifests {
		if strings.TrimSpace(uri) == "" {
			results = append(results, jobResult{Error: "empty manifest uri"})
			continue
		}
		results = append(results, s.submit(uri))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

func (s *Server) submit(uri string) jobResult {
	job := pipeline.NewJob(uri)
	if err := s.jobs.Submit(job); err != nil {
		s.log.Warn("job rejected", "manifest", uri, "error", err)
		return jobResult{Manifest: uri, Error: err.Error()}
	}
	return jobResult{
		Manifest: uri,
		JobID:    job.ID,
		Status:   pipeline.StatusQueued,
		PollURL:  fmt.Sprintf("/api/jobs/%s", job.ID),
	}
}

func (s *Server) handleDeleteVolume(w http.ResponseWriter, r *http.Request) {
	druid := chi.URLParam(r, "druid")
	err := s.volumes.DeleteVolume(r.Context(), druid)
	switch {
	case errors.Is(err, pipeline.ErrDeleteUnsupported):
		jsonError(w, err.Error(), http.StatusNotImplemented)
		return
	case err != nil:
		s.log.Error("delete volume failed", "volume", druid, "error", err)
		jsonError(w, "delete failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"druid": druid, "status": "deleted"})
}
