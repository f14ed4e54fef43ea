package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/apindex/internal/index"
	"github.com/dgallion1/apindex/internal/pipeline"
)

const testKey = "secret"

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]*pipeline.Job
	full bool
}

func (f *fakeJobs) Submit(job *pipeline.Job) error {
	if f.full {
		return errors.New("job queue is full (0)")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobs) GetJob(id string) *pipeline.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id]
}

func (f *fakeJobs) QueueDepth() int { return len(f.jobs) }

type fakeVolumes struct {
	deleted []string
	err     error
	stats   *index.Stats
}

func (f *fakeVolumes) DeleteVolume(_ context.Context, druid string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, druid)
	return nil
}

func (f *fakeVolumes) IndexStats() *index.Stats { return f.stats }

func newTestServer() (*Server, *fakeJobs, *fakeVolumes) {
	jobs := &fakeJobs{jobs: map[string]*pipeline.Job{}}
	vols := &fakeVolumes{}
	s := NewServer(jobs, vols, slog.New(slog.DiscardHandler), Config{APIKey: testKey, CORSOrigins: []string{"*"}})
	return s, jobs, vols
}

func do(t *testing.T, s *Server, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	s, _, _ := newTestServer()
	rec := do(t, s, http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	s, _, _ := newTestServer()

	rec := do(t, s, http.MethodGet, "/api/jobs/x", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/x", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", rec.Code)
	}
}

func TestAuth_EmptyKeyRejectsAll(t *testing.T) {
	s := NewServer(&fakeJobs{jobs: map[string]*pipeline.Job{}}, &fakeVolumes{}, slog.New(slog.DiscardHandler), Config{})
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/x", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestIndexVolume_Single(t *testing.T) {
	s, jobs, _ := newTestServer()
	rec := do(t, s, http.MethodPost, "/api/volumes", `{"manifest":"s3://ap/76/manifest.yaml"}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}

	var res jobResult
	decode(t, rec, &res)
	if res.JobID == "" || res.PollURL != "/api/jobs/"+res.JobID {
		t.Errorf("expected job id and poll url, got %+v", res)
	}
	if jobs.GetJob(res.JobID) == nil {
		t.Error("expected job to be submitted")
	}
}

func TestIndexVolume_Batch(t *testing.T) {
	s, jobs, _ := newTestServer()
	rec := do(t, s, http.MethodPost, "/api/volumes", `{"manifests":["a.yaml","","b.yaml"]}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	var body struct {
		Jobs []jobResult `json:"jobs"`
	}
	decode(t, rec, &body)
	if len(body.Jobs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(body.Jobs))
	}
	if body.Jobs[1].Error == "" {
		t.Error("expected error for empty manifest uri")
	}
	if len(jobs.jobs) != 2 {
		t.Errorf("expected 2 submitted jobs, got %d", len(jobs.jobs))
	}
}

func TestIndexVolume_BadRequests(t *testing.T) {
	s, _, _ := newTestServer()
	tests := []struct {
		name string
		body string
	}{
		{"not json", `manifest=x`},
		{"no manifest", `{}`},
		{"blank manifest", `{"manifest":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/volumes", tt.body, true)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestIndexVolume_QueueFull(t *testing.T) {
	s, jobs, _ := newTestServer()
	jobs.full = true
	rec := do(t, s, http.MethodPost, "/api/volumes", `{"manifest":"a.yaml"}`, true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestJobStatus(t *testing.T) {
	s, jobs, _ := newTestServer()
	job := pipeline.NewJob("a.yaml")
	job.SetDruid("wb486pv8998")
	job.SetStatus(pipeline.StatusIndexing, "segmenting")
	_ = jobs.Submit(job)

	rec := do(t, s, http.MethodGet, "/api/jobs/"+job.ID, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap pipeline.JobSnapshot
	decode(t, rec, &snap)
	if snap.Druid != "wb486pv8998" || snap.Status != pipeline.StatusIndexing {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	rec = do(t, s, http.MethodGet, "/api/jobs/missing", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteVolume(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"deleted", nil, http.StatusOK},
		{"unsupported", pipeline.ErrDeleteUnsupported, http.StatusNotImplemented},
		{"backend down", errors.New("delete volume: 503"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, vols := newTestServer()
			vols.err = tt.err
			rec := do(t, s, http.MethodDelete, "/api/volumes/wb486pv8998", "", true)
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
			if tt.err == nil && (len(vols.deleted) != 1 || vols.deleted[0] != "wb486pv8998") {
				t.Errorf("expected wb486pv8998 deleted, got %v", vols.deleted)
			}
		})
	}
}

func TestIndexStats(t *testing.T) {
	s, _, vols := newTestServer()
	rec := do(t, s, http.MethodGet, "/api/stats/index", "", true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without an index sink, got %d", rec.Code)
	}

	vols.stats = index.NewStats(time.Hour)
	vols.stats.Record(40)
	vols.stats.AddDocs(12)
	rec = do(t, s, http.MethodGet, "/api/stats/index", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Stats index.StatsSnapshot `json:"stats"`
	}
	decode(t, rec, &body)
	if body.Stats.Docs != 12 || body.Stats.Count != 1 {
		t.Errorf("unexpected stats %+v", body.Stats)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodOptions, "/api/volumes", nil)
	req.Header.Set("Origin", "http://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected allow origin *, got %q", got)
	}
}
