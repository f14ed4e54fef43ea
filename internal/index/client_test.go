package index

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/apindex/internal/fields"
	"github.com/dgallion1/apindex/internal/record"
)

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{
		URL:        url,
		APIKey:     "secret",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
}

func testRecord(id string) *record.Record {
	m := fields.NewMap()
	fields.Assign(slog.New(slog.DiscardHandler), m, fields.Druid, "wb486pv8998")
	return &record.Record{ID: id, Kind: record.KindPage, Fields: m}
}

func TestClient_AddSendsJSONWithBearer(t *testing.T) {
	var gotAuth, gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL + "/solr/ap/")
	if err := c.Add(context.Background(), []*record.Record{testRecord("p1")}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/solr/ap/update" {
		t.Errorf("expected /solr/ap/update, got %q", gotPath)
	}
	want := `[{"id":"p1","druid_ssi":"wb486pv8998"}]`
	if gotBody != want {
		t.Errorf("expected %s, got %s", want, gotBody)
	}
	if snap := c.Stats().Snapshot(); snap.Docs != 1 || snap.Count != 1 {
		t.Errorf("expected 1 doc and 1 sample, got %+v", snap)
	}
}

func TestClient_RetriesServiceUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if err := c.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
	if snap := c.Stats().Snapshot(); snap.Retries != 2 || snap.Failures != 0 {
		t.Errorf("expected 2 retries and no failures, got %+v", snap)
	}
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := newTestClient(server.URL).Commit(context.Background())
	var retryErr *RetryableError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryableError, got %v", err)
	}
	if retryErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", retryErr.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestClient_DoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown field", http.StatusBadRequest)
	}))
	defer server.Close()

	err := newTestClient(server.URL).Add(context.Background(), []*record.Record{testRecord("p1")})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Errorf("expected non-retryable error, got %v", err)
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("expected status in error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestClient_DeleteVolume(t *testing.T) {
	var body map[string]map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).DeleteVolume(context.Background(), "wb486pv8998"); err != nil {
		t.Fatalf("DeleteVolume: %v", err)
	}
	if got := body["delete"]["query"]; got != `druid_ssi:"wb486pv8998"` {
		t.Errorf("expected delete query, got %q", got)
	}
}

func TestClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/admin/ping" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestBackoffCapped(t *testing.T) {
	if d := Backoff(time.Second, 0); d < time.Second || d >= 1500*time.Millisecond {
		t.Errorf("expected 1s plus jitter, got %v", d)
	}
	if d := Backoff(time.Second, 10); d < maxBackoff || d >= maxBackoff*3/2 {
		t.Errorf("expected capped backoff, got %v", d)
	}
}

// updateRecorder is a fake index that records update request bodies.
type updateRecorder struct {
	mu      sync.Mutex
	batches []int
	commits int
	status  int
}

func (u *updateRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.status != 0 {
		http.Error(w, "rejected", u.status)
		return
	}
	if strings.HasPrefix(string(b), "[") {
		var docs []json.RawMessage
		_ = json.Unmarshal(b, &docs)
		u.batches = append(u.batches, len(docs))
	} else if strings.Contains(string(b), `"commit"`) {
		u.commits++
	}
	w.WriteHeader(http.StatusOK)
}

func TestBatchSink_FlushesOnSizeAndClose(t *testing.T) {
	rec := &updateRecorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	s := NewBatchSink(BatchConfig{
		Client:        newTestClient(server.URL),
		BatchSize:     2,
		FlushInterval: time.Hour,
		Logger:        slog.New(slog.DiscardHandler),
	})
	s.Start(context.Background())
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		if err := s.Add(testRecord(id)); err != nil {
			t.Fatalf("Add %s: %v", id, err)
		}
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.batches) != 3 || rec.batches[0] != 2 || rec.batches[1] != 2 || rec.batches[2] != 1 {
		t.Errorf("expected batches [2 2 1], got %v", rec.batches)
	}
	if rec.commits != 1 {
		t.Errorf("expected 1 commit, got %d", rec.commits)
	}
	if err := s.Add(testRecord("p6")); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("expected ErrSinkClosed, got %v", err)
	}
}

func TestBatchSink_FailureSkipsCommit(t *testing.T) {
	rec := &updateRecorder{status: http.StatusBadRequest}
	server := httptest.NewServer(rec)
	defer server.Close()

	s := NewBatchSink(BatchConfig{
		Client:        newTestClient(server.URL),
		BatchSize:     1,
		FlushInterval: time.Hour,
		Logger:        slog.New(slog.DiscardHandler),
	})
	s.Start(context.Background())
	_ = s.Add(testRecord("p1"))

	if err := s.Close(context.Background()); err == nil {
		t.Fatal("expected Close to report the failed batch")
	}
	if rec.commits != 0 {
		t.Errorf("expected no commit, got %d", rec.commits)
	}
}
