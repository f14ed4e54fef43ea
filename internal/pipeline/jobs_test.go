package pipeline

import (
	"testing"
	"time"

	"github.com/dgallion1/apindex/internal/segment"
)

func TestNewJob(t *testing.T) {
	a, b := NewJob("s3://ap/a.yaml"), NewJob("s3://ap/a.yaml")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if a.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, a.Status)
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusLoading, "manifest"},
		{StatusLoading, "sequences"},
		{StatusIndexing, "segmenting"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("sequence table unavailable")
	job.AddError("sink failed")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "sequence table unavailable" {
		t.Errorf("expected first error %q, got %q", "sequence table unavailable", snap.Progress.Errors[0])
	}
}

func TestJob_SetStats(t *testing.T) {
	job := &Job{ID: "stats-test"}
	job.SetStats(segment.Stats{Pages: 412, Sections: 9, DiscardedPages: 3, Warnings: 17})

	snap := job.Snapshot()
	if snap.Progress.Pages != 412 || snap.Progress.Sections != 9 {
		t.Errorf("expected 412 pages and 9 sections, got %+v", snap.Progress)
	}
	if snap.Progress.DiscardedPages != 3 || snap.Progress.Warnings != 17 {
		t.Errorf("expected 3 discarded and 17 warnings, got %+v", snap.Progress)
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if snap.Done() {
		t.Error("expected job without status not to be done")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	store.Put(&Job{ID: "old", UpdatedAt: time.Now()})
	time.Sleep(100 * time.Millisecond)
	store.Put(&Job{ID: "new", UpdatedAt: time.Now()})

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}
