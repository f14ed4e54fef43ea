package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dgallion1/apindex/internal/index"
	"github.com/dgallion1/apindex/internal/segment"
	"github.com/dgallion1/apindex/internal/volume"
)

// Opener opens payload URIs; *source.Opener implements it.
type Opener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Finish flushes whatever a volume sink still buffers.
type Finish func(ctx context.Context) error

// SinkFactory returns the sink one volume's records go to.
type SinkFactory interface {
	VolumeSink(ctx context.Context, druid string) (segment.Sink, Finish, error)
}

// Worker indexes one volume per job.
type Worker struct {
	opener Opener
	sinks  SinkFactory
	log    *slog.Logger

	retryBase time.Duration
}

func NewWorker(opener Opener, sinks SinkFactory, log *slog.Logger) *Worker {
	return &Worker{opener: opener, sinks: sinks, log: log, retryBase: time.Second}
}

// Process loads the job's volume and runs it through the segmentation engine.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "manifest", job.Manifest)

	// Phase 1: manifest and sequence table
	job.SetStatus(StatusLoading, "manifest")
	m, err := w.loadManifest(ctx, job.Manifest)
	if err != nil {
		log.Error("manifest load failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "manifest")
		return
	}
	job.SetDruid(m.Druid)
	log = log.With("volume", m.Druid)
	vol := m.Context(log)

	job.SetStatus(StatusLoading, "sequences")
	seq, seqErr := w.loadSequences(ctx, m.ContentMetadata, log)
	if seqErr != nil {
		log.Warn("sequence table unavailable, page sequences omitted", "error", seqErr)
		job.AddError(seqErr.Error())
	}

	// Phase 2: segment and emit
	job.SetStatus(StatusIndexing, "segmenting")
	var stats segment.Stats
	for attempt := range MaxAttempts {
		stats, err = w.runVolume(ctx, m.TEI, vol, seq, log)
		if err == nil || !shouldRetry(err) || attempt == MaxAttempts-1 {
			break
		}
		log.Warn("retryable sink error, rerunning volume", "attempt", attempt, "error", err)
		select {
		case <-time.After(index.Backoff(w.retryBase, uint(attempt))):
		case <-ctx.Done():
			err = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}
	job.SetStats(stats)

	if err != nil {
		log.Error("volume failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "segmenting")
		return
	}
	log.Info("volume indexed",
		"pages", stats.Pages,
		"sections", stats.Sections,
		"discarded_pages", stats.DiscardedPages,
		"warnings", stats.Warnings,
		"errors", stats.Errors)

	if seqErr != nil || stats.Warnings > 0 || stats.Errors > 0 {
		job.SetStatus(StatusPartial, "done")
		return
	}
	job.SetStatus(StatusCompleted, "done")
}

func (w *Worker) loadManifest(ctx context.Context, uri string) (*volume.Manifest, error) {
	rc, err := w.opener.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	m, err := volume.LoadManifest(rc)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", uri, err)
	}
	m.Resolve(uri)
	return m, nil
}

func (w *Worker) loadSequences(ctx context.Context, uri string, log *slog.Logger) (volume.SequenceTable, error) {
	if uri == "" {
		return volume.SequenceTable{}, nil
	}
	rc, err := w.opener.Open(ctx, uri)
	if err != nil {
		return volume.SequenceTable{}, err
	}
	defer rc.Close()

	seq, err := volume.LoadSequences(rc, log)
	if err != nil {
		return volume.SequenceTable{}, fmt.Errorf("content metadata %s: %w", uri, err)
	}
	return seq, nil
}

func (w *Worker) runVolume(ctx context.Context, teiURI string, vol volume.Context, seq volume.SequenceTable, log *slog.Logger) (segment.Stats, error) {
	rc, err := w.opener.Open(ctx, teiURI)
	if err != nil {
		return segment.Stats{}, err
	}
	defer rc.Close()

	sink, finish, err := w.sinks.VolumeSink(ctx, vol.SourceID)
	if err != nil {
		return segment.Stats{}, fmt.Errorf("open sink: %w", err)
	}

	stats, runErr := segment.Run(rc, segment.Config{
		Volume:    vol,
		Sequences: seq,
		Sink:      sink,
		Logger:    log,
	})
	finishErr := finish(ctx)
	if runErr != nil {
		return stats, fmt.Errorf("segment %s: %w", teiURI, runErr)
	}
	if finishErr != nil {
		return stats, fmt.Errorf("finish sink: %w", finishErr)
	}
	return stats, nil
}
