package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the volume indexing pipeline.
type Orchestrator struct {
	jobs    *JobStore
	queue   chan *Job
	worker  *Worker
	log     *slog.Logger
	workers int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OrchestratorConfig sizes the worker pool.
type OrchestratorConfig struct {
	Workers      int
	MaxQueueSize int
	JobTTL       time.Duration
}

func NewOrchestrator(cfg OrchestratorConfig, w *Worker, log *slog.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	return &Orchestrator{
		jobs:    NewJobStore(cfg.JobTTL),
		queue:   make(chan *Job, cfg.MaxQueueSize),
		worker:  w,
		log:     log,
		workers: cfg.Workers,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.worker.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", cap(o.queue))
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// IndexAll runs the manifests at uris through w, at most parallel at a time, and
// returns one snapshot per manifest in input order. A failed volume does not stop
// the others; the only error is ctx's.
func IndexAll(ctx context.Context, w *Worker, uris []string, parallel int) ([]JobSnapshot, error) {
	if parallel <= 0 {
		parallel = 1
	}
	jobs := make([]*Job, len(uris))
	for i, uri := range uris {
		jobs[i] = NewJob(uri)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, job := range jobs {
		g.Go(func() error {
			if gctx.Err() != nil {
				job.AddError(gctx.Err().Error())
				job.SetStatus(StatusFailed, "canceled")
				return nil
			}
			w.Process(gctx, job)
			return nil
		})
	}
	_ = g.Wait()

	snaps := make([]JobSnapshot, len(jobs))
	for i, job := range jobs {
		snaps[i] = job.Snapshot()
	}
	return snaps, ctx.Err()
}
