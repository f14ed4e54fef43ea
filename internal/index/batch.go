package index

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/apindex/internal/record"
)

// ErrSinkClosed is returned by Add after Close.
var ErrSinkClosed = errors.New("index: sink closed")

// BatchConfig configures a BatchSink.
type BatchConfig struct {
	Client        *Client
	BatchSize     int           // Flush after N records (default: 100)
	FlushInterval time.Duration // Or after duration (default: 5s)
	QueueSize     int           // Buffer size (default: 1000)
	Logger        *slog.Logger
}

// BatchSink batches records into index update requests. Add only queues; a failed
// batch makes every later Add, and Close, return that failure.
type BatchSink struct {
	client *Client
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	queue   chan *record.Record
	batch   []*record.Record
	flushCh chan struct{}

	mu     sync.RWMutex // guards closed against Add sending on a closed queue
	closed bool

	errMu sync.Mutex
	err   error

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewBatchSink(cfg BatchConfig) *BatchSink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &BatchSink{
		client:        cfg.Client,
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan *record.Record, cfg.QueueSize),
		batch:         make([]*record.Record, 0, cfg.BatchSize),
		flushCh:       make(chan struct{}, 1),
	}
}

// Start begins processing queued records.
func (s *BatchSink) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.runBatcher()
}

// Add queues rec, blocking while the queue is full.
func (s *BatchSink) Add(rec *record.Record) error {
	if err := s.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- rec:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Flush asks the batcher to send the current batch now.
func (s *BatchSink) Flush() {
	select {
	case s.flushCh <- struct{}{}:
	default:
	}
}

// Close sends the remaining records, commits, and reports the first failure.
func (s *BatchSink) Close(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()

		s.wg.Wait()
		defer s.cancel()

		if s.Err() != nil {
			return
		}
		if err := s.client.Commit(ctx); err != nil {
			s.logger.Error("index commit failed", "error", err)
			s.setErr(err)
			return
		}
		s.logger.Debug("index committed")
	})
	return s.Err()
}

// Err returns the first batch failure, if any.
func (s *BatchSink) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *BatchSink) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// runBatcher collects records and flushes on size and time triggers.
func (s *BatchSink) runBatcher() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-s.queue:
			if !ok {
				s.flushBatch()
				return
			}
			s.batch = append(s.batch, rec)
			if len(s.batch) >= s.batchSize {
				s.flushBatch()
			}
		case <-ticker.C:
			s.flushBatch()
		case <-s.flushCh:
			s.flushBatch()
		}
	}
}

func (s *BatchSink) flushBatch() {
	if len(s.batch) == 0 {
		return
	}
	docs := s.batch
	s.batch = make([]*record.Record, 0, s.batchSize)

	if s.Err() != nil {
		s.logger.Warn("dropping batch after earlier failure", "count", len(docs))
		return
	}
	s.logger.Debug("flushing batch", "count", len(docs))
	if err := s.client.Add(s.ctx, docs); err != nil {
		s.logger.Error("index add failed", "count", len(docs), "first_id", docs[0].ID, "error", err)
		s.setErr(err)
	}
}
