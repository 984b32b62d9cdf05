package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"barrel-market-api/internal/logging"
	"barrel-market-api/internal/model"
	"barrel-market-api/internal/repository"
)

var (
	// ErrQueueClosed is returned by Enqueue after Stop.
	ErrQueueClosed = errors.New("ingest queue is closed")
	// ErrQueueNotStarted is returned by Enqueue before Start.
	ErrQueueNotStarted = errors.New("ingest queue is not started")
)

// Reporter receives every terminal outcome.
type Reporter interface {
	Report(o model.Outcome)
}

// Observer receives pipeline measurements.
type Observer interface {
	ObserveBatch(d time.Duration)
	ObserveFlush(inserted int, err error)
	SetQueueDepth(n int)
}

// Handle resolves with the outcome of one submission.
type Handle struct {
	done    chan struct{}
	once    sync.Once
	outcome model.Outcome
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) resolve(o model.Outcome) bool {
	resolved := false
	h.once.Do(func() {
		h.outcome = o
		close(h.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the outcome is known.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the outcome is known or ctx ends.
func (h *Handle) Wait(ctx context.Context) (model.Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return model.Outcome{}, ctx.Err()
	}
}

type job struct {
	sub    model.Submission
	handle *Handle
}

// QueueConfig configures an IngestQueue.
type QueueConfig struct {
	// FlushSize is the staged record count that triggers a flush after a batch.
	FlushSize int
	Reporters []Reporter
	Observer  Observer
	Logger    *slog.Logger
}

// QueueStats is a snapshot of the queue.
type QueueStats struct {
	Pending   int    `json:"pending"`
	Draining  bool   `json:"draining"`
	Batches   uint64 `json:"batches"`
	Persisted int64  `json:"persisted"`
	Skipped   int64  `json:"skipped"`
	Failed    int64  `json:"failed"`
}

// IngestQueue is the process-wide submission queue. A single drain loop
// takes everything queued, dispatches it in batches, and flushes the staged
// records to the store.
type IngestQueue struct {
	store      repository.ListingRepository
	processor  *Processor
	dispatcher *Dispatcher
	flushSize  int
	reporters  []Reporter
	observer   Observer
	log        *slog.Logger

	mu      sync.Mutex
	pending []*job
	started bool
	closed  bool

	draining atomic.Bool
	stage    *stage
	wg       sync.WaitGroup

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	persisted atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// NewIngestQueue creates a queue. Call Start before Enqueue.
func NewIngestQueue(store repository.ListingRepository, processor *Processor, dispatcher *Dispatcher, cfg QueueConfig) *IngestQueue {
	if cfg.FlushSize < 1 {
		cfg.FlushSize = dispatcher.BatchSize()
	}
	return &IngestQueue{
		store:      store,
		processor:  processor,
		dispatcher: dispatcher,
		flushSize:  cfg.FlushSize,
		reporters:  cfg.Reporters,
		observer:   cfg.Observer,
		log:        logging.Component(cfg.Logger, "ingest-queue"),
		stage:      newStage(),
	}
}

// Start enables Enqueue. Drain loops run under ctx until Stop.
func (q *IngestQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.started = true
	q.log.Info("ingest queue started", "batch_size", q.dispatcher.BatchSize(), "flush_size", q.flushSize)
}

// Stop rejects new submissions and waits for the active drain loop. If ctx
// ends first the loop is cancelled and its remaining submissions fail.
func (q *IngestQueue) Stop(ctx context.Context) error {
	var err error
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		started := q.started
		q.mu.Unlock()
		if !started {
			return
		}

		done := make(chan struct{})
		go func() {
			q.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			q.cancel()
			<-done
			err = ctx.Err()
		}
		q.cancel()
		q.log.Info("ingest queue stopped")
	})
	return err
}

// Enqueue appends sub and starts the drain loop if it is idle.
func (q *IngestQueue) Enqueue(sub model.Submission) (*Handle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if !q.started {
		return nil, ErrQueueNotStarted
	}

	j := &job{sub: sub, handle: newHandle()}
	q.pending = append(q.pending, j)
	q.setDepth(len(q.pending))

	if q.draining.CompareAndSwap(false, true) {
		q.wg.Add(1)
		go q.drain()
	}
	return j.handle, nil
}

// Stats returns a snapshot of the queue.
func (q *IngestQueue) Stats() QueueStats {
	q.mu.Lock()
	pending := len(q.pending)
	q.mu.Unlock()
	return QueueStats{
		Pending:   pending,
		Draining:  q.draining.Load(),
		Batches:   q.dispatcher.Batches(),
		Persisted: q.persisted.Load(),
		Skipped:   q.skipped.Load(),
		Failed:    q.failed.Load(),
	}
}

// drain runs cycles until the queue is empty. After releasing the flag it
// looks once more so a submission enqueued during release is not stranded.
func (q *IngestQueue) drain() {
	defer q.wg.Done()
	for {
		q.cycle()
		q.draining.Store(false)

		q.mu.Lock()
		empty := len(q.pending) == 0
		q.mu.Unlock()
		if empty || !q.draining.CompareAndSwap(false, true) {
			return
		}
	}
}

func (q *IngestQueue) takeAll() []*job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.pending
	q.pending = nil
	q.setDepth(0)
	return jobs
}

// cycle processes one snapshot of the queue.
func (q *IngestQueue) cycle() {
	ctx := q.ctx
	defer q.stage.reset()

	jobs := q.takeAll()
	for _, batch := range Partition(jobs, q.dispatcher.BatchSize()) {
		start := time.Now()
		errs := q.dispatcher.Dispatch(ctx, len(batch), func(ctx context.Context, apiKey string, k int) error {
			return q.process(ctx, apiKey, batch[k])
		})
		for k, err := range errs {
			if err != nil {
				q.resolve(batch[k], model.OutcomeFromError(batch[k].sub, err))
			}
		}
		if q.observer != nil {
			q.observer.ObserveBatch(time.Since(start))
		}

		if q.stage.len() >= q.flushSize {
			q.flush(ctx)
		}
	}
	q.flush(ctx)
}

// process stages the record for j. A returned error resolves j.
func (q *IngestQueue) process(ctx context.Context, apiKey string, j *job) error {
	rec, err := q.processor.Process(ctx, apiKey, j.sub)
	if err != nil {
		return err
	}
	if !q.stage.add(rec, j) {
		return fmt.Errorf("%w: already staged %s at %d,%d,%d", model.ErrDuplicate, rec.RecordDate, rec.X, rec.Y, rec.Z)
	}
	return nil
}

// flush writes the staged records in one transaction.
func (q *IngestQueue) flush(ctx context.Context) {
	items := q.stage.take()
	if len(items) == 0 {
		return
	}

	records := make([]*model.Record, len(items))
	for i, it := range items {
		records[i] = it.record
	}

	inserted, err := q.store.BulkInsert(ctx, records)
	if err != nil {
		q.log.Error("flush failed", "records", len(records), "error", err)
		if q.observer != nil {
			q.observer.ObserveFlush(0, err)
		}
		for _, it := range items {
			q.resolve(it.job, model.Failed(it.job.sub, fmt.Errorf("flush: %w", err)))
		}
		return
	}

	count := 0
	for i, it := range items {
		if inserted[i] {
			count++
			q.resolve(it.job, model.Persisted(it.job.sub, it.record))
			continue
		}
		q.resolve(it.job, model.Skipped(it.job.sub, model.ReasonDuplicate,
			fmt.Errorf("%w: constraint conflict at %d,%d,%d", model.ErrDuplicate, it.record.X, it.record.Y, it.record.Z)))
	}
	if q.observer != nil {
		q.observer.ObserveFlush(count, nil)
	}
	q.log.Debug("flushed", "records", len(records), "inserted", count)
}

func (q *IngestQueue) resolve(j *job, o model.Outcome) {
	if !j.handle.resolve(o) {
		return
	}

	switch o.Status {
	case model.StatusPersisted:
		q.persisted.Add(1)
	case model.StatusSkipped:
		q.skipped.Add(1)
		q.log.Info("submission skipped", "reason", o.Reason, "x", o.Submission.X, "y", o.Submission.Y, "z", o.Submission.Z)
	case model.StatusFailed:
		q.failed.Add(1)
		q.log.Warn("submission failed", "error", o.Err, "x", o.Submission.X, "y", o.Submission.Y, "z", o.Submission.Z)
	}

	for _, r := range q.reporters {
		r.Report(o)
	}
}

func (q *IngestQueue) setDepth(n int) {
	if q.observer != nil {
		q.observer.SetQueueDepth(n)
	}
}
