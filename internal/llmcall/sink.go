package llmcall

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SinkConfig configures the write sink.
type SinkConfig struct {
	Store         *Store
	BatchSize     int           // Flush after N calls (default: 50)
	FlushInterval time.Duration // Or after duration (default: 2s)
	QueueSize     int           // Buffer size (default: 500)
	Logger        *slog.Logger
}

// Sink batches call writes to the Store off the request path.
type Sink struct {
	store  *Store
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	queue   chan *Call
	batch   []*Call
	batchMu sync.Mutex
	flushCh chan chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	started  atomic.Bool
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSink creates a new write sink.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 500
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sink{
		ctx:           ctx,
		cancel:        cancel,
		store:         cfg.Store,
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan *Call, cfg.QueueSize),
		batch:         make([]*Call, 0, cfg.BatchSize),
		flushCh:       make(chan chan struct{}),
	}
}

// Start begins processing writes. Cancelling ctx makes Flush fail fast;
// Stop still drains the queue.
func (s *Sink) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	context.AfterFunc(ctx, s.cancel)

	s.wg.Add(1)
	go s.runBatcher()
}

// Stop gracefully shuts down the sink, flushing remaining calls.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Debug("stopping history sink, flushing remaining calls")

		// Close queue to stop accepting new calls and signal shutdown
		close(s.queue)
		s.wg.Wait()
		s.cancel()
	})
}

// Send queues a call (fire-and-forget). A full queue drops the call with a warning.
func (s *Sink) Send(call *Call) {
	if call == nil {
		return
	}

	// Send on a closed queue panics; recover and drop.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("history sink closed, dropping call", "id", call.ID)
		}
	}()

	select {
	case s.queue <- call:
	default:
		s.logger.Warn("history queue full, dropping call", "id", call.ID, "request_id", call.RequestID)
	}
}

// Flush blocks until everything queued before the call has been written.
func (s *Sink) Flush(ctx context.Context) error {
	if !s.started.Load() {
		return fmt.Errorf("sink not started")
	}
	done := make(chan struct{})
	select {
	case s.flushCh <- done:
	case <-s.ctx.Done():
		return fmt.Errorf("sink closed")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runBatcher collects calls and flushes on size/time triggers.
func (s *Sink) runBatcher() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case call, ok := <-s.queue:
			if !ok {
				s.flushBatch()
				return
			}
			s.addToBatch(call)

		case <-ticker.C:
			s.flushBatch()

		case done := <-s.flushCh:
			s.drainQueue()
			s.flushBatch()
			close(done)
		}
	}
}

// drainQueue moves everything currently queued into the batch.
func (s *Sink) drainQueue() {
	for {
		select {
		case call, ok := <-s.queue:
			if !ok {
				return
			}
			s.addToBatch(call)
		default:
			return
		}
	}
}

// addToBatch adds a call to the current batch, flushing if full.
func (s *Sink) addToBatch(call *Call) {
	s.batchMu.Lock()
	s.batch = append(s.batch, call)
	shouldFlush := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if shouldFlush {
		s.flushBatch()
	}
}

// flushBatch writes the current batch in one transaction.
func (s *Sink) flushBatch() {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	calls := s.batch
	s.batch = make([]*Call, 0, s.batchSize)
	s.batchMu.Unlock()

	s.logger.Debug("flushing history batch", "count", len(calls))

	// Own deadline so Stop can still flush after s.ctx is cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Insert(ctx, calls...); err != nil {
		s.logger.Warn("failed to write call history", "count", len(calls), "error", err)
	}
}
