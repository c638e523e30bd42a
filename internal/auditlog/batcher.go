package auditlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status classifies a log entry.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusWarning Status = "warning"
	StatusInfo    Status = "info"
)

// Entry is one structured audit record. Owned by the batcher queue from
// creation until successful flush or permanent drop.
type Entry struct {
	Action     string
	Status     Status
	Detail     string
	Metadata   map[string]any
	Timestamp  time.Time
	RetryCount int
}

// Sink persists a batch of entries. A failed persist must leave the batch
// unwritten; partial writes are the sink's problem to avoid.
type Sink interface {
	PersistLogBatch(ctx context.Context, entries []Entry) error
}

// Config holds batcher configuration.
type Config struct {
	FlushInterval time.Duration // Flush cadence
	BatchSize     int           // Max entries per flush
	MaxRetries    int           // Per-entry retry ceiling before drop
	MaxQueue      int           // Queue bound; oldest entries drop beyond it
	// PersistDisabled keeps the queue draining but skips the sink. The
	// upstream system shipped both a persisting and a non-persisting
	// logger variant; this flag makes the choice explicit.
	PersistDisabled bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 5 * time.Second,
		BatchSize:     50,
		MaxRetries:    3,
		MaxQueue:      10000,
	}
}

// Metrics counts batcher activity.
type Metrics struct {
	Enqueued  int64
	Persisted int64
	Flushes   int64
	Failures  int64
	Dropped   int64
}

// Batcher accumulates entries and flushes them to the sink in FIFO batches.
// Log never blocks on persistence.
type Batcher struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger

	mu       sync.Mutex
	queue    []Entry
	flushing bool
	metrics  Metrics

	// Out-of-cycle flush request, coalesced
	kick chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBatcher creates an audit log batcher.
func NewBatcher(cfg Config, sink Sink, logger *slog.Logger) *Batcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		queue:  make([]Entry, 0, cfg.BatchSize),
		kick:   make(chan struct{}, 1),
	}
}

// Start begins the flush loop.
func (b *Batcher) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go b.run()

	b.logger.Info("audit batcher started",
		"flush_interval", b.cfg.FlushInterval,
		"batch_size", b.cfg.BatchSize,
		"persist", !b.cfg.PersistDisabled,
	)
	return nil
}

// Stop drains the loop and performs a final flush bounded by ctx.
func (b *Batcher) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("audit batcher stop timed out")
		return ctx.Err()
	}

	// Final flush of whatever remains
	for b.pendingCount() > 0 {
		if !b.flush(ctx) {
			break
		}
	}

	b.logger.Info("audit batcher stopped")
	return nil
}

// Log appends an entry to the queue and returns immediately. Entries with
// error status additionally request an out-of-cycle flush.
func (b *Batcher) Log(action string, status Status, detail string, metadata map[string]any) {
	entry := Entry{
		Action:    action,
		Status:    status,
		Detail:    detail,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	if b.cfg.MaxQueue > 0 && len(b.queue) >= b.cfg.MaxQueue {
		// Backpressure: shed the oldest entry
		b.queue = b.queue[1:]
		b.metrics.Dropped++
		b.logger.Warn("audit queue full, dropping oldest entry")
	}
	b.queue = append(b.queue, entry)
	b.metrics.Enqueued++
	b.mu.Unlock()

	if status == StatusError {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Stats returns current metrics.
func (b *Batcher) Stats() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

func (b *Batcher) pendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// run flushes on a fixed cadence and on out-of-cycle kicks.
func (b *Batcher) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.flush(b.ctx)
		case <-b.kick:
			b.flush(b.ctx)
		}
	}
}

// flush drains up to BatchSize entries and attempts one batch write. A
// flush arriving while another is in flight is a no-op — the guard keeps
// any entry from ever appearing in two batches. Returns false when there
// was nothing to do.
func (b *Batcher) flush(ctx context.Context) bool {
	b.mu.Lock()
	if b.flushing || len(b.queue) == 0 {
		b.mu.Unlock()
		return false
	}
	b.flushing = true

	n := len(b.queue)
	if n > b.cfg.BatchSize {
		n = b.cfg.BatchSize
	}
	batch := make([]Entry, n)
	copy(batch, b.queue[:n])
	b.queue = b.queue[n:]
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.flushing = false
		b.mu.Unlock()
	}()

	if b.cfg.PersistDisabled {
		b.mu.Lock()
		b.metrics.Flushes++
		b.mu.Unlock()
		b.logger.Debug("persistence disabled, discarding batch", "count", len(batch))
		return true
	}

	if err := b.sink.PersistLogBatch(ctx, batch); err != nil {
		b.requeue(batch, err)
		return true
	}

	b.mu.Lock()
	b.metrics.Flushes++
	b.metrics.Persisted += int64(len(batch))
	b.mu.Unlock()

	b.logger.Debug("flushed audit batch", "count", len(batch))
	return true
}

// requeue returns a failed batch to the front of the queue in order.
// Entries past their retry ceiling are dropped; the drop is recorded on
// the plain logger only, never back through the batcher.
func (b *Batcher) requeue(batch []Entry, cause error) {
	keep := batch[:0]
	dropped := 0
	for i := range batch {
		batch[i].RetryCount++
		if batch[i].RetryCount > b.cfg.MaxRetries {
			dropped++
			b.logger.Warn("audit entry dropped after retries",
				"action", batch[i].Action,
				"retries", batch[i].RetryCount-1,
			)
			continue
		}
		keep = append(keep, batch[i])
	}

	b.mu.Lock()
	b.metrics.Failures++
	b.metrics.Dropped += int64(dropped)
	b.queue = append(append(make([]Entry, 0, len(keep)+len(b.queue)), keep...), b.queue...)
	b.mu.Unlock()

	b.logger.Warn("audit batch write failed, requeued",
		"error", cause,
		"requeued", len(keep),
		"dropped", dropped,
	)
}
