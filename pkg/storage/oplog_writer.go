package storage

import (
	"time"

	"go.uber.org/zap"
)

// OpLogWriter is the bounded in-memory queue in front of the operation
// log, drained by a background goroutine into Store in batches of up to
// batchSize rows (spec.md §4.7: "batched inserts of up to ~5000 rows").
// Mirrors the persistence package's DBSink queue/flush shape
// (pkg/core/persist/db_sink.go) since both are async, back-pressured
// Pebble writers — this one just owns the operation_log table instead
// of the event-history tables.
type OpLogWriter struct {
	store      *Store
	queue      chan OpLogRow
	cap        int
	batch      int
	flushEvery time.Duration
	log        *zap.SugaredLogger
	closed     chan struct{}
}

// NewOpLogWriter starts a writer with the given queue capacity and
// batch size. Call Run in its own goroutine before traffic starts.
func NewOpLogWriter(store *Store, queueCap, batchSize int, flushEvery time.Duration, log *zap.SugaredLogger) *OpLogWriter {
	return &OpLogWriter{
		store:      store,
		queue:      make(chan OpLogRow, queueCap),
		cap:        queueCap,
		batch:      batchSize,
		flushEvery: flushEvery,
		log:        log,
		closed:     make(chan struct{}),
	}
}

// Enqueue submits one row for durable append. Returns false if the
// queue is full — the caller (Controller.checkServiceAvailable) should
// already have refused the request before reaching here, so this is a
// last-resort guard, not the primary back-pressure signal.
func (w *OpLogWriter) Enqueue(row OpLogRow) bool {
	select {
	case w.queue <- row:
		return true
	default:
		if w.log != nil {
			w.log.Warnw("operation log queue saturated, row dropped", "id", row.ID)
		}
		return false
	}
}

// IsBlock reports back-pressure at the 90% threshold spec.md §4.7
// defines for the operation-log writer.
func (w *OpLogWriter) IsBlock() bool {
	return len(w.queue) >= (w.cap*9)/10
}

// Run drains the queue into Store in id-ascending batches, flushing
// early on a ticker so a slow trickle of requests doesn't wait
// indefinitely for a full batch.
func (w *OpLogWriter) Run() {
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()
	var pending []OpLogRow
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := w.store.AppendOperationLog(pending); err != nil && w.log != nil {
			w.log.Errorw("operation log batch append failed", "err", err, "rows", len(pending))
		}
		pending = pending[:0]
	}
	for {
		select {
		case row, ok := <-w.queue:
			if !ok {
				flush()
				close(w.closed)
				return
			}
			pending = append(pending, row)
			if len(pending) >= w.batch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close stops accepting rows and waits for the flusher to drain.
func (w *OpLogWriter) Close() {
	close(w.queue)
	<-w.closed
}
