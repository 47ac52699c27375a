package persist

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/fluidex-clob/matchcore/pkg/core/event"
)

// DBSink is the database-batch-writer sink from spec.md §4.7: async,
// batched inserts into the downstream history tables
// (order_history/user_trade/balance_history/account/internal_tx) the
// core is an upstream producer for; trades are written to user_trade only. Grounded on the
// teacher's pebble usage (pkg/app/core/account/store.go) and its
// batched-flush idiom, adapted from a single-row-per-write store to a
// queued batch writer.
type DBSink struct {
	db       *pebble.DB
	queue    chan dbRow
	cap      int
	batch    int
	flushEvery time.Duration
	log      *zap.SugaredLogger
	seq      uint64
	mu       sync.Mutex
	closed   chan struct{}
}

type dbRow struct {
	table string
	key   []byte
	value []byte
}

// NewDBSink opens (or creates) a pebble database at path; it does not
// start the background flusher, so the caller runs Run in its own
// goroutine. queueCap bounds how many pending rows may be
// buffered before Available() reports back-pressure; batchSize bounds
// how many rows are written per pebble.Batch.
func NewDBSink(path string, queueCap, batchSize int, flushEvery time.Duration, log *zap.SugaredLogger) (*DBSink, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open db sink at %s: %w", path, err)
	}
	s := &DBSink{
		db:         db,
		queue:      make(chan dbRow, queueCap),
		cap:        queueCap,
		batch:      batchSize,
		flushEvery: flushEvery,
		log:        log,
		closed:     make(chan struct{}),
	}
	return s, nil
}

func (s *DBSink) Name() string { return "db" }

// Run drains the queue into pebble in batches of up to s.batch rows,
// flushing early if flushEvery elapses with a partial batch pending.
func (s *DBSink) Run() {
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()
	var pending []dbRow
	flush := func() {
		if len(pending) == 0 {
			return
		}
		b := s.db.NewBatch()
		for _, r := range pending {
			if err := b.Set(r.key, r.value, nil); err != nil {
				if s.log != nil {
					s.log.Errorw("db sink batch set failed", "table", r.table, "err", err)
				}
			}
		}
		if err := b.Commit(pebble.Sync); err != nil && s.log != nil {
			s.log.Errorw("db sink batch commit failed", "err", err)
		}
		pending = pending[:0]
	}
	for {
		select {
		case row, ok := <-s.queue:
			if !ok {
				flush()
				close(s.closed)
				return
			}
			pending = append(pending, row)
			if len(pending) >= s.batch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close stops accepting new rows and waits for the flusher to drain.
func (s *DBSink) Close() error {
	close(s.queue)
	<-s.closed
	return s.db.Close()
}

func (s *DBSink) enqueue(table string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		if s.log != nil {
			s.log.Errorw("db sink marshal failed", "table", table, "err", err)
		}
		return
	}
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	key := []byte(fmt.Sprintf("%s:%020d", table, seq))
	select {
	case s.queue <- dbRow{table: table, key: key, value: data}:
	default:
		if s.log != nil {
			s.log.Warnw("db sink queue saturated, row dropped", "table", table)
		}
	}
}

func (s *DBSink) Order(ev event.OrderEvent)                 { s.enqueue("order_history", ev) }
func (s *DBSink) Trade(ev event.TradeEvent)                  { s.enqueue("user_trade", ev) }
func (s *DBSink) Balance(ev event.BalanceEvent)              { s.enqueue("balance_history", ev) }
func (s *DBSink) UserRegistered(ev event.UserRegisteredEvent) { s.enqueue("account", ev) }
func (s *DBSink) InternalTx(ev event.InternalTxEvent)         { s.enqueue("internal_tx", ev) }

// Available reports whether the queue has headroom, same 90% threshold
// as the bus sink and the operation-log writer (spec.md §4.7 is_block).
func (s *DBSink) Available() bool {
	return len(s.queue) < (s.cap*9)/10
}
