package persist

import (
	"encoding/json"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/fluidex-clob/matchcore/pkg/core/event"
)

// FileSink is the append-only-JSON sink from spec.md §4.7, used
// synchronously when no message bus is configured. Every event is
// written and fsync'd before the call returns, so it never reports
// back-pressure — it simply costs latency on the caller's goroutine,
// which is why it is meant for small/dev deployments only.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	log  *zap.SugaredLogger
}

// NewFileSink opens path for append, creating it if necessary.
func NewFileSink(path string, log *zap.SugaredLogger) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileSink{file: f, enc: json.NewEncoder(f), log: log}, nil
}

func (f *FileSink) Name() string { return "file" }

func (f *FileSink) write(kind string, v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := struct {
		Kind    string      `json:"kind"`
		Payload interface{} `json:"payload"`
	}{Kind: kind, Payload: v}
	if err := f.enc.Encode(row); err != nil && f.log != nil {
		f.log.Errorw("file sink write failed", "kind", kind, "err", err)
	}
	if err := f.file.Sync(); err != nil && f.log != nil {
		f.log.Errorw("file sink sync failed", "err", err)
	}
}

func (f *FileSink) Order(ev event.OrderEvent)                 { f.write("order", ev) }
func (f *FileSink) Trade(ev event.TradeEvent)                  { f.write("trade", ev) }
func (f *FileSink) Balance(ev event.BalanceEvent)              { f.write("balance", ev) }
func (f *FileSink) UserRegistered(ev event.UserRegisteredEvent) { f.write("user", ev) }
func (f *FileSink) InternalTx(ev event.InternalTxEvent)         { f.write("internal_tx", ev) }

// Available is always true: the file sink applies back-pressure to its
// own caller via synchronous I/O instead of signalling Unavailable.
func (f *FileSink) Available() bool { return true }

// Close flushes and closes the underlying file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
