// Package persist implements the PersistExector (C6): a fan-out sink for
// every observable event the core produces. Grounded on the original
// Rust persist.rs event sink and reshaped into the teacher's composite /
// Hub style (pkg/api/websocket.go Hub broadcasting to subscribers).
package persist

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fluidex-clob/matchcore/pkg/core/event"
)

// Sink receives every event kind the core emits. A sink may be
// synchronous (the append-only file) or asynchronous and
// back-pressured (a message-bus producer, a DB batch writer).
type Sink interface {
	Name() string
	Order(event.OrderEvent)
	Trade(event.TradeEvent)
	Balance(event.BalanceEvent)
	UserRegistered(event.UserRegisteredEvent)
	InternalTx(event.InternalTxEvent)
	// Available reports whether the sink can currently accept more
	// events without blocking. A false return makes the composite
	// Exector's Available() return false, which the Controller turns
	// into an admission-time Unavailable error (spec.md §5/§7).
	Available() bool
}

// Exector is the composite PersistExector: it owns an ordered list of
// sinks and broadcasts every event to all of them. service_available is
// the AND of every sink's Available().
type Exector struct {
	mu    sync.RWMutex
	sinks []Sink
	log   *zap.SugaredLogger
}

// New builds an Exector over zero or more sinks, broadcast order
// matching registration order.
func New(log *zap.SugaredLogger, sinks ...Sink) *Exector {
	return &Exector{sinks: sinks, log: log}
}

// AddSink registers another sink, e.g. during dynamic reconfiguration.
func (e *Exector) AddSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

func (e *Exector) snapshot() []Sink {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Sink, len(e.sinks))
	copy(out, e.sinks)
	return out
}

func (e *Exector) Order(ev event.OrderEvent) {
	for _, s := range e.snapshot() {
		s.Order(ev)
	}
}

func (e *Exector) Trade(ev event.TradeEvent) {
	for _, s := range e.snapshot() {
		s.Trade(ev)
	}
}

func (e *Exector) Balance(ev event.BalanceEvent) {
	for _, s := range e.snapshot() {
		s.Balance(ev)
	}
}

func (e *Exector) UserRegistered(ev event.UserRegisteredEvent) {
	for _, s := range e.snapshot() {
		s.UserRegistered(ev)
	}
}

func (e *Exector) InternalTx(ev event.InternalTxEvent) {
	for _, s := range e.snapshot() {
		s.InternalTx(ev)
	}
}

// Available is the AND of every sink's Available(). An Exector with no
// sinks is always available.
func (e *Exector) Available() bool {
	for _, s := range e.snapshot() {
		if !s.Available() {
			if e.log != nil {
				e.log.Warnw("persistence sink back-pressured", "sink", s.Name())
			}
			return false
		}
	}
	return true
}

// Dummy is the replay-mode PersistExector: it silently discards every
// event and is always available. Used when the Controller replays the
// operation log (real=false), per spec.md §4.7 recovery step 5.
type Dummy struct{}

func (Dummy) Order(event.OrderEvent)                     {}
func (Dummy) Trade(event.TradeEvent)                      {}
func (Dummy) Balance(event.BalanceEvent)                  {}
func (Dummy) UserRegistered(event.UserRegisteredEvent)     {}
func (Dummy) InternalTx(event.InternalTxEvent)             {}
func (Dummy) Available() bool                             { return true }
func (Dummy) Name() string                                { return "dummy" }

// Interface is implemented by both *Exector and Dummy, so the Controller
// can hold either behind one field and swap per spec.md §4.6 step 3
// ("Choose persistor: real or dummy").
type Interface interface {
	Order(event.OrderEvent)
	Trade(event.TradeEvent)
	Balance(event.BalanceEvent)
	UserRegistered(event.UserRegisteredEvent)
	InternalTx(event.InternalTxEvent)
	Available() bool
}

var (
	_ Interface = (*Exector)(nil)
	_ Interface = Dummy{}
)

// droppedCounter is a tiny shared back-pressure counter sinks can embed;
// kept unexported and package-local, not part of the Sink contract. None
// of the concrete sinks in this package embeds it.
type droppedCounter struct{ n int64 }

func (d *droppedCounter) inc() int64 { return atomic.AddInt64(&d.n, 1) }
func (d *droppedCounter) get() int64 { return atomic.LoadInt64(&d.n) }
