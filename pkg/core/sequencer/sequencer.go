// Package sequencer allocates the monotonically increasing ids the core
// relies on for total ordering: order ids, trade ids, operation-log ids,
// and outbound event/message ids. Grounded on the original Rust
// Sequencer (single-threaded counters, reset/set used by replay) and
// reshaped into the teacher's receiver-method style
// (pkg/app/core/account/manager.go).
package sequencer

import "sync"

// Sequencer owns four monotonic counters. The Controller is its only
// caller and always runs single-threaded, but the mutex keeps the type
// safe to share with read-only status endpoints running on another
// goroutine without requiring the caller to reason about it.
type Sequencer struct {
	mu             sync.Mutex
	orderID        uint64
	tradeID        uint64
	operationLogID uint64
	msgID          uint64
}

// New returns a Sequencer with all counters at zero.
func New() *Sequencer { return &Sequencer{} }

// NextOrderID pre-increments and returns the new order id.
func (s *Sequencer) NextOrderID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderID++
	return s.orderID
}

// NextTradeID pre-increments and returns the new trade id.
func (s *Sequencer) NextTradeID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradeID++
	return s.tradeID
}

// NextOperationLogID pre-increments and returns the new operation-log id.
func (s *Sequencer) NextOperationLogID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operationLogID++
	return s.operationLogID
}

// NextMsgID pre-increments and returns the new outbound message id.
func (s *Sequencer) NextMsgID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgID++
	return s.msgID
}

// OrderID, TradeID, OperationLogID, MsgID return the current cursor value
// without advancing it — used when writing a slice's sequencer cursors.
func (s *Sequencer) OrderID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderID
}

func (s *Sequencer) TradeID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradeID
}

func (s *Sequencer) OperationLogID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operationLogID
}

func (s *Sequencer) MsgID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgID
}

// SetOrderID seeds the order-id cursor from a persisted value during
// recovery. Never called outside startup.
func (s *Sequencer) SetOrderID(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderID = id
}

func (s *Sequencer) SetTradeID(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradeID = id
}

func (s *Sequencer) SetOperationLogID(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operationLogID = id
}

func (s *Sequencer) SetMsgID(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgID = id
}

// Reset zeroes every counter. Testing/debug only (spec.md §4.1); never
// called on a running production core since it would allow id reuse.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderID = 0
	s.tradeID = 0
	s.operationLogID = 0
	s.msgID = 0
}
