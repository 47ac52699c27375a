package sequencer

import "testing"

func TestNextIDsStartAtOneAndIncrement(t *testing.T) {
	s := New()
	if got := s.NextOrderID(); got != 1 {
		t.Errorf("first NextOrderID() = %d, want 1", got)
	}
	if got := s.NextOrderID(); got != 2 {
		t.Errorf("second NextOrderID() = %d, want 2", got)
	}
	if got := s.NextTradeID(); got != 1 {
		t.Errorf("first NextTradeID() = %d, want 1", got)
	}
}

func TestCountersAreIndependent(t *testing.T) {
	s := New()
	s.NextOrderID()
	s.NextOrderID()
	s.NextOrderID()
	if s.TradeID() != 0 {
		t.Errorf("TradeID() = %d, want 0 (unaffected by order id advances)", s.TradeID())
	}
	if s.OrderID() != 3 {
		t.Errorf("OrderID() = %d, want 3", s.OrderID())
	}
}

func TestCursorAccessorsDoNotAdvance(t *testing.T) {
	s := New()
	s.NextMsgID()
	first := s.MsgID()
	second := s.MsgID()
	if first != second {
		t.Errorf("MsgID() should be idempotent, got %d then %d", first, second)
	}
}

func TestSetSeedsCursorForRecovery(t *testing.T) {
	s := New()
	s.SetOperationLogID(41)
	if got := s.NextOperationLogID(); got != 42 {
		t.Errorf("NextOperationLogID() after SetOperationLogID(41) = %d, want 42", got)
	}
}

func TestReset(t *testing.T) {
	s := New()
	s.NextOrderID()
	s.NextTradeID()
	s.NextOperationLogID()
	s.NextMsgID()
	s.Reset()
	if s.OrderID() != 0 || s.TradeID() != 0 || s.OperationLogID() != 0 || s.MsgID() != 0 {
		t.Error("Reset should zero all four counters")
	}
}
