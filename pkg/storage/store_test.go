package storage

import (
	"encoding/json"
	"testing"

	"github.com/fluidex-clob/matchcore/pkg/core/balance"
	"github.com/fluidex-clob/matchcore/pkg/core/market"
	"github.com/fluidex-clob/matchcore/pkg/core/user"
	"github.com/fluidex-clob/matchcore/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndStreamOperationLog(t *testing.T) {
	s := openTestStore(t)
	rows := []OpLogRow{
		{ID: 1, Time: 1.0, Method: "register_user", Params: json.RawMessage(`{"a":1}`)},
		{ID: 2, Time: 2.0, Method: "balance_update", Params: json.RawMessage(`{"b":2}`)},
		{ID: 3, Time: 3.0, Method: "order_put", Params: json.RawMessage(`{"c":3}`)},
	}
	if err := s.AppendOperationLog(rows); err != nil {
		t.Fatalf("AppendOperationLog: %v", err)
	}

	var got []OpLogRow
	if err := s.StreamOperationLogAfter(0, func(r OpLogRow) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("StreamOperationLogAfter: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3", len(got))
	}
	for i, r := range got {
		if r.ID != rows[i].ID || r.Method != rows[i].Method {
			t.Errorf("row %d = %+v, want %+v", i, r, rows[i])
		}
	}
}

func TestStreamOperationLogAfterSkipsEarlierRows(t *testing.T) {
	s := openTestStore(t)
	s.AppendOperationLog([]OpLogRow{
		{ID: 1, Method: "a"}, {ID: 2, Method: "b"}, {ID: 3, Method: "c"},
	})

	var got []uint64
	if err := s.StreamOperationLogAfter(1, func(r OpLogRow) error {
		got = append(got, r.ID)
		return nil
	}); err != nil {
		t.Fatalf("StreamOperationLogAfter: %v", err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("got ids %v, want [2 3]", got)
	}
}

func TestDeleteOperationLogBefore(t *testing.T) {
	s := openTestStore(t)
	s.AppendOperationLog([]OpLogRow{
		{ID: 1, Method: "a"}, {ID: 2, Method: "b"}, {ID: 3, Method: "c"},
	})
	if err := s.DeleteOperationLogBefore(3); err != nil {
		t.Fatalf("DeleteOperationLogBefore: %v", err)
	}
	var got []uint64
	s.StreamOperationLogAfter(0, func(r OpLogRow) error {
		got = append(got, r.ID)
		return nil
	})
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("got ids %v after deleting before 3, want [3]", got)
	}
}

func TestWriteSliceAndLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	cells := []balance.Cell{
		{User: 1, Asset: "ETH", Kind: balance.Available, Balance: types.MustParse("5")},
		{User: 1, Asset: "ETH", Kind: balance.Freeze, Balance: types.MustParse("1")},
	}
	orders := []market.Order{
		{ID: 7, Market: "ETH_USDT", User: 1},
	}
	users := []user.Info{
		{UserID: 1, L1Address: "0xaaa", L2Pubkey: "pub-a"},
	}
	hist := SliceHistoryRow{SliceID: 42, Time: 10.0, EndOperationLogID: 3}

	if err := s.WriteSlice(cells, orders, users, hist); err != nil {
		t.Fatalf("WriteSlice: %v", err)
	}

	gotCells, err := s.LoadBalanceSlice(42)
	if err != nil {
		t.Fatalf("LoadBalanceSlice: %v", err)
	}
	if len(gotCells) != 2 {
		t.Fatalf("got %d balance cells, want 2", len(gotCells))
	}

	gotOrders, err := s.LoadOrderSlice(42)
	if err != nil {
		t.Fatalf("LoadOrderSlice: %v", err)
	}
	if len(gotOrders) != 1 || gotOrders[0].ID != 7 {
		t.Errorf("got orders %+v, want one order with id 7", gotOrders)
	}

	gotUsers, err := s.LoadUserSlice(42)
	if err != nil {
		t.Fatalf("LoadUserSlice: %v", err)
	}
	if len(gotUsers) != 1 || gotUsers[0].L1Address != "0xaaa" {
		t.Errorf("got users %+v, want one user with L1Address 0xaaa", gotUsers)
	}

	latest, ok, err := s.LatestSliceHistory()
	if err != nil {
		t.Fatalf("LatestSliceHistory: %v", err)
	}
	if !ok || latest.SliceID != 42 {
		t.Errorf("LatestSliceHistory = %+v (ok=%v), want SliceID 42", latest, ok)
	}
}

func TestLatestSliceHistoryPicksGreatestID(t *testing.T) {
	s := openTestStore(t)
	s.WriteSlice(nil, nil, nil, SliceHistoryRow{SliceID: 1})
	s.WriteSlice(nil, nil, nil, SliceHistoryRow{SliceID: 5})
	s.WriteSlice(nil, nil, nil, SliceHistoryRow{SliceID: 3})

	latest, ok, err := s.LatestSliceHistory()
	if err != nil {
		t.Fatalf("LatestSliceHistory: %v", err)
	}
	if !ok || latest.SliceID != 5 {
		t.Errorf("LatestSliceHistory = %+v, want SliceID 5", latest)
	}
}

func TestLatestSliceHistoryEmptyStore(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.LatestSliceHistory()
	if err != nil {
		t.Fatalf("LatestSliceHistory: %v", err)
	}
	if ok {
		t.Error("LatestSliceHistory on an empty store should return ok=false")
	}
}

func TestDeleteSliceRemovesAllItsRows(t *testing.T) {
	s := openTestStore(t)
	cells := []balance.Cell{{User: 1, Asset: "ETH", Kind: balance.Available, Balance: types.MustParse("5")}}
	s.WriteSlice(cells, nil, nil, SliceHistoryRow{SliceID: 9})

	if err := s.DeleteSlice(9); err != nil {
		t.Fatalf("DeleteSlice: %v", err)
	}

	gotCells, err := s.LoadBalanceSlice(9)
	if err != nil {
		t.Fatalf("LoadBalanceSlice: %v", err)
	}
	if len(gotCells) != 0 {
		t.Errorf("got %d balance cells after delete, want 0", len(gotCells))
	}
	_, ok, err := s.LatestSliceHistory()
	if err != nil {
		t.Fatalf("LatestSliceHistory: %v", err)
	}
	if ok {
		t.Error("slice_history row should be gone after DeleteSlice")
	}
}

func TestListSliceHistoryReturnsAllRows(t *testing.T) {
	s := openTestStore(t)
	s.WriteSlice(nil, nil, nil, SliceHistoryRow{SliceID: 1})
	s.WriteSlice(nil, nil, nil, SliceHistoryRow{SliceID: 2})

	rows, err := s.ListSliceHistory()
	if err != nil {
		t.Fatalf("ListSliceHistory: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d slice history rows, want 2", len(rows))
	}
}
