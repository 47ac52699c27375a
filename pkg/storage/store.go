package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/fluidex-clob/matchcore/pkg/core/balance"
	"github.com/fluidex-clob/matchcore/pkg/core/market"
	"github.com/fluidex-clob/matchcore/pkg/core/user"
)

// OpLogRow is one operation_log entry (spec.md §3/§6): every mutating
// request, written in strict id order so it can be replayed.
type OpLogRow struct {
	ID     uint64          `json:"id"`
	Time   float64         `json:"time"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// SliceHistoryRow marks one consistent point-in-time slice (spec.md §3).
type SliceHistoryRow struct {
	SliceID           uint64  `json:"slice_id"`
	Time              float64 `json:"time"`
	EndOperationLogID uint64  `json:"end_operation_log_id"`
	EndOrderID        uint64  `json:"end_order_id"`
	EndTradeID        uint64  `json:"end_trade_id"`
	EndMsgID          uint64  `json:"end_msg_id"`
}

// Store is C8's Pebble-backed durable store for the operation log and
// slice tables. Grounded on the teacher's Store
// (pkg/app/core/account/store.go: pebble.Open with a tuned Options,
// Set/Get/iterator-range-scan idiom), repointed at the core's own
// tables instead of accounts/positions/orders-by-owner.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a Pebble database at path with the same
// tuning the teacher applies for a write-heavy workload.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(128 << 20),
		MemTableSize:          64 << 20,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 12,
		LBaseMaxBytes:         64 << 20,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open storage at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// AppendOperationLog writes a batch of rows in one commit, in ascending
// id order — the operation-log writer's background drain (spec.md §4.7)
// is the only caller.
func (s *Store) AppendOperationLog(rows []OpLogRow) error {
	if len(rows) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal operation log row %d: %w", r.ID, err)
		}
		if err := b.Set(operationLogKey(r.ID), data, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

// StreamOperationLogAfter calls fn for every operation_log row with
// id > afterID, in ascending order — used by recovery to replay the
// log tail on top of the loaded slice (spec.md §4.7 step 5).
func (s *Store) StreamOperationLogAfter(afterID uint64, fn func(OpLogRow) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: operationLogLowerBound(afterID),
		UpperBound: operationLogUpperBound(),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		var row OpLogRow
		if err := json.Unmarshal(iter.Value(), &row); err != nil {
			return fmt.Errorf("unmarshal operation log row: %w", err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return iter.Error()
}

// DeleteOperationLogBefore removes every operation_log row with
// id < beforeID, bounding log growth once its entries are covered by a
// retained slice (spec.md §4.7 retention).
func (s *Store) DeleteOperationLogBefore(beforeID uint64) error {
	return s.db.DeleteRange([]byte(prefixOperationLog), operationLogKey(beforeID), pebble.Sync)
}

// WriteSlice atomically persists one slice: balance rows, resting-order
// rows for every market, and the slice_history row written last so a
// reader never observes a slice_history pointing at incomplete data
// (spec.md §4.7 "one slice_history row written last").
func (s *Store) WriteSlice(cells []balance.Cell, orders []market.Order, users []user.Info, hist SliceHistoryRow) error {
	b := s.db.NewBatch()
	defer b.Close()

	for _, c := range cells {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal balance slice row: %w", err)
		}
		key := balanceSliceKey(hist.SliceID, c.User, c.Asset, uint8(c.Kind))
		if err := b.Set(key, data, nil); err != nil {
			return err
		}
	}
	for _, o := range orders {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal order slice row: %w", err)
		}
		if err := b.Set(orderSliceKey(hist.SliceID, o.ID), data, nil); err != nil {
			return err
		}
	}
	for _, u := range users {
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("marshal user slice row: %w", err)
		}
		if err := b.Set(userSliceKey(hist.SliceID, u.UserID), data, nil); err != nil {
			return err
		}
	}
	histData, err := json.Marshal(hist)
	if err != nil {
		return fmt.Errorf("marshal slice history row: %w", err)
	}
	if err := b.Set(sliceHistoryKey(hist.SliceID), histData, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// LatestSliceHistory scans every slice_history row and returns the one
// with the greatest SliceID, or ok=false if none exist (fresh start,
// spec.md §4.7 recovery step 1).
func (s *Store) LatestSliceHistory() (SliceHistoryRow, bool, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: sliceHistoryPrefix(),
		UpperBound: keyUpperBound(sliceHistoryPrefix()),
	})
	if err != nil {
		return SliceHistoryRow{}, false, err
	}
	defer iter.Close()

	var latest SliceHistoryRow
	found := false
	for iter.First(); iter.Valid(); iter.Next() {
		var row SliceHistoryRow
		if err := json.Unmarshal(iter.Value(), &row); err != nil {
			return SliceHistoryRow{}, false, fmt.Errorf("unmarshal slice history row: %w", err)
		}
		if !found || row.SliceID > latest.SliceID {
			latest = row
			found = true
		}
	}
	return latest, found, iter.Error()
}

// LoadBalanceSlice returns every balance_slice row for sliceID.
func (s *Store) LoadBalanceSlice(sliceID uint64) ([]balance.Cell, error) {
	prefix := balanceSlicePrefix(sliceID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []balance.Cell
	for iter.First(); iter.Valid(); iter.Next() {
		var c balance.Cell
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			return nil, fmt.Errorf("unmarshal balance slice row: %w", err)
		}
		out = append(out, c)
	}
	return out, iter.Error()
}

// LoadOrderSlice returns every order_slice row for sliceID.
func (s *Store) LoadOrderSlice(sliceID uint64) ([]market.Order, error) {
	prefix := orderSlicePrefix(sliceID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []market.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o market.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("unmarshal order slice row: %w", err)
		}
		out = append(out, o)
	}
	return out, iter.Error()
}

// LoadUserSlice returns every user_slice row for sliceID.
func (s *Store) LoadUserSlice(sliceID uint64) ([]user.Info, error) {
	prefix := userSlicePrefix(sliceID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []user.Info
	for iter.First(); iter.Valid(); iter.Next() {
		var u user.Info
		if err := json.Unmarshal(iter.Value(), &u); err != nil {
			return nil, fmt.Errorf("unmarshal user slice row: %w", err)
		}
		out = append(out, u)
	}
	return out, iter.Error()
}

// DeleteSlice removes every row belonging to sliceID (the balance, order
// and user slice tables, plus its slice_history row), used by the
// retention sweep to drop slices older than the retention window.
func (s *Store) DeleteSlice(sliceID uint64) error {
	b := s.db.NewBatch()
	defer b.Close()
	balPrefix := balanceSlicePrefix(sliceID)
	if err := b.DeleteRange(balPrefix, keyUpperBound(balPrefix), nil); err != nil {
		return err
	}
	ordPrefix := orderSlicePrefix(sliceID)
	if err := b.DeleteRange(ordPrefix, keyUpperBound(ordPrefix), nil); err != nil {
		return err
	}
	usrPrefix := userSlicePrefix(sliceID)
	if err := b.DeleteRange(usrPrefix, keyUpperBound(usrPrefix), nil); err != nil {
		return err
	}
	if err := b.Delete(sliceHistoryKey(sliceID), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// ListSliceHistory returns every slice_history row, ascending by
// SliceID, for the retention sweep to decide what to drop.
func (s *Store) ListSliceHistory() ([]SliceHistoryRow, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: sliceHistoryPrefix(),
		UpperBound: keyUpperBound(sliceHistoryPrefix()),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []SliceHistoryRow
	for iter.First(); iter.Valid(); iter.Next() {
		var row SliceHistoryRow
		if err := json.Unmarshal(iter.Value(), &row); err != nil {
			return nil, fmt.Errorf("unmarshal slice history row: %w", err)
		}
		out = append(out, row)
	}
	return out, iter.Error()
}
