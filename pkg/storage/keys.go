// Package storage implements C8's durable side: the operation-log writer
// and the slice tables used for crash recovery. Grounded on the
// teacher's Pebble key-prefix schema and keyUpperBound range-scan idiom
// (pkg/app/core/account/keys.go, store.go), reused here for the core's
// own tables instead of account/position/order-by-owner rows.
package storage

import "fmt"

const (
	prefixOperationLog = "oplog:"
	prefixBalanceSlice = "balslice:"
	prefixOrderSlice   = "ordslice:"
	prefixUserSlice    = "usrslice:"
	prefixSliceHistory = "slicehist:"
)

// zeroPad renders id as a fixed-width, lexicographically-sortable
// decimal string, the same "%020d" idiom the teacher uses for trade
// keys (pkg/app/core/account/keys.go tradeKey).
func zeroPad(id uint64) string {
	return fmt.Sprintf("%020d", id)
}

func operationLogKey(id uint64) []byte {
	return []byte(prefixOperationLog + zeroPad(id))
}

func operationLogLowerBound(afterID uint64) []byte {
	return operationLogKey(afterID + 1)
}

func operationLogUpperBound() []byte {
	return keyUpperBound([]byte(prefixOperationLog))
}

func balanceSliceKey(sliceID uint64, user uint32, asset string, kind uint8) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d:%s:%d", prefixBalanceSlice, zeroPad(sliceID), user, asset, kind))
}

func balanceSlicePrefix(sliceID uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixBalanceSlice, zeroPad(sliceID)))
}

func orderSliceKey(sliceID, orderID uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOrderSlice, zeroPad(sliceID), zeroPad(orderID)))
}

func orderSlicePrefix(sliceID uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrderSlice, zeroPad(sliceID)))
}

func userSliceKey(sliceID uint64, userID uint32) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", prefixUserSlice, zeroPad(sliceID), userID))
}

func userSlicePrefix(sliceID uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixUserSlice, zeroPad(sliceID)))
}

func sliceHistoryKey(sliceID uint64) []byte {
	return []byte(prefixSliceHistory + zeroPad(sliceID))
}

func sliceHistoryPrefix() []byte {
	return []byte(prefixSliceHistory)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan,
// identical to the teacher's helper (pkg/app/core/account/keys.go).
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
