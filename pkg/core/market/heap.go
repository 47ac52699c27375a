package market

import "github.com/fluidex-clob/matchcore/pkg/types"

// askHeap and bidHeap track the set of distinct prices that currently
// have a resting price level, giving O(log n) best-price discovery
// instead of scanning every level. Grounded on the teacher's
// MinPriceHeap/MaxPriceHeap (pkg/app/core/orderbook/heap.go), generalized
// from int64 ticks to types.Decimal via Cmp.
type askHeap []types.Decimal

func (h askHeap) Len() int            { return len(h) }
func (h askHeap) Less(i, j int) bool  { return h[i].LessThan(h[j]) }
func (h askHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *askHeap) Push(x interface{}) { *h = append(*h, x.(types.Decimal)) }
func (h *askHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
func (h askHeap) Peek() types.Decimal { return h[0] }

type bidHeap []types.Decimal

func (h bidHeap) Len() int            { return len(h) }
func (h bidHeap) Less(i, j int) bool  { return h[i].GreaterThan(h[j]) }
func (h bidHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *bidHeap) Push(x interface{}) { *h = append(*h, x.(types.Decimal)) }
func (h *bidHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
func (h bidHeap) Peek() types.Decimal { return h[0] }
