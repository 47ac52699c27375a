package market

import (
	"github.com/fluidex-clob/matchcore/pkg/core/event"
	"github.com/fluidex-clob/matchcore/pkg/types"
)

// Side is the direction of an order: ASK sells base for quote, BID buys
// base with quote.
type Side uint8

const (
	Ask Side = iota
	Bid
)

func (s Side) String() string {
	if s == Ask {
		return "ASK"
	}
	return "BID"
}

// Type distinguishes resting LIMIT orders from immediate-or-cancel-style
// MARKET orders, which never enter the book.
type Type uint8

const (
	Limit Type = iota
	Market
)

func (t Type) String() string {
	if t == Limit {
		return "LIMIT"
	}
	return "MARKET"
}

// State mirrors the lifecycle event names an order emits, per
// spec.md §3 ("Lifecycles"): PUT on creation, UPDATE on partial fill
// while resting, FINISH on any terminal transition.
type State uint8

const (
	StateOpen   State = iota // resting or about to be evaluated
	StateFinish              // terminal: fully filled, cancelled, or never rested
)

// Order is owned exclusively by the Market that created it; all four of
// the Market's indices (orders, side tree, user index) reference the
// same *Order so a mutation through one is visible through all, per
// spec.md §4.5's shared-ownership requirement.
type Order struct {
	ID     uint64
	Market string
	Base   string
	Quote  string
	Type   Type
	Side   Side
	User   uint32

	CreateTime float64
	UpdateTime float64

	Price    types.Decimal
	Amount   types.Decimal
	TakerFee types.Decimal
	MakerFee types.Decimal

	Remain types.Decimal
	Frozen types.Decimal

	FinishedBase  types.Decimal
	FinishedQuote types.Decimal
	FinishedFee   types.Decimal

	PostOnly  bool
	Signature []byte

	// QuoteLimit is the effective quote budget for a BID MARKET order
	// (spec.md §4.5.1 "quote_limit_effective"); zero for every other
	// order shape. QuoteSpent tracks how much of it has been consumed
	// by the matching loop so far.
	QuoteLimit types.Decimal
	QuoteSpent types.Decimal

	State State
}

// Resting reports whether the order currently occupies book storage.
// Only LIMIT orders with remaining quantity rest, per spec.md §3.
func (o *Order) Resting() bool {
	return o.Type == Limit && o.State == StateOpen && o.Remain.IsPositive()
}

func (o *Order) sideString() string {
	return o.Side.String()
}

func (o *Order) toEvent(state event.OrderState) event.OrderEvent {
	return event.OrderEvent{
		State:         state,
		ID:            o.ID,
		Market:        o.Market,
		Base:          o.Base,
		Quote:         o.Quote,
		Type:          o.Type.String(),
		Side:          o.sideString(),
		User:          o.User,
		CreateTime:    o.CreateTime,
		UpdateTime:    o.UpdateTime,
		Price:         o.Price,
		Amount:        o.Amount,
		TakerFee:      o.TakerFee,
		MakerFee:      o.MakerFee,
		Remain:        o.Remain,
		Frozen:        o.Frozen,
		FinishedBase:  o.FinishedBase,
		FinishedQuote: o.FinishedQuote,
		FinishedFee:   o.FinishedFee,
		PostOnly:      o.PostOnly,
	}
}
