// Package event holds the DTOs emitted on every observable change in the
// core: order lifecycle, trades, balance deltas, user registration, and
// internal transfers. These are the payloads the PersistExector (C6)
// fans out to its sinks. Grounded on the original Rust persist.rs event
// shapes (BalanceHistory/OrderHistory/Trade/UserHistory) and the
// teacher's plain-struct DTO style (pkg/api/types.go).
package event

import "github.com/fluidex-clob/matchcore/pkg/types"

// OrderState names where an order lifecycle event sits in the
// PUT -> {UPDATE}* -> FINISH sequence spec.md §5 requires per order.
type OrderState string

const (
	OrderPut    OrderState = "PUT"
	OrderUpdate OrderState = "UPDATE"
	OrderFinish OrderState = "FINISH"
)

// OrderEvent mirrors an Order's full field set at the moment of the
// state transition (spec.md §3 Order fields).
type OrderEvent struct {
	State         OrderState
	ID            uint64
	Market        string
	Base          string
	Quote         string
	Type          string // LIMIT | MARKET
	Side          string // ASK | BID
	User          uint32
	CreateTime    float64
	UpdateTime    float64
	Price         types.Decimal
	Amount        types.Decimal
	TakerFee      types.Decimal
	MakerFee      types.Decimal
	Remain        types.Decimal
	Frozen        types.Decimal
	FinishedBase  types.Decimal
	FinishedQuote types.Decimal
	FinishedFee   types.Decimal
	PostOnly      bool
}

// Role distinguishes the liquidity-providing side of a trade.
type Role string

const (
	Taker Role = "TAKER"
	Maker Role = "MAKER"
)

// TradeEvent mirrors a Trade's full field set (spec.md §3 Trade fields).
type TradeEvent struct {
	ID          uint64
	Timestamp   float64
	Market      string
	Base        string
	Quote       string
	Price       types.Decimal
	Amount      types.Decimal
	QuoteAmount types.Decimal
	AskUser     uint32
	AskOrder    uint64
	AskRole     Role
	AskFee      types.Decimal
	BidUser     uint32
	BidOrder    uint64
	BidRole     Role
	BidFee      types.Decimal
}

// BalanceEvent mirrors a BalanceHistory row: an external (non-matching)
// balance change applied by the BalanceUpdateController (C4).
type BalanceEvent struct {
	Time       float64
	User       uint32
	Asset      string
	Business   string
	BusinessID int64
	Change     types.Decimal
	Balance    types.Decimal // balance after the change
	Detail     string        // serialized JSON detail, business_id injected
}

// UserRegisteredEvent records a new user onboarding.
type UserRegisteredEvent struct {
	Time       float64
	UserID     uint32
	L1Address  string
	L2Pubkey   string
}

// InternalTxEvent records a Transfer RPC's paired balance update.
type InternalTxEvent struct {
	Time   float64
	From   uint32
	To     uint32
	Asset  string
	Amount types.Decimal
	Memo   string
}
