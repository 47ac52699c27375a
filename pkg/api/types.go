// Package api exposes the Controller's RPC surface (spec.md §6) over
// HTTP, plus a websocket feed for the events the core emits. Grounded on
// the teacher's pkg/api package: a gorilla/mux router under /api/v1, a
// plain-struct request/response DTO layer (pkg/api/types.go), and
// rs/cors at the top of the handler chain (pkg/api/server.go).
package api

import "github.com/fluidex-clob/matchcore/pkg/types"

// AssetInfo is one entry in the AssetList response.
type AssetInfo struct {
	ID       string `json:"id"`
	PrecStor int32  `json:"prec_stor"`
	PrecShow int32  `json:"prec_show"`
}

// MarketSummaryInfo is one entry in the MarketSummary response.
type MarketSummaryInfo struct {
	Name      string        `json:"name"`
	AskCount  int           `json:"ask_count"`
	AskAmount types.Decimal `json:"ask_amount"`
	BidCount  int           `json:"bid_count"`
	BidAmount types.Decimal `json:"bid_amount"`
	Trades    uint64        `json:"trades"`
}

// DepthLevelInfo is one bucketed price/amount pair.
type DepthLevelInfo struct {
	Price  types.Decimal `json:"price"`
	Amount types.Decimal `json:"amount"`
}

// DepthInfo is the OrderBookDepth response.
type DepthInfo struct {
	Market string           `json:"market"`
	Asks   []DepthLevelInfo `json:"asks"`
	Bids   []DepthLevelInfo `json:"bids"`
}

// OrderInfo is one order's wire representation, shared by OrderPut,
// OrderDetail and OrderQuery responses.
type OrderInfo struct {
	ID            uint64        `json:"id"`
	Market        string        `json:"market"`
	Base          string        `json:"base"`
	Quote         string        `json:"quote"`
	Type          string        `json:"type"`
	Side          string        `json:"side"`
	User          uint32        `json:"user"`
	CreateTime    float64       `json:"create_time"`
	UpdateTime    float64       `json:"update_time"`
	Price         types.Decimal `json:"price"`
	Amount        types.Decimal `json:"amount"`
	TakerFee      types.Decimal `json:"taker_fee"`
	MakerFee      types.Decimal `json:"maker_fee"`
	Remain        types.Decimal `json:"remain"`
	Frozen        types.Decimal `json:"frozen"`
	FinishedBase  types.Decimal `json:"finished_base"`
	FinishedQuote types.Decimal `json:"finished_quote"`
	FinishedFee   types.Decimal `json:"finished_fee"`
	PostOnly      bool          `json:"post_only"`
}

// OrderQueryResponse is the OrderQuery RPC's paginated response shape.
type OrderQueryResponse struct {
	Orders []OrderInfo `json:"orders"`
	Total  int         `json:"total"`
	Offset int         `json:"offset"`
	Limit  int         `json:"limit"`
}

// BalanceInfo is one asset's available/frozen pair in a BalanceQuery
// response.
type BalanceInfo struct {
	Asset     string        `json:"asset"`
	Available types.Decimal `json:"available"`
	Frozen    types.Decimal `json:"frozen"`
}

// RegisterUserRequest is the RegisterUser RPC's request body.
type RegisterUserRequest struct {
	L1Address string `json:"l1_address"`
	L2Pubkey  string `json:"l2_pubkey"`
}

// UserInfo is the RegisterUser RPC's response body.
type UserInfo struct {
	UserID    uint32 `json:"user_id"`
	L1Address string `json:"l1_address"`
	L2Pubkey  string `json:"l2_pubkey"`
}

// BalanceUpdateRequest is the BalanceUpdate RPC's request body.
type BalanceUpdateRequest struct {
	UserID     uint32        `json:"user_id"`
	Asset      string        `json:"asset"`
	Business   string        `json:"business"`
	BusinessID int64         `json:"business_id"`
	Change     types.Decimal `json:"change"`
	Detail     string        `json:"detail"`
}

// BalanceUpdateResponse is the BalanceUpdate RPC's response body.
type BalanceUpdateResponse struct {
	Balance types.Decimal `json:"balance"`
}

// OrderPutRequest is the OrderPut RPC's request body. Signature is a hex
// string on the wire, decoded before reaching the Controller.
type OrderPutRequest struct {
	UserID     uint32        `json:"user_id"`
	Market     string        `json:"market"`
	Side       string        `json:"side"` // ASK | BID
	Type       string        `json:"type"` // LIMIT | MARKET
	Amount     types.Decimal `json:"amount"`
	Price      types.Decimal `json:"price"`
	QuoteLimit types.Decimal `json:"quote_limit"`
	TakerFee   types.Decimal `json:"taker_fee"`
	MakerFee   types.Decimal `json:"maker_fee"`
	PostOnly   bool          `json:"post_only"`
	Nonce      uint64        `json:"nonce"`
	Signature  string        `json:"signature"` // 0x-prefixed hex, optional
}

// OrderCancelRequest is the OrderCancel RPC's request body.
type OrderCancelRequest struct {
	UserID  uint32 `json:"user_id"`
	Market  string `json:"market"`
	OrderID uint64 `json:"order_id"`
}

// OrderCancelAllRequest is the OrderCancelAll RPC's request body.
type OrderCancelAllRequest struct {
	UserID uint32 `json:"user_id"`
	Market string `json:"market"`
}

// OrderCancelAllResponse is the OrderCancelAll RPC's response body.
type OrderCancelAllResponse struct {
	Cancelled int `json:"cancelled"`
}

// TransferRequest is the Transfer RPC's request body.
type TransferRequest struct {
	From  uint32        `json:"from"`
	To    uint32        `json:"to"`
	Asset string        `json:"asset"`
	Delta types.Decimal `json:"delta"`
	Memo  string        `json:"memo"`
}

// TransferResponse is the Transfer RPC's response body.
type TransferResponse struct {
	Success     bool          `json:"success"`
	Asset       string        `json:"asset"`
	BalanceFrom types.Decimal `json:"balance_from"`
}

// AssetReloadConfig is one asset entry in a ReloadMarkets request body.
type AssetReloadConfig struct {
	ID       string `json:"id"`
	PrecStor int32  `json:"prec_stor"`
	PrecShow int32  `json:"prec_show"`
}

// MarketReloadConfig is one market entry in a ReloadMarkets request body.
type MarketReloadConfig struct {
	Name       string        `json:"name"`
	Base       string        `json:"base"`
	Quote      string        `json:"quote"`
	AmountPrec int32         `json:"amount_prec"`
	PricePrec  int32         `json:"price_prec"`
	FeePrec    int32         `json:"fee_prec"`
	MinAmount  types.Decimal `json:"min_amount"`
}

// ReloadMarketsRequest is the ReloadMarkets/DebugReload RPC's request body.
type ReloadMarketsRequest struct {
	Assets      []AssetReloadConfig  `json:"assets"`
	Markets     []MarketReloadConfig `json:"markets"`
	FromScratch bool                 `json:"from_scratch"`
}

// ErrorResponse is returned for every non-2xx response, the taxonomy
// from spec.md §7 surfaced as a stable {kind, reason} pair instead of a
// bare error string.
type ErrorResponse struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}
