package controller

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fluidex-clob/matchcore/coreerr"
	"github.com/fluidex-clob/matchcore/pkg/core/asset"
	"github.com/fluidex-clob/matchcore/pkg/core/event"
	"github.com/fluidex-clob/matchcore/pkg/core/market"
	"github.com/fluidex-clob/matchcore/pkg/core/sig"
	"github.com/fluidex-clob/matchcore/pkg/core/user"
	"github.com/fluidex-clob/matchcore/pkg/storage"
	"github.com/fluidex-clob/matchcore/pkg/types"
)

// Operation-log method names, the `method` field spec.md §3 requires on
// every operation_log row and the dispatch key replay() switches on.
const (
	MethodRegisterUser   = "register_user"
	MethodBalanceUpdate  = "update_balance"
	MethodOrderPut       = "order_put"
	MethodOrderCancel    = "order_cancel"
	MethodOrderCancelAll = "order_cancel_all"
	MethodTransfer       = "transfer"
	MethodReloadMarkets  = "market_reload"
	MethodDebugReset     = "debug_reset"
)

// appendOp persists one operation-log row for a committed write, per
// spec.md §4.6 step 5. Only called when real=true.
func (c *Controller) appendOp(method string, params interface{}, now float64) {
	if c.opLog == nil {
		return
	}
	data, err := json.Marshal(params)
	if err != nil {
		if c.log != nil {
			c.log.Errorw("operation log param marshal failed", "method", method, "err", err)
		}
		return
	}
	id := c.seq.NextOperationLogID()
	c.opLog.Enqueue(storage.OpLogRow{ID: id, Time: now, Method: method, Params: data})
}

// RegisterUserParams is RegisterUser's operation-log payload.
type RegisterUserParams struct {
	L1Address string `json:"l1_address"`
	L2Pubkey  string `json:"l2_pubkey"`
}

// RegisterUser implements the RegisterUser RPC (spec.md §6). Idempotent:
// re-registering a known l1_address returns its existing Info rather
// than minting a new id, so replaying this op twice is harmless.
func (c *Controller) RegisterUser(l1Address, l2Pubkey string, real bool, now float64) (user.Info, error) {
	if real {
		if err := c.checkServiceAvailable(); err != nil {
			return user.Info{}, err
		}
	}
	if l1Address == "" {
		return user.Info{}, coreerr.InvalidArgument("l1_address must not be empty")
	}

	info := c.users.Register(l1Address, l2Pubkey)
	c.persistorFor(real).UserRegistered(event.UserRegisteredEvent{
		Time: now, UserID: info.UserID, L1Address: info.L1Address, L2Pubkey: info.L2Pubkey,
	})
	if real {
		c.appendOp(MethodRegisterUser, RegisterUserParams{L1Address: l1Address, L2Pubkey: l2Pubkey}, now)
	}
	return info, nil
}

// BalanceUpdateParams is BalanceUpdate's operation-log payload.
type BalanceUpdateParams struct {
	UserID     uint32        `json:"user_id"`
	Asset      string        `json:"asset"`
	Business   string        `json:"business"`
	BusinessID int64         `json:"business_id"`
	Change     types.Decimal `json:"change"`
	Detail     string        `json:"detail"`
}

// BalanceUpdate implements the BalanceUpdate RPC by delegating to C4.
func (c *Controller) BalanceUpdate(p BalanceUpdateParams, real bool, now time.Time) (types.Decimal, error) {
	if real {
		if err := c.checkServiceAvailable(); err != nil {
			return types.Decimal{}, err
		}
	}
	if !c.assets.Exists(p.Asset) {
		return types.Decimal{}, coreerr.InvalidArgument("unknown asset " + p.Asset)
	}

	newBal, err := c.updateCtl.Apply(c.persistorFor(real), p.UserID, p.Asset, p.Business, p.BusinessID, p.Change, p.Detail, now)
	if err != nil {
		return types.Decimal{}, err
	}
	if real {
		c.appendOp(MethodBalanceUpdate, p, float64(now.UnixNano())/1e9)
	}
	return newBal, nil
}

// OrderPutRequest is the OrderPut RPC's full input, including the
// client-supplied Nonce a signature must bind to (replay protection for
// the verify hook — outside spec.md's literal field list, but the
// signature hook itself is explicitly in scope per spec.md §1).
type OrderPutRequest struct {
	UserID     uint32        `json:"user_id"`
	Market     string        `json:"market"`
	Side       market.Side   `json:"side"`
	Type       market.Type   `json:"type"`
	Amount     types.Decimal `json:"amount"`
	Price      types.Decimal `json:"price"`
	QuoteLimit types.Decimal `json:"quote_limit"`
	TakerFee   types.Decimal `json:"taker_fee"`
	MakerFee   types.Decimal `json:"maker_fee"`
	PostOnly   bool          `json:"post_only"`
	Nonce      uint64        `json:"nonce"`
	Signature  []byte        `json:"signature"`
}

// OrderPut implements the OrderPut RPC: verify the signature (when the
// user has a registered L1 address and a signature was supplied), then
// delegate to the named Market.
func (c *Controller) OrderPut(req OrderPutRequest, real bool, now float64) (market.Order, error) {
	if real {
		if err := c.checkServiceAvailable(); err != nil {
			return market.Order{}, err
		}
	}
	m, ok := c.markets.Get(req.Market)
	if !ok {
		return market.Order{}, coreerr.InvalidArgument("unknown market " + req.Market)
	}
	if real {
		if err := c.verifyOrderSignature(req); err != nil {
			return market.Order{}, err
		}
	}

	o, err := m.PutOrder(market.PutOrderInput{
		UserID:     req.UserID,
		Side:       req.Side,
		Type:       req.Type,
		Amount:     req.Amount,
		Price:      req.Price,
		QuoteLimit: req.QuoteLimit,
		TakerFee:   req.TakerFee,
		MakerFee:   req.MakerFee,
		PostOnly:   req.PostOnly,
		Signature:  req.Signature,
	}, c.persistorFor(real), now)
	if err != nil {
		return market.Order{}, err
	}
	if real {
		c.appendOp(MethodOrderPut, req, now)
	}
	return o, nil
}

// verifyOrderSignature recomputes the order payload hash and checks it
// against the submitting user's registered L1 address. A user with no
// signature on file (dev/test onboarding) or no registered address is
// let through unchecked — the core only refuses a signature it can
// prove is wrong, it never requires one be present.
func (c *Controller) verifyOrderSignature(req OrderPutRequest) error {
	if len(req.Signature) == 0 {
		return nil
	}
	info, ok := c.users.Get(req.UserID)
	if !ok || info.L1Address == "" {
		return nil
	}
	payload := sig.Payload{
		Market:   req.Market,
		Side:     uint8(req.Side),
		Type:     uint8(req.Type),
		Amount:   req.Amount.String(),
		Price:    req.Price.String(),
		PostOnly: req.PostOnly,
		Nonce:    req.Nonce,
	}
	if !sig.VerifyOrder(common.HexToAddress(info.L1Address), payload, req.Signature) {
		return coreerr.InvalidArgument("order signature does not match registered address")
	}
	return nil
}

// OrderCancelParams is OrderCancel's operation-log payload.
type OrderCancelParams struct {
	UserID  uint32 `json:"user_id"`
	Market  string `json:"market"`
	OrderID uint64 `json:"order_id"`
}

// OrderCancel implements the OrderCancel RPC.
func (c *Controller) OrderCancel(p OrderCancelParams, real bool, now float64) (market.Order, error) {
	if real {
		if err := c.checkServiceAvailable(); err != nil {
			return market.Order{}, err
		}
	}
	m, ok := c.markets.Get(p.Market)
	if !ok {
		return market.Order{}, coreerr.InvalidArgument("unknown market " + p.Market)
	}
	o, err := m.Cancel(p.UserID, p.OrderID, c.persistorFor(real), now)
	if err != nil {
		return market.Order{}, err
	}
	if real {
		c.appendOp(MethodOrderCancel, p, now)
	}
	return o, nil
}

// OrderCancelAllParams is OrderCancelAll's operation-log payload.
type OrderCancelAllParams struct {
	UserID uint32 `json:"user_id"`
	Market string `json:"market"`
}

// OrderCancelAll implements the OrderCancelAll RPC.
func (c *Controller) OrderCancelAll(p OrderCancelAllParams, real bool, now float64) (int, error) {
	if real {
		if err := c.checkServiceAvailable(); err != nil {
			return 0, err
		}
	}
	m, ok := c.markets.Get(p.Market)
	if !ok {
		return 0, coreerr.InvalidArgument("unknown market " + p.Market)
	}
	total := m.CancelAll(p.UserID, c.persistorFor(real), now)
	if real {
		c.appendOp(MethodOrderCancelAll, p, now)
	}
	return total, nil
}

// TransferParams is Transfer's operation-log payload. BusinessID is
// synthesized by the Controller (floor of now in milliseconds, spec.md
// §4.6) and persisted so replay reuses the exact same idempotency key
// instead of re-deriving it from a different "now".
type TransferParams struct {
	From       uint32        `json:"from"`
	To         uint32        `json:"to"`
	Asset      string        `json:"asset"`
	Delta      types.Decimal `json:"delta"`
	Memo       string        `json:"memo"`
	BusinessID int64         `json:"business_id"`
}

// TransferResult is the Transfer RPC's response shape.
type TransferResult struct {
	Success     bool
	Asset       string
	BalanceFrom types.Decimal
}

// Transfer implements the Transfer RPC: two coupled BalanceUpdate calls
// sharing one business_id, debit-then-credit, both through C4 so each
// leg is itself idempotent. If the debit fails, the credit is never
// attempted (spec.md §4.6).
func (c *Controller) Transfer(from, to uint32, assetID string, delta types.Decimal, memo string, real bool, now time.Time) (TransferResult, error) {
	if real {
		if err := c.checkServiceAvailable(); err != nil {
			return TransferResult{}, err
		}
	}
	if !c.assets.Exists(assetID) {
		return TransferResult{}, coreerr.InvalidArgument("unknown asset " + assetID)
	}
	if !delta.IsPositive() {
		return TransferResult{}, coreerr.InvalidArgument("transfer amount must be positive")
	}
	if from == to {
		return TransferResult{}, coreerr.InvalidArgument("transfer from and to must differ")
	}

	businessID := now.UnixNano() / int64(time.Millisecond)
	return c.doTransfer(TransferParams{From: from, To: to, Asset: assetID, Delta: delta, Memo: memo, BusinessID: businessID}, real, now)
}

func (c *Controller) doTransfer(p TransferParams, real bool, now time.Time) (TransferResult, error) {
	persistor := c.persistorFor(real)

	balFrom, err := c.updateCtl.Apply(persistor, p.From, p.Asset, "transfer_out", p.BusinessID, p.Delta.Neg(), p.Memo, now)
	if err != nil {
		return TransferResult{}, err
	}
	if _, err := c.updateCtl.Apply(persistor, p.To, p.Asset, "transfer_in", p.BusinessID, p.Delta, p.Memo, now); err != nil {
		return TransferResult{}, coreerr.Internal("transfer credit leg failed after debit committed", err)
	}

	persistor.InternalTx(event.InternalTxEvent{
		Time: float64(now.UnixNano()) / 1e9, From: p.From, To: p.To, Asset: p.Asset, Amount: p.Delta, Memo: p.Memo,
	})
	if real {
		c.appendOp(MethodTransfer, p, float64(now.UnixNano())/1e9)
	}
	return TransferResult{Success: true, Asset: p.Asset, BalanceFrom: balFrom}, nil
}

// ReloadMarketsParams is ReloadMarkets's operation-log payload.
type ReloadMarketsParams struct {
	Assets      []asset.Config  `json:"assets"`
	Markets     []market.Config `json:"markets"`
	FromScratch bool            `json:"from_scratch"`
}

// ReloadMarkets implements the ReloadMarkets administrative RPC: appends
// (or updates) asset configs, then builds and registers new Markets for
// every market config given, per spec.md §4.2/§4.5 dynamic-reload rules.
func (c *Controller) ReloadMarkets(p ReloadMarketsParams, real bool, now float64) error {
	if real {
		if err := c.checkServiceAvailable(); err != nil {
			return err
		}
	}
	if len(p.Assets) > 0 {
		if err := c.assets.Append(p.Assets); err != nil {
			return coreerr.InvalidArgument(err.Error())
		}
	}
	built := make([]*market.Market, 0, len(p.Markets))
	for _, mc := range p.Markets {
		m, err := market.New(mc, c.assets, c.balances, c.seq, c.marketOrdersEnabled, c.selfTradePrevention, c.strictFeePrecision)
		if err != nil {
			return coreerr.InvalidArgument(fmt.Sprintf("market %s: %v", mc.Name, err))
		}
		built = append(built, m)
	}
	c.markets.Reload(built, p.FromScratch)
	if real {
		c.appendOp(MethodReloadMarkets, p, now)
	}
	return nil
}

// DebugReset implements the debug_reset administrative RPC: wipes every
// balance cell and resets the Sequencer, used only against a
// non-production engine. Markets are left registered with their resting
// orders in place; those orders keep their frozen amounts even though
// the FREEZE cells backing them are wiped.
func (c *Controller) DebugReset(real bool, now float64) error {
	if real {
		if err := c.checkServiceAvailable(); err != nil {
			return err
		}
	}
	c.balances.Reset()
	c.seq.Reset()
	if real {
		c.appendOp(MethodDebugReset, struct{}{}, now)
	}
	return nil
}

// DebugReload re-applies the given asset/market configs without
// resetting balances — equivalent to ReloadMarkets with FromScratch
// forced false, matching the original source's `debug_reload` (adds or
// updates, never resets) per SPEC_FULL.md §5.
func (c *Controller) DebugReload(assets []asset.Config, markets []market.Config, real bool, now float64) error {
	return c.ReloadMarkets(ReloadMarketsParams{Assets: assets, Markets: markets, FromScratch: false}, real, now)
}

// DebugDump forces an out-of-band slice outside the periodic scheduler,
// per SPEC_FULL.md §5. It is not itself an operation-log entry (it has
// no replayable effect on live state) so it runs the same whether real
// or not.
func (c *Controller) DebugDump(now float64) error {
	return c.PerformSlice(now)
}

// Replay implements spec.md §4.6 `replay(method, params)`: deserialize
// params and dispatch to the matching writer with real=false. An
// unrecognized method indicates operation-log/code skew and is fatal,
// per spec.md §4.6 ("Invalid method is fatal").
func (c *Controller) Replay(row storage.OpLogRow) error {
	switch row.Method {
	case MethodRegisterUser:
		var p RegisterUserParams
		if err := json.Unmarshal(row.Params, &p); err != nil {
			return coreerr.Internal("replay: unmarshal register_user params", err)
		}
		_, err := c.RegisterUser(p.L1Address, p.L2Pubkey, false, row.Time)
		return err
	case MethodBalanceUpdate:
		var p BalanceUpdateParams
		if err := json.Unmarshal(row.Params, &p); err != nil {
			return coreerr.Internal("replay: unmarshal update_balance params", err)
		}
		_, err := c.BalanceUpdate(p, false, timeFromUnix(row.Time))
		return err
	case MethodOrderPut:
		var p OrderPutRequest
		if err := json.Unmarshal(row.Params, &p); err != nil {
			return coreerr.Internal("replay: unmarshal order_put params", err)
		}
		_, err := c.OrderPut(p, false, row.Time)
		return err
	case MethodOrderCancel:
		var p OrderCancelParams
		if err := json.Unmarshal(row.Params, &p); err != nil {
			return coreerr.Internal("replay: unmarshal order_cancel params", err)
		}
		_, err := c.OrderCancel(p, false, row.Time)
		return err
	case MethodOrderCancelAll:
		var p OrderCancelAllParams
		if err := json.Unmarshal(row.Params, &p); err != nil {
			return coreerr.Internal("replay: unmarshal order_cancel_all params", err)
		}
		_, err := c.OrderCancelAll(p, false, row.Time)
		return err
	case MethodTransfer:
		var p TransferParams
		if err := json.Unmarshal(row.Params, &p); err != nil {
			return coreerr.Internal("replay: unmarshal transfer params", err)
		}
		_, err := c.doTransfer(p, false, timeFromUnix(row.Time))
		return err
	case MethodReloadMarkets:
		var p ReloadMarketsParams
		if err := json.Unmarshal(row.Params, &p); err != nil {
			return coreerr.Internal("replay: unmarshal market_reload params", err)
		}
		return c.ReloadMarkets(p, false, row.Time)
	case MethodDebugReset:
		return c.DebugReset(false, row.Time)
	default:
		return coreerr.Internal("replay: unknown operation-log method "+row.Method, nil)
	}
}

func timeFromUnix(sec float64) time.Time {
	return time.Unix(0, int64(sec*1e9))
}
