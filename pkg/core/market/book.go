// Package market implements the per-trading-pair order book and matcher
// (C5): price-time priority matching over LIMIT/MARKET orders with
// post-only and self-trade-prevention guards, grounded on the teacher's
// heap-and-FIFO order book (pkg/app/core/orderbook/orderbook.go) and
// generalized from int64 ticks to fixed-precision Decimal.
package market

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"

	"github.com/fluidex-clob/matchcore/coreerr"
	"github.com/fluidex-clob/matchcore/pkg/core/asset"
	"github.com/fluidex-clob/matchcore/pkg/core/balance"
	"github.com/fluidex-clob/matchcore/pkg/core/event"
	"github.com/fluidex-clob/matchcore/pkg/core/persist"
	"github.com/fluidex-clob/matchcore/pkg/core/sequencer"
	"github.com/fluidex-clob/matchcore/pkg/types"
)

// level is one price's FIFO queue of resting orders.
type level struct {
	price  types.Decimal
	orders []*Order
}

// Market owns one trading pair's book and matcher. Every mutation goes
// through PutOrder/Cancel/CancelAll, which serialize on mu — per
// spec.md §5 there is a single logical owner of all Markets, but the
// mutex also lets read-only Depth/Status calls be served safely from
// any goroutine.
type Market struct {
	mu sync.Mutex

	cfg      Config
	assets   *asset.Manager
	balances *balance.Manager
	seq      *sequencer.Sequencer

	marketOrdersEnabled bool
	selfTradePrevention bool

	askLevels map[string]*level
	bidLevels map[string]*level
	asks      askHeap
	bids      bidHeap

	orders map[uint64]*Order
	users  map[uint32]map[uint64]*Order

	tradeCount uint64
}

// New constructs a Market, validating the precision invariants from
// spec.md §3 before anything else (fail-fast at construction).
func New(cfg Config, assets *asset.Manager, balances *balance.Manager, seq *sequencer.Sequencer,
	marketOrdersEnabled, selfTradePrevention, strictFeePrecision bool) (*Market, error) {
	if err := validatePrecisions(cfg, assets, strictFeePrecision); err != nil {
		return nil, err
	}
	return &Market{
		cfg:                 cfg,
		assets:              assets,
		balances:            balances,
		seq:                 seq,
		marketOrdersEnabled: marketOrdersEnabled,
		selfTradePrevention: selfTradePrevention,
		askLevels:           make(map[string]*level),
		bidLevels:           make(map[string]*level),
		orders:              make(map[uint64]*Order),
		users:               make(map[uint32]map[uint64]*Order),
	}, nil
}

func (m *Market) Name() string { return m.cfg.Name }

// PutOrderInput is the validated request shape for order creation, per
// spec.md §4.5.1.
type PutOrderInput struct {
	UserID     uint32
	Side       Side
	Type       Type
	Amount     types.Decimal
	Price      types.Decimal
	QuoteLimit types.Decimal
	TakerFee   types.Decimal
	MakerFee   types.Decimal
	PostOnly   bool
	Signature  []byte
}

// PutOrder validates, creates, and matches one incoming order, returning
// the final order state by value.
func (m *Market) PutOrder(in PutOrderInput, persistor persist.Interface, now float64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in.Type == Market && !m.marketOrdersEnabled {
		return Order{}, coreerr.InvalidArgument("market orders are disabled on this engine")
	}
	if in.Amount.LessThan(m.cfg.MinAmount) {
		return Order{}, coreerr.InvalidArgument(
			fmt.Sprintf("amount %s below min_amount %s", in.Amount, m.cfg.MinAmount))
	}
	if m.cfg.FeePrec == 0 && (!in.TakerFee.IsZero() || !in.MakerFee.IsZero()) {
		return Order{}, coreerr.InvalidArgument("market has zero fee_prec but non-zero fee was supplied")
	}

	roundedAmount := in.Amount.RoundToZero(m.cfg.AmountPrec)
	if !roundedAmount.Equal(in.Amount) {
		return Order{}, coreerr.InvalidArgument("amount precision exceeds market amount_prec")
	}
	roundedPrice := in.Price.RoundToZero(m.cfg.PricePrec)
	if !roundedPrice.Equal(in.Price) {
		return Order{}, coreerr.InvalidArgument("price precision exceeds market price_prec")
	}

	if in.Type == Market {
		if !in.Price.IsZero() {
			return Order{}, coreerr.InvalidArgument("market order price must be zero")
		}
		if in.PostOnly {
			return Order{}, coreerr.InvalidArgument("market order cannot be post_only")
		}
		if m.counterSideEmpty(in.Side) {
			return Order{}, coreerr.InvalidArgument("no liquidity on counter side for market order")
		}
	} else {
		if !in.Price.IsPositive() {
			return Order{}, coreerr.InvalidArgument("limit order price must be positive")
		}
	}

	quotePrec, err := m.assets.PrecStor(m.cfg.Quote)
	if err != nil {
		return Order{}, coreerr.Internal("quote asset missing precision", err)
	}
	basePrec, err := m.assets.PrecStor(m.cfg.Base)
	if err != nil {
		return Order{}, coreerr.Internal("base asset missing precision", err)
	}

	var quoteLimit types.Decimal
	switch {
	case in.Side == Ask:
		have := m.balances.Get(in.UserID, balance.Available, m.cfg.Base)
		if have.LessThan(in.Amount) {
			return Order{}, coreerr.InsufficientBalance(
				fmt.Sprintf("user %d asset %s: have %s need %s", in.UserID, m.cfg.Base, have, in.Amount))
		}
	case in.Side == Bid && in.Type == Limit:
		cost := in.Amount.Mul(in.Price)
		have := m.balances.Get(in.UserID, balance.Available, m.cfg.Quote)
		if have.LessThan(cost) {
			return Order{}, coreerr.InsufficientBalance(
				fmt.Sprintf("user %d asset %s: have %s need %s", in.UserID, m.cfg.Quote, have, cost))
		}
	case in.Side == Bid && in.Type == Market:
		available := m.balances.Get(in.UserID, balance.Available, m.cfg.Quote)
		if in.QuoteLimit.IsZero() {
			quoteLimit = available
		} else {
			quoteLimit = available.Min(in.QuoteLimit.RoundToZero(quotePrec))
		}
	}

	o := &Order{
		ID:         m.seq.NextOrderID(),
		Market:     m.cfg.Name,
		Base:       m.cfg.Base,
		Quote:      m.cfg.Quote,
		Type:       in.Type,
		Side:       in.Side,
		User:       in.UserID,
		CreateTime: now,
		UpdateTime: now,
		Price:      in.Price,
		Amount:     in.Amount,
		TakerFee:   in.TakerFee,
		MakerFee:   in.MakerFee,
		Remain:     in.Amount,
		PostOnly:   in.PostOnly,
		Signature:  in.Signature,
		QuoteLimit: quoteLimit,
		State:      StateOpen,
	}
	persistor.Order(o.toEvent(event.OrderPut))

	cancelled := m.match(o, persistor, now, basePrec, quotePrec)

	if o.Type == Market || o.Remain.IsZero() || cancelled {
		m.finalize(o, persistor, now)
	} else {
		var frozen types.Decimal
		if o.Side == Ask {
			frozen = o.Remain
		} else {
			frozen = o.Remain.Mul(o.Price)
		}
		frozenAsset := m.cfg.Quote
		if o.Side == Ask {
			frozenAsset = m.cfg.Base
		}
		if err := m.balances.Freeze(o.User, frozenAsset, frozen); err != nil {
			return Order{}, coreerr.Internal("freeze resting order failed", err)
		}
		o.Frozen = frozen
		m.orders[o.ID] = o
		if m.users[o.User] == nil {
			m.users[o.User] = make(map[uint64]*Order)
		}
		m.users[o.User][o.ID] = o
		m.addToSide(o)
	}

	return *o, nil
}

func (m *Market) counterSideEmpty(side Side) bool {
	if side == Ask {
		return len(m.bids) == 0
	}
	return len(m.asks) == 0
}

// match runs the maker-traversal loop from spec.md §4.5.2 against taker,
// returning true if taker was cancelled by a post-only or self-trade
// guard.
func (m *Market) match(taker *Order, persistor persist.Interface, now float64, basePrec, quotePrec int32) bool {
	var finishedMakers []*Order

	for taker.Remain.IsPositive() {
		lvl, ok := m.bestCounterLevel(taker.Side)
		if !ok {
			break
		}
		maker := lvl.orders[0]

		var ask, bid *Order
		if taker.Side == Ask {
			ask, bid = taker, maker
		} else {
			ask, bid = maker, taker
		}

		if taker.Type == Limit && ask.Price.GreaterThan(bid.Price) {
			break
		}
		if taker.PostOnly {
			m.finalizeMakers(finishedMakers, persistor, now)
			return true
		}
		if m.selfTradePrevention && ask.User == bid.User {
			m.finalizeMakers(finishedMakers, persistor, now)
			return true
		}

		tradedBase := ask.Remain.Min(bid.Remain)
		if taker == bid && taker.Type == Market {
			newSum := taker.QuoteSpent.Add(maker.Price.Mul(tradedBase))
			if newSum.GreaterThan(taker.QuoteLimit) {
				remainingQuote := taker.QuoteLimit.Sub(taker.QuoteSpent)
				// Divide at extra working precision, then truncate toward
				// zero at amount_prec — a direct DivRound at amount_prec
				// would round-half-up instead of matching the ToZero
				// semantics spec.md §4.5.2 step f requires.
				tradedBase = remainingQuote.Div(maker.Price, m.cfg.AmountPrec+8).RoundToZero(m.cfg.AmountPrec)
				if !tradedBase.IsPositive() {
					break
				}
			}
		}

		tradedQuote := maker.Price.Mul(tradedBase)

		askFeeRate := ask.MakerFee
		if ask == taker {
			askFeeRate = ask.TakerFee
		}
		bidFeeRate := bid.MakerFee
		if bid == taker {
			bidFeeRate = bid.TakerFee
		}
		askFee := tradedQuote.Mul(askFeeRate).RoundToZero(quotePrec)
		bidFee := tradedBase.Mul(bidFeeRate).RoundToZero(basePrec)

		ask.Remain = ask.Remain.Sub(tradedBase)
		ask.FinishedBase = ask.FinishedBase.Add(tradedBase)
		ask.FinishedQuote = ask.FinishedQuote.Add(tradedQuote)
		ask.FinishedFee = ask.FinishedFee.Add(askFee)
		ask.UpdateTime = now

		bid.Remain = bid.Remain.Sub(tradedBase)
		bid.FinishedBase = bid.FinishedBase.Add(tradedBase)
		bid.FinishedQuote = bid.FinishedQuote.Add(tradedQuote)
		bid.FinishedFee = bid.FinishedFee.Add(bidFee)
		bid.UpdateTime = now

		if err := m.applyTradeBalances(ask, bid, maker, tradedBase, tradedQuote, askFee, bidFee); err != nil {
			panic(fmt.Sprintf("matchcore: balance invariant violated during settlement: %v", err))
		}

		if maker.Side == Bid {
			maker.Frozen = maker.Frozen.Sub(tradedQuote)
		} else {
			maker.Frozen = maker.Frozen.Sub(tradedBase)
		}

		if taker == bid && taker.Type == Market {
			taker.QuoteSpent = taker.QuoteSpent.Add(tradedQuote)
		}

		tradeEvt := Trade{
			ID:          m.seq.NextTradeID(),
			Timestamp:   now,
			Market:      m.cfg.Name,
			Base:        m.cfg.Base,
			Quote:       m.cfg.Quote,
			Price:       maker.Price,
			Amount:      tradedBase,
			QuoteAmount: tradedQuote,
			AskUser:     ask.User,
			AskOrder:    ask.ID,
			AskRole:     roleOf(ask, taker),
			AskFee:      askFee,
			BidUser:     bid.User,
			BidOrder:    bid.ID,
			BidRole:     roleOf(bid, taker),
			BidFee:      bidFee,
		}
		persistor.Trade(tradeEvt.toEvent())
		m.tradeCount++

		if maker.Remain.IsZero() {
			m.removeFromSide(maker)
			finishedMakers = append(finishedMakers, maker)
		} else {
			persistor.Order(maker.toEvent(event.OrderUpdate))
		}
	}

	m.finalizeMakers(finishedMakers, persistor, now)
	return false
}

func roleOf(o, taker *Order) event.Role {
	if o == taker {
		return event.Taker
	}
	return event.Maker
}

// applyTradeBalances moves funds in the exact fixed order spec.md
// §4.5.2 step j requires, so replay is byte-deterministic.
func (m *Market) applyTradeBalances(ask, bid, maker *Order, tradedBase, tradedQuote, askFee, bidFee types.Decimal) error {
	if _, err := m.balances.Add(bid.User, balance.Available, m.cfg.Base, tradedBase); err != nil {
		return err
	}
	askBaseKind := balance.Available
	if ask == maker {
		askBaseKind = balance.Freeze
	}
	if _, err := m.balances.Sub(ask.User, askBaseKind, m.cfg.Base, tradedBase); err != nil {
		return err
	}
	if _, err := m.balances.Add(ask.User, balance.Available, m.cfg.Quote, tradedQuote); err != nil {
		return err
	}
	bidQuoteKind := balance.Available
	if bid == maker {
		bidQuoteKind = balance.Freeze
	}
	if _, err := m.balances.Sub(bid.User, bidQuoteKind, m.cfg.Quote, tradedQuote); err != nil {
		return err
	}
	if askFee.IsPositive() {
		if _, err := m.balances.Sub(ask.User, balance.Available, m.cfg.Quote, askFee); err != nil {
			return err
		}
	}
	if bidFee.IsPositive() {
		if _, err := m.balances.Sub(bid.User, balance.Available, m.cfg.Base, bidFee); err != nil {
			return err
		}
	}
	return nil
}

func (m *Market) finalizeMakers(makers []*Order, persistor persist.Interface, now float64) {
	for _, mk := range makers {
		m.finalize(mk, persistor, now)
	}
}

// finalize implements order_finish (spec.md §4.5.2): drop every index
// reference, unfreeze any remainder, and emit FINISH.
func (m *Market) finalize(o *Order, persistor persist.Interface, now float64) {
	delete(m.orders, o.ID)
	if users, ok := m.users[o.User]; ok {
		delete(users, o.ID)
		if len(users) == 0 {
			delete(m.users, o.User)
		}
	}
	m.removeFromSide(o)

	if o.Frozen.IsPositive() {
		assetID := m.cfg.Quote
		if o.Side == Ask {
			assetID = m.cfg.Base
		}
		if err := m.balances.Unfreeze(o.User, assetID, o.Frozen); err != nil {
			panic(fmt.Sprintf("matchcore: unfreeze invariant violated: %v", err))
		}
		o.Frozen = types.Zero
	}
	o.UpdateTime = now
	o.State = StateFinish
	persistor.Order(o.toEvent(event.OrderFinish))
}

func (m *Market) bestCounterLevel(takerSide Side) (*level, bool) {
	if takerSide == Ask {
		for m.bids.Len() > 0 {
			price := m.bids.Peek()
			lvl := m.bidLevels[price.String()]
			if lvl == nil || len(lvl.orders) == 0 {
				heap.Pop(&m.bids)
				delete(m.bidLevels, price.String())
				continue
			}
			return lvl, true
		}
		return nil, false
	}
	for m.asks.Len() > 0 {
		price := m.asks.Peek()
		lvl := m.askLevels[price.String()]
		if lvl == nil || len(lvl.orders) == 0 {
			heap.Pop(&m.asks)
			delete(m.askLevels, price.String())
			continue
		}
		return lvl, true
	}
	return nil, false
}

func (m *Market) addToSide(o *Order) {
	key := o.Price.String()
	if o.Side == Ask {
		lvl, ok := m.askLevels[key]
		if !ok {
			lvl = &level{price: o.Price}
			m.askLevels[key] = lvl
			heap.Push(&m.asks, o.Price)
		}
		lvl.orders = append(lvl.orders, o)
		return
	}
	lvl, ok := m.bidLevels[key]
	if !ok {
		lvl = &level{price: o.Price}
		m.bidLevels[key] = lvl
		heap.Push(&m.bids, o.Price)
	}
	lvl.orders = append(lvl.orders, o)
}

func (m *Market) removeFromSide(o *Order) {
	key := o.Price.String()
	levels := m.askLevels
	if o.Side == Bid {
		levels = m.bidLevels
	}
	lvl, ok := levels[key]
	if !ok {
		return
	}
	for i, cur := range lvl.orders {
		if cur.ID == o.ID {
			lvl.orders = append(lvl.orders[:i], lvl.orders[i+1:]...)
			break
		}
	}
	if len(lvl.orders) == 0 {
		delete(levels, key)
	}
}

// Cancel removes a resting order belonging to user. Ownership is
// enforced by the caller (Controller), per spec.md §4.5.3.
func (m *Market) Cancel(user uint32, orderID uint64, persistor persist.Interface, now float64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.User != user {
		return Order{}, coreerr.InvalidArgument(fmt.Sprintf("order %d not found for user %d", orderID, user))
	}
	m.finalize(o, persistor, now)
	return *o, nil
}

// CancelAll cancels every resting order for user, snapshotting the id
// set first so finalization does not mutate the map being iterated.
func (m *Market) CancelAll(user uint32, persistor persist.Interface, now float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.users[user]
	if !ok {
		return 0
	}
	ids := make([]uint64, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if o, ok := m.orders[id]; ok {
			m.finalize(o, persistor, now)
		}
	}
	return len(ids)
}

// DepthLevel is one bucketed price/amount pair in an OrderBookDepth reply.
type DepthLevel struct {
	Price  types.Decimal
	Amount types.Decimal
}

// Depth implements spec.md §4.5.4: bucketed aggregate depth on each side.
func (m *Market) Depth(limit int, interval types.Decimal) (asks, bids []DepthLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return bucket(m.sortedLevels(true), limit, interval, true),
		bucket(m.sortedLevels(false), limit, interval, false)
}

func (m *Market) sortedLevels(ask bool) []*level {
	src := m.askLevels
	if !ask {
		src = m.bidLevels
	}
	out := make([]*level, 0, len(src))
	for _, lvl := range src {
		if len(lvl.orders) > 0 {
			out = append(out, lvl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ask {
			return out[i].price.LessThan(out[j].price)
		}
		return out[i].price.GreaterThan(out[j].price)
	})
	return out
}

func bucket(levels []*level, limit int, interval types.Decimal, ask bool) []DepthLevel {
	var out []DepthLevel
	for _, lvl := range levels {
		price := lvl.price
		if interval.IsPositive() {
			if ask {
				price = price.CeilToMultiple(interval)
			} else {
				price = price.FloorToMultiple(interval)
			}
		}
		amount := types.Zero
		for _, o := range lvl.orders {
			amount = amount.Add(o.Remain)
		}
		if n := len(out); n > 0 && out[n-1].Price.Equal(price) {
			out[n-1].Amount = out[n-1].Amount.Add(amount)
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, DepthLevel{Price: price, Amount: amount})
	}
	return out
}

// Status implements spec.md §4.5.5.
type Status struct {
	AskCount  int
	AskAmount types.Decimal
	BidCount  int
	BidAmount types.Decimal
	TradeCount uint64
}

func (m *Market) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{AskAmount: types.Zero, BidAmount: types.Zero, TradeCount: m.tradeCount}
	for _, o := range m.orders {
		if o.Side == Ask {
			st.AskCount++
			st.AskAmount = st.AskAmount.Add(o.Remain)
		} else {
			st.BidCount++
			st.BidAmount = st.BidAmount.Add(o.Remain)
		}
	}
	return st
}

// Order looks up a resting order by id.
func (m *Market) Order(id uint64) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// UserOrders returns every currently-resting order for user, unordered;
// callers paginate/sort as needed (spec.md §4.6 order_query).
func (m *Market) UserOrders(user uint32) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	users, ok := m.users[user]
	if !ok {
		return nil
	}
	out := make([]Order, 0, len(users))
	for _, o := range users {
		out = append(out, *o)
	}
	return out
}

// AllOrders returns every currently-resting order, for slicing (C8
// spec.md §4.7: "for each resting order a row with all order fields").
func (m *Market) AllOrders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out
}

// RestoreOrder inserts a previously-persisted resting order directly into
// the book's indices, bypassing matching entirely — used only during
// slice load (spec.md §4.7 recovery step 3).
func (m *Market) RestoreOrder(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := o
	m.orders[stored.ID] = &stored
	if m.users[stored.User] == nil {
		m.users[stored.User] = make(map[uint64]*Order)
	}
	m.users[stored.User][stored.ID] = &stored
	m.addToSide(&stored)
}
