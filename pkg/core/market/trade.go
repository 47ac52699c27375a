package market

import (
	"github.com/fluidex-clob/matchcore/pkg/core/event"
	"github.com/fluidex-clob/matchcore/pkg/types"
)

// Trade is the internal record of one maker/taker fill, converted to an
// event.TradeEvent for emission. Kept separate from event.TradeEvent so
// the matching loop can build it incrementally before it is final.
type Trade struct {
	ID          uint64
	Timestamp   float64
	Market      string
	Base, Quote string
	Price       types.Decimal
	Amount      types.Decimal
	QuoteAmount types.Decimal

	AskUser  uint32
	AskOrder uint64
	AskRole  event.Role
	AskFee   types.Decimal

	BidUser  uint32
	BidOrder uint64
	BidRole  event.Role
	BidFee   types.Decimal
}

func (t Trade) toEvent() event.TradeEvent {
	return event.TradeEvent{
		ID:          t.ID,
		Timestamp:   t.Timestamp,
		Market:      t.Market,
		Base:        t.Base,
		Quote:       t.Quote,
		Price:       t.Price,
		Amount:      t.Amount,
		QuoteAmount: t.QuoteAmount,
		AskUser:     t.AskUser,
		AskOrder:    t.AskOrder,
		AskRole:     t.AskRole,
		AskFee:      t.AskFee,
		BidUser:     t.BidUser,
		BidOrder:    t.BidOrder,
		BidRole:     t.BidRole,
		BidFee:      t.BidFee,
	}
}
