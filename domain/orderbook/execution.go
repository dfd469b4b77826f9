package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

type Outcome int

const (
	// Resting: a limit order with quantity left on the book.
	Resting Outcome = iota
	// Filled: nothing of the order is left.
	Filled
	// PartialFill: a market order ran out of liquidity; Remaining was dropped.
	PartialFill
)

func (o Outcome) String() string {
	switch o {
	case Resting:
		return "RESTING"
	case Filled:
		return "FILLED"
	case PartialFill:
		return "PARTIAL_FILL"
	default:
		return "UNKNOWN"
	}
}

type Trade struct {
	Seq         uint64
	BuyOrderID  uint64
	SellOrderID uint64
	Buyer       string
	Seller      string
	Price       decimal.Decimal
	Qty         int64
	TakerSide   Side
	Time        time.Time
}

// Execution is the result of entering or modifying an order.
type Execution struct {
	OrderID   uint64
	Trades    []Trade
	Filled    int64
	Remaining int64
	Outcome   Outcome
}

type Level struct {
	Price    decimal.Decimal
	Orders   int
	Quantity int64
}

type Depth struct {
	Bids []Level
	Asks []Level
}
