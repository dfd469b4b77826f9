package orderbook

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// placeLimit rests o at the back of its level and uncrosses the book.
func (b *Book) placeLimit(o Order) Execution {
	resting := b.nodes.get(o)
	b.tree(o.Side).GetOrCreate(o.Price).Enqueue(resting)
	b.orders[o.ID] = resting

	trades := b.match(o.Side)

	// A fully filled node has already been recycled.
	var remaining int64
	if n, ok := b.orders[o.ID]; ok {
		remaining = n.Qty
	}

	exec := Execution{
		OrderID:   o.ID,
		Trades:    trades,
		Filled:    o.Qty - remaining,
		Remaining: remaining,
		Outcome:   Resting,
	}
	if remaining == 0 {
		exec.Outcome = Filled
	}
	return exec
}

// match trades the heads of the best bid and ask levels while they cross.
// Each trade prints at the ask price.
func (b *Book) match(taker Side) []Trade {
	var trades []Trade
	for {
		bid, ask := b.bids.BestMax(), b.asks.BestMin()
		if bid == nil || ask == nil || bid.Price.LessThan(ask.Price) {
			return trades
		}

		buy, sell := bid.Head(), ask.Head()
		qty := min(buy.Qty, sell.Qty)
		trades = append(trades, b.record(buy, sell, qty, ask.Price, taker))

		b.fill(buy, qty)
		b.fill(sell, qty)
	}
}

// executeMarket sweeps the opposite side at the resting prices. The market
// order never rests.
func (b *Book) executeMarket(o Order) Execution {
	exec := Execution{OrderID: o.ID}
	taker := &o

	for taker.Qty > 0 {
		best := b.best(o.Side.Opposite())
		if best == nil {
			break
		}

		maker := best.Head()
		qty := min(taker.Qty, maker.Qty)
		buy, sell := taker, maker
		if o.Side == Sell {
			buy, sell = maker, taker
		}
		exec.Trades = append(exec.Trades, b.record(buy, sell, qty, best.Price, o.Side))

		taker.Qty -= qty
		exec.Filled += qty
		b.fill(maker, qty)
	}

	exec.Remaining = taker.Qty
	exec.Outcome = Filled
	if exec.Remaining > 0 {
		exec.Outcome = PartialFill
	}
	return exec
}

// fill takes qty off a resting order and removes it once exhausted.
func (b *Book) fill(o *Order, qty int64) {
	o.level.Fill(o, qty)
	if o.Qty == 0 {
		b.remove(o)
	}
}

func (b *Book) record(buy, sell *Order, qty int64, price decimal.Decimal, taker Side) Trade {
	t := Trade{
		Seq:         b.seq.Next(),
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		Buyer:       buy.TraderID,
		Seller:      sell.TraderID,
		Price:       price,
		Qty:         qty,
		TakerSide:   taker,
		Time:        b.now(),
	}
	b.ledger.RecordTrade(t.Buyer, t.Seller, t.Qty, t.Price)

	b.log.Debug("orderbook: matched",
		zap.Uint64("seq", t.Seq),
		zap.Int64("qty", t.Qty),
		zap.String("price", t.Price.String()),
		zap.String("buyer", t.Buyer),
		zap.String("seller", t.Seller),
	)
	return t
}
