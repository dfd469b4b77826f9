package orderbook

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchbook/domain/pnl"
	"matchbook/infra/sequence"
)

// Book is a single-instrument limit order book. Every exported method takes
// the book lock exactly once; the unexported helpers assume it is held.
type Book struct {
	mu sync.Mutex

	bids   *PriceTree
	asks   *PriceTree
	orders map[uint64]*Order
	nodes  *nodePool
	ledger *pnl.Ledger

	seq *sequence.Sequencer
	log *zap.Logger
	now func() time.Time
}

type Option func(*Book)

func WithLogger(l *zap.Logger) Option {
	return func(b *Book) {
		b.log = l
	}
}

// WithTradeSequencer sets the source of trade sequence numbers.
func WithTradeSequencer(s *sequence.Sequencer) Option {
	return func(b *Book) {
		b.seq = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Book) {
		b.now = now
	}
}

func NewBook(opts ...Option) *Book {
	b := &Book{
		bids:   NewPriceTree(),
		asks:   NewPriceTree(),
		orders: make(map[uint64]*Order),
		nodes:  newNodePool(),
		ledger: pnl.NewLedger(),
		seq:    sequence.New(0),
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────

// Submit enters an order. Limit orders rest at the back of their price level
// and then the book is uncrossed; market orders sweep the opposite side and
// any unfilled quantity is dropped and reported as PartialFill.
func (b *Book) Submit(o Order) (Execution, error) {
	if err := o.Validate(); err != nil {
		return Execution{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.orders[o.ID]; ok {
		return Execution{}, fmt.Errorf("%w: %d", ErrDuplicateOrderID, o.ID)
	}
	if o.Type == Market {
		return b.executeMarket(o), nil
	}
	return b.placeLimit(o), nil
}

// Cancel withdraws a resting order. It reports false if the id is unknown
// or the order has already been filled.
func (b *Book) Cancel(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.cancel(id)
	return ok
}

// Modify replaces the quantity and price of a resting order. The order loses
// its time priority and may trade immediately at the new price.
func (b *Book) Modify(id uint64, qty int64, price decimal.Decimal) (Execution, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return Execution{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}

	next := o.detached()
	next.Type = Limit
	next.Qty = qty
	next.Price = price
	if err := next.Validate(); err != nil {
		return Execution{}, err
	}

	b.cancel(id)
	return b.placeLimit(next), nil
}

// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────

// MarketPrice returns the mid of the best bid and ask, the best price of
// the only non-empty side, or an invalid value when the book is empty.
func (b *Book) MarketPrice() decimal.NullDecimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.marketPrice()
}

// MarketDepth aggregates each price level, best price first on both sides.
func (b *Book) MarketDepth() Depth {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := Depth{
		Bids: make([]Level, 0, b.bids.Len()),
		Asks: make([]Level, 0, b.asks.Len()),
	}
	b.bids.walkDesc(func(lvl *PriceLevel) {
		d.Bids = append(d.Bids, levelOf(lvl))
	})
	b.asks.walkAsc(func(lvl *PriceLevel) {
		d.Asks = append(d.Asks, levelOf(lvl))
	})
	return d
}

// OpenOrders lists every resting order ordered by ID.
func (b *Book) OpenOrders() []Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o.detached())
	}
	slices.SortFunc(out, func(x, y Order) int {
		return cmp.Compare(x.ID, y.ID)
	})
	return out
}

// Lookup returns the resting state of an order.
func (b *Book) Lookup(id uint64) (Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	return o.detached(), true
}

// LastTradeSeq returns the sequence number of the most recent trade, or the
// sequencer's start value before the first trade.
func (b *Book) LastTradeSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.seq.Current()
}

// Resting returns the number of resting orders.
func (b *Book) Resting() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.orders)
}

// PnLReport values every trader's position at mark. An invalid mark is
// replaced by the current market price; if that is undefined too, the
// unrealized and total columns are left absent.
func (b *Book) PnLReport(mark decimal.NullDecimal) []pnl.Row {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !mark.Valid {
		mark = b.marketPrice()
	}
	return slices.Collect(b.ledger.Report(mark))
}

// ──────────────────────────────────────────────────────────
// Unlocked helpers
// ──────────────────────────────────────────────────────────

func (b *Book) tree(s Side) *PriceTree {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) best(s Side) *PriceLevel {
	if s == Buy {
		return b.bids.BestMax()
	}
	return b.asks.BestMin()
}

func (b *Book) marketPrice() decimal.NullDecimal {
	bid, ask := b.bids.BestMax(), b.asks.BestMin()
	switch {
	case bid != nil && ask != nil:
		return decimal.NewNullDecimal(bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)))
	case bid != nil:
		return decimal.NewNullDecimal(bid.Price)
	case ask != nil:
		return decimal.NewNullDecimal(ask.Price)
	default:
		return decimal.NullDecimal{}
	}
}

func (b *Book) cancel(id uint64) (Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	out := o.detached()
	b.remove(o)
	return out, true
}

// remove drops o from its level, the level from its tree once empty, and o
// from the index, then recycles the node. o must not be used afterwards.
func (b *Book) remove(o *Order) {
	lvl := o.level
	side := o.Side
	lvl.Remove(o)
	if lvl.Empty() {
		b.tree(side).Delete(lvl.Price)
	}
	delete(b.orders, o.ID)
	b.nodes.put(o)
}

func levelOf(lvl *PriceLevel) Level {
	return Level{
		Price:    lvl.Price,
		Orders:   lvl.OrderCount,
		Quantity: lvl.TotalQty,
	}
}
