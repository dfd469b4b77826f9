package service

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	"matchbook/domain/pnl"
	"matchbook/infra/metrics"
)

// TradeOutbox durably queues encoded trade events for the broadcaster.
type TradeOutbox interface {
	PutNew(seq uint64, payload []byte) error
}

/*
OrderService is the ONLY write entry point into the engine.

The book does the matching under its own lock; everything here runs after
the book call returns, so logging, metrics and the outbox never extend the
critical section. Trades still reach the outbox in sequence order: a trade
that overtakes an earlier one waits in pending until the gap is filled.
*/
type OrderService struct {
	book    *orderbook.Book
	outbox  TradeOutbox
	metrics *metrics.Metrics
	log     *zap.Logger

	outMu   sync.Mutex
	nextSeq uint64
	pending map[uint64]orderbook.Trade
}

// NewOrderService wires all dependencies. outbox may be nil when the trade
// drop-copy is disabled.
func NewOrderService(
	book *orderbook.Book,
	outbox TradeOutbox,
	m *metrics.Metrics,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		book:    book,
		outbox:  outbox,
		metrics: m,
		log:     log,
		nextSeq: book.LastTradeSeq() + 1,
		pending: make(map[uint64]orderbook.Trade),
	}
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// Submit enters an order into the book.
func (s *OrderService) Submit(o orderbook.Order) (orderbook.Execution, error) {
	exec, err := s.book.Submit(o)
	if err != nil {
		s.metrics.OrdersRejected.Inc()
		s.log.Info("engine: order rejected", zap.Uint64("order_id", o.ID), zap.Error(err))
		return orderbook.Execution{}, errors.Wrapf(err, "submit order %d", o.ID)
	}

	s.metrics.OrdersSubmitted.WithLabelValues(o.Side.String(), o.Type.String()).Inc()
	s.log.Debug("engine: order accepted",
		zap.Uint64("order_id", o.ID),
		zap.Stringer("side", o.Side),
		zap.Stringer("type", o.Type),
		zap.String("trader", o.TraderID),
		zap.Stringer("outcome", exec.Outcome),
	)
	s.afterExecution(exec)
	return exec, nil
}

// Cancel withdraws a resting order; false means it is unknown or filled.
func (s *OrderService) Cancel(id uint64) bool {
	ok := s.book.Cancel(id)
	if !ok {
		s.log.Debug("engine: cancel missed", zap.Uint64("order_id", id))
		return false
	}
	s.metrics.OrdersCancelled.Inc()
	s.metrics.RestingOrders.Set(float64(s.book.Resting()))
	s.log.Debug("engine: order cancelled", zap.Uint64("order_id", id))
	return true
}

// Modify replaces quantity and price of a resting order. It returns an error
// matching orderbook.ErrOrderNotFound when id is not resting.
func (s *OrderService) Modify(id uint64, qty int64, price decimal.Decimal) (orderbook.Execution, error) {
	exec, err := s.book.Modify(id, qty, price)
	if err != nil {
		s.log.Debug("engine: modify refused", zap.Uint64("order_id", id), zap.Error(err))
		return orderbook.Execution{}, errors.Wrapf(err, "modify order %d", id)
	}

	s.metrics.OrdersModified.Inc()
	s.afterExecution(exec)
	return exec, nil
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

func (s *OrderService) MarketDepth() orderbook.Depth {
	return s.book.MarketDepth()
}

func (s *OrderService) OpenOrders() []orderbook.Order {
	return s.book.OpenOrders()
}

func (s *OrderService) MarketPrice() decimal.NullDecimal {
	return s.book.MarketPrice()
}

// PnLReport values positions at mark, or at the market price when mark is
// not valid.
func (s *OrderService) PnLReport(mark decimal.NullDecimal) []pnl.Row {
	return s.book.PnLReport(mark)
}

//
// ──────────────────────────────────────────────────────────
// Post-trade
// ──────────────────────────────────────────────────────────
//

func (s *OrderService) afterExecution(exec orderbook.Execution) {
	for _, t := range exec.Trades {
		s.metrics.Trades.Inc()
		s.metrics.TradedQuantity.Add(float64(t.Qty))
		s.log.Info("engine: trade",
			zap.Uint64("seq", t.Seq),
			zap.Int64("qty", t.Qty),
			zap.String("price", t.Price.String()),
			zap.String("buyer", t.Buyer),
			zap.String("seller", t.Seller),
		)
	}
	s.enqueue(exec.Trades)

	if exec.Outcome == orderbook.PartialFill {
		s.metrics.MarketUnfilled.Add(float64(exec.Remaining))
		s.log.Warn("engine: market order not fully filled",
			zap.Uint64("order_id", exec.OrderID),
			zap.Int64("filled", exec.Filled),
			zap.Int64("remaining", exec.Remaining),
		)
	}
	s.metrics.RestingOrders.Set(float64(s.book.Resting()))
}

// enqueue hands trades to the drop-copy outbox in sequence order.
func (s *OrderService) enqueue(trades []orderbook.Trade) {
	if s.outbox == nil || len(trades) == 0 {
		return
	}

	s.outMu.Lock()
	defer s.outMu.Unlock()

	for _, t := range trades {
		s.pending[t.Seq] = t
	}
	for {
		t, ok := s.pending[s.nextSeq]
		if !ok {
			return
		}
		delete(s.pending, s.nextSeq)
		s.write(t)
		s.nextSeq++
	}
}

// write stores one trade event. A failure is reported but the trade stands.
func (s *OrderService) write(t orderbook.Trade) {
	payload, err := EncodeTrade(t)
	if err == nil {
		err = s.outbox.PutNew(t.Seq, payload)
	}
	if err != nil {
		s.metrics.OutboxFailures.Inc()
		s.log.Error("engine: outbox write failed", zap.Uint64("seq", t.Seq), zap.Error(err))
	}
}
