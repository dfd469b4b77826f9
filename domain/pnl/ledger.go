// Package pnl keeps per-trader cash and position accounting for trades
// executed by the order book.
package pnl

import (
	"iter"
	"slices"

	"github.com/shopspring/decimal"
)

// Row is one trader's line of a PnL report. Unrealized and Total are
// absent when no mark price was available.
type Row struct {
	Trader     string
	Realized   decimal.Decimal
	Holdings   int64
	Unrealized decimal.NullDecimal
	Total      decimal.NullDecimal
}

// Ledger tracks realized cash and net holdings per trader.
// It is not safe for concurrent use; the order book owns it.
type Ledger struct {
	realized map[string]decimal.Decimal
	holdings map[string]int64
}

func NewLedger() *Ledger {
	return &Ledger{
		realized: make(map[string]decimal.Decimal),
		holdings: make(map[string]int64),
	}
}

// RecordTrade books qty at price: the buyer pays cash and gains position,
// the seller receives cash and loses position.
func (l *Ledger) RecordTrade(buyer, seller string, qty int64, price decimal.Decimal) {
	value := price.Mul(decimal.NewFromInt(qty))

	l.realized[buyer] = l.realized[buyer].Sub(value)
	l.realized[seller] = l.realized[seller].Add(value)

	l.holdings[buyer] += qty
	l.holdings[seller] -= qty
}

func (l *Ledger) Realized(trader string) decimal.Decimal {
	return l.realized[trader]
}

func (l *Ledger) Holdings(trader string) int64 {
	return l.holdings[trader]
}

func (l *Ledger) Len() int {
	return len(l.realized)
}

// Report yields one row per trader ever seen, ordered by trader ID.
// The sequence reads the ledger when iterated and may be ranged over again.
func (l *Ledger) Report(mark decimal.NullDecimal) iter.Seq[Row] {
	return func(yield func(Row) bool) {
		traders := make([]string, 0, len(l.realized))
		for trader := range l.realized {
			traders = append(traders, trader)
		}
		slices.Sort(traders)

		for _, trader := range traders {
			if !yield(l.row(trader, mark)) {
				return
			}
		}
	}
}

func (l *Ledger) row(trader string, mark decimal.NullDecimal) Row {
	r := Row{
		Trader:   trader,
		Realized: l.realized[trader],
		Holdings: l.holdings[trader],
	}
	if mark.Valid {
		unrealized := mark.Decimal.Mul(decimal.NewFromInt(r.Holdings))
		r.Unrealized = decimal.NewNullDecimal(unrealized)
		r.Total = decimal.NewNullDecimal(r.Realized.Add(unrealized))
	}
	return r
}
