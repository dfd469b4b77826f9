package orderbook

import (
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const treeDegree = 32

// PriceTree keeps the price levels of one side ordered by price.
type PriceTree struct {
	tree *btree.BTreeG[*PriceLevel]
}

func NewPriceTree() *PriceTree {
	return &PriceTree{
		tree: btree.NewG(treeDegree, func(a, b *PriceLevel) bool {
			return a.Price.LessThan(b.Price)
		}),
	}
}

func (t *PriceTree) GetOrCreate(price decimal.Decimal) *PriceLevel {
	if lvl := t.Find(price); lvl != nil {
		return lvl
	}
	lvl := &PriceLevel{Price: price}
	t.tree.ReplaceOrInsert(lvl)
	return lvl
}

func (t *PriceTree) Find(price decimal.Decimal) *PriceLevel {
	lvl, ok := t.tree.Get(&PriceLevel{Price: price})
	if !ok {
		return nil
	}
	return lvl
}

func (t *PriceTree) Delete(price decimal.Decimal) bool {
	_, ok := t.tree.Delete(&PriceLevel{Price: price})
	return ok
}

func (t *PriceTree) BestMin() *PriceLevel {
	lvl, ok := t.tree.Min()
	if !ok {
		return nil
	}
	return lvl
}

func (t *PriceTree) BestMax() *PriceLevel {
	lvl, ok := t.tree.Max()
	if !ok {
		return nil
	}
	return lvl
}

func (t *PriceTree) Len() int {
	return t.tree.Len()
}

// ---- walkers ----

func (t *PriceTree) walkAsc(fn func(*PriceLevel)) {
	t.tree.Ascend(func(lvl *PriceLevel) bool {
		fn(lvl)
		return true
	})
}

func (t *PriceTree) walkDesc(fn func(*PriceLevel)) {
	t.tree.Descend(func(lvl *PriceLevel) bool {
		fn(lvl)
		return true
	})
}
