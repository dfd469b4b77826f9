package orderbook

import "github.com/shopspring/decimal"

// PriceLevel is a FIFO queue of resting orders at a single price.
// Orders are linked in place so a cancel can unlink without a scan.
type PriceLevel struct {
	Price decimal.Decimal

	head *Order
	tail *Order

	TotalQty   int64
	OrderCount int
}

func (p *PriceLevel) Enqueue(o *Order) {
	o.level = p
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	p.TotalQty += o.Qty
	p.OrderCount++
}

// Remove unlinks o from the level. o must belong to p.
func (p *PriceLevel) Remove(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	p.TotalQty -= o.Qty
	p.OrderCount--

	o.next = nil
	o.prev = nil
	o.level = nil
}

// Fill reduces the quantity of o, which must belong to p.
func (p *PriceLevel) Fill(o *Order, qty int64) {
	o.Qty -= qty
	p.TotalQty -= qty
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

func (p *PriceLevel) Head() *Order {
	return p.head
}

func (o *Order) Next() *Order {
	return o.next
}
