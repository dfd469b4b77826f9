package orderbook

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type Side int
type OrderType int

const (
	Buy Side = iota
	Sell
)

const (
	Limit OrderType = iota
	Market
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Opposite returns the side an order of this side trades against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	default:
		return fmt.Sprintf("OrderType(%d)", int(t))
	}
}

// Order is a client order. ID is assigned by the caller and must not be
// reused while the order rests. Price is ignored for market orders.
type Order struct {
	ID       uint64          `validate:"gt=0"`
	Type     OrderType       `validate:"oneof=0 1"`
	Side     Side            `validate:"oneof=0 1"`
	Price    decimal.Decimal
	Qty      int64  `validate:"gt=0"`
	TraderID string `validate:"required"`

	level *PriceLevel
	next  *Order
	prev  *Order
}

// detached returns a copy that carries no queue links.
func (o *Order) detached() Order {
	return Order{
		ID:       o.ID,
		Type:     o.Type,
		Side:     o.Side,
		Price:    o.Price,
		Qty:      o.Qty,
		TraderID: o.TraderID,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		o := sl.Current().Interface().(Order)
		if o.Type == Limit && !o.Price.IsPositive() {
			sl.ReportError(o.Price, "Price", "Price", "gt", "0")
		}
	}, Order{})
	return v
}

// Validate checks the order against the entry preconditions.
func (o Order) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	return nil
}
