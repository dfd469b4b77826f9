package orderbook

import "errors"

var (
	ErrInvalidOrder     = errors.New("orderbook: invalid order")
	ErrDuplicateOrderID = errors.New("orderbook: order id already resting")
	ErrOrderNotFound    = errors.New("orderbook: order not found")
)
