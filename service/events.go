package service

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"matchbook/domain/orderbook"
)

const tradeEventVersion = 1

// EncodeTrade serializes a trade as a protobuf Struct. Integers and the price
// are carried as strings since Struct numbers are float64.
func EncodeTrade(t orderbook.Trade) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"v":             tradeEventVersion,
		"type":          "trade",
		"seq":           strconv.FormatUint(t.Seq, 10),
		"buy_order_id":  strconv.FormatUint(t.BuyOrderID, 10),
		"sell_order_id": strconv.FormatUint(t.SellOrderID, 10),
		"buyer":         t.Buyer,
		"seller":        t.Seller,
		"price":         t.Price.String(),
		"qty":           strconv.FormatInt(t.Qty, 10),
		"taker_side":    t.TakerSide.String(),
		"time":          t.Time.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode trade")
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(s)
}

// DecodeTrade is the inverse of EncodeTrade.
func DecodeTrade(b []byte) (orderbook.Trade, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return orderbook.Trade{}, errors.Wrap(err, "decode trade")
	}
	f := s.GetFields()

	var (
		t   orderbook.Trade
		err error
	)
	if t.Seq, err = strconv.ParseUint(f["seq"].GetStringValue(), 10, 64); err != nil {
		return orderbook.Trade{}, errors.Wrap(err, "decode trade: seq")
	}
	if t.BuyOrderID, err = strconv.ParseUint(f["buy_order_id"].GetStringValue(), 10, 64); err != nil {
		return orderbook.Trade{}, errors.Wrap(err, "decode trade: buy_order_id")
	}
	if t.SellOrderID, err = strconv.ParseUint(f["sell_order_id"].GetStringValue(), 10, 64); err != nil {
		return orderbook.Trade{}, errors.Wrap(err, "decode trade: sell_order_id")
	}
	if t.Qty, err = strconv.ParseInt(f["qty"].GetStringValue(), 10, 64); err != nil {
		return orderbook.Trade{}, errors.Wrap(err, "decode trade: qty")
	}
	if t.Price, err = decimal.NewFromString(f["price"].GetStringValue()); err != nil {
		return orderbook.Trade{}, errors.Wrap(err, "decode trade: price")
	}
	if t.Time, err = time.Parse(time.RFC3339Nano, f["time"].GetStringValue()); err != nil {
		return orderbook.Trade{}, errors.Wrap(err, "decode trade: time")
	}

	t.Buyer = f["buyer"].GetStringValue()
	t.Seller = f["seller"].GetStringValue()
	t.TakerSide = orderbook.Buy
	if f["taker_side"].GetStringValue() == orderbook.Sell.String() {
		t.TakerSide = orderbook.Sell
	}
	return t, nil
}

// TradeKey is the partition key of a trade event.
func TradeKey(seq uint64) []byte {
	return []byte(strconv.FormatUint(seq, 10))
}
