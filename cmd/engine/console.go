package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"matchbook/domain/orderbook"
	"matchbook/domain/pnl"
	"matchbook/infra/sequence"
)

// Engine is what the console needs from the order service.
type Engine interface {
	Submit(o orderbook.Order) (orderbook.Execution, error)
	Cancel(id uint64) bool
	Modify(id uint64, qty int64, price decimal.Decimal) (orderbook.Execution, error)
	MarketDepth() orderbook.Depth
	OpenOrders() []orderbook.Order
	MarketPrice() decimal.NullDecimal
	PnLReport(mark decimal.NullDecimal) []pnl.Row
}

const usage = `Commands:
  LIMIT BUY <price> <qty> <traderId>
  LIMIT SELL <price> <qty> <traderId>
  MARKET BUY <qty> <traderId>
  MARKET SELL <qty> <traderId>
  SHOW                         order book depth and PnL
  SHOW ORDERS                  all resting orders
  CANCEL <orderId>
  MODIFY <orderId> <newQty> <newPrice>
  EXIT
`

// Console turns text commands into engine calls. It owns the order ID
// counter.
type Console struct {
	eng Engine
	ids *sequence.Sequencer
	out io.Writer
}

func NewConsole(eng Engine, ids *sequence.Sequencer, out io.Writer) *Console {
	return &Console{eng: eng, ids: ids, out: out}
}

// Run reads commands from in until EXIT, end of input, or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	fmt.Fprint(c.out, usage)
	for {
		fmt.Fprint(c.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			if c.Exec(line) {
				return nil
			}
		}
	}
}

// Exec runs one command line and reports whether the console should stop.
func (c *Console) Exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var err error
	switch strings.ToUpper(fields[0]) {
	case "EXIT":
		fmt.Fprintln(c.out, "\nFinal market depth:")
		c.printDepth()
		return true
	case "SHOW":
		if len(fields) > 1 && strings.EqualFold(fields[1], "ORDERS") {
			c.printOrders()
		} else {
			c.printDepth()
			c.printPnL()
		}
	case "LIMIT":
		err = c.limit(fields[1:])
	case "MARKET":
		err = c.market(fields[1:])
	case "CANCEL":
		err = c.cancel(fields[1:])
	case "MODIFY":
		err = c.modify(fields[1:])
	default:
		err = errors.New("unknown command, please try again")
	}
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
	return false
}

func (c *Console) limit(args []string) error {
	if len(args) != 4 {
		return errors.New("usage: LIMIT BUY|SELL <price> <qty> <traderId>")
	}
	side, err := parseSide(args[0])
	if err != nil {
		return err
	}
	price, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("bad price %q", args[1])
	}
	qty, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("bad quantity %q", args[2])
	}

	o := orderbook.Order{
		ID:       c.ids.Next(),
		Type:     orderbook.Limit,
		Side:     side,
		Price:    price,
		Qty:      qty,
		TraderID: args[3],
	}
	return c.submit(o)
}

func (c *Console) market(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: MARKET BUY|SELL <qty> <traderId>")
	}
	side, err := parseSide(args[0])
	if err != nil {
		return err
	}
	qty, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad quantity %q", args[1])
	}

	o := orderbook.Order{
		ID:       c.ids.Next(),
		Type:     orderbook.Market,
		Side:     side,
		Qty:      qty,
		TraderID: args[2],
	}
	return c.submit(o)
}

func (c *Console) submit(o orderbook.Order) error {
	exec, err := c.eng.Submit(o)
	if err != nil {
		return err
	}
	if o.Type == orderbook.Limit {
		fmt.Fprintf(c.out, "Order %d accepted: LIMIT %s %s x %d\n", o.ID, o.Side, o.Price, o.Qty)
	} else {
		fmt.Fprintf(c.out, "Order %d accepted: MARKET %s x %d\n", o.ID, o.Side, o.Qty)
	}
	c.printExecution(exec)
	return nil
}

func (c *Console) cancel(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: CANCEL <orderId>")
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad order id %q", args[0])
	}
	if c.eng.Cancel(id) {
		fmt.Fprintf(c.out, "Order %d cancelled.\n", id)
	} else {
		fmt.Fprintf(c.out, "Order %d not found or already matched.\n", id)
	}
	return nil
}

func (c *Console) modify(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: MODIFY <orderId> <newQty> <newPrice>")
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad order id %q", args[0])
	}
	qty, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad quantity %q", args[1])
	}
	price, err := decimal.NewFromString(args[2])
	if err != nil {
		return fmt.Errorf("bad price %q", args[2])
	}

	exec, err := c.eng.Modify(id, qty, price)
	if errors.Is(err, orderbook.ErrOrderNotFound) {
		fmt.Fprintf(c.out, "Modification failed: order %d not found.\n", id)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Order %d modified to quantity %d at %s.\n", id, qty, price)
	c.printExecution(exec)
	return nil
}

func (c *Console) printExecution(exec orderbook.Execution) {
	for _, t := range exec.Trades {
		fmt.Fprintf(c.out, "Matched %d @ %s between %s and %s\n", t.Qty, t.Price, t.Buyer, t.Seller)
	}
	if exec.Outcome == orderbook.PartialFill {
		fmt.Fprintf(c.out, "Market order not fully filled. Remaining quantity: %d\n", exec.Remaining)
	}
}

func (c *Console) printDepth() {
	d := c.eng.MarketDepth()
	fmt.Fprintln(c.out, "\n=== Market Depth ===")
	fmt.Fprintln(c.out, "Asks:")
	for _, l := range d.Asks {
		fmt.Fprintf(c.out, "  %s (%d orders, qty %d)\n", l.Price, l.Orders, l.Quantity)
	}
	fmt.Fprintln(c.out, "Bids:")
	for _, l := range d.Bids {
		fmt.Fprintf(c.out, "  %s (%d orders, qty %d)\n", l.Price, l.Orders, l.Quantity)
	}
}

func (c *Console) printPnL() {
	mark := c.eng.MarketPrice()
	fmt.Fprintf(c.out, "Market price: %s\n", formatNull(mark))

	fmt.Fprintln(c.out, "\n=== Trader PnL ===")
	for _, r := range c.eng.PnLReport(mark) {
		fmt.Fprintf(c.out, "Trader %s | Realized: %s | Holdings: %d | Unrealized: %s | Total: %s\n",
			r.Trader, r.Realized, r.Holdings, formatNull(r.Unrealized), formatNull(r.Total))
	}
}

func (c *Console) printOrders() {
	fmt.Fprintln(c.out, "\n=== Open Orders ===")
	for _, o := range c.eng.OpenOrders() {
		fmt.Fprintf(c.out, "ID: %d | Trader: %s | Type: %s | Side: %s | Price: %s | Quantity: %d\n",
			o.ID, o.TraderID, o.Type, o.Side, o.Price, o.Qty)
	}
}

func parseSide(s string) (orderbook.Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return orderbook.Buy, nil
	case "SELL":
		return orderbook.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

func formatNull(d decimal.NullDecimal) string {
	if !d.Valid {
		return "n/a"
	}
	return d.Decimal.String()
}
