package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	"matchbook/infra/metrics"
	"matchbook/infra/sequence"
	"matchbook/service"
)

func newTestConsole(t *testing.T) (*Console, *bytes.Buffer) {
	t.Helper()
	svc := service.NewOrderService(
		orderbook.NewBook(),
		nil,
		metrics.New(prometheus.NewRegistry()),
		zap.NewNop(),
	)
	out := &bytes.Buffer{}
	return NewConsole(svc, sequence.New(0), out), out
}

func run(c *Console, lines ...string) {
	for _, l := range lines {
		c.Exec(l)
	}
}

func TestConsoleLimitMatch(t *testing.T) {
	c, out := newTestConsole(t)

	run(c,
		"LIMIT SELL 101 5 alice",
		"limit buy 101 3 bob",
	)

	s := out.String()
	assert.Contains(t, s, "Order 1 accepted: LIMIT SELL 101 x 5")
	assert.Contains(t, s, "Order 2 accepted: LIMIT BUY 101 x 3")
	assert.Contains(t, s, "Matched 3 @ 101 between bob and alice")

	out.Reset()
	run(c, "SHOW")
	s = out.String()
	assert.Contains(t, s, "101 (1 orders, qty 2)")
	assert.Contains(t, s, "Market price: 101")
	assert.Contains(t, s, "Trader alice | Realized: 303 | Holdings: -3")
	assert.Contains(t, s, "Trader bob | Realized: -303 | Holdings: 3")
	assert.Less(t, strings.Index(s, "Trader alice"), strings.Index(s, "Trader bob"))
}

func TestConsoleMarketPartialFill(t *testing.T) {
	c, out := newTestConsole(t)

	run(c,
		"LIMIT SELL 100 2 a",
		"MARKET BUY 5 b",
	)

	s := out.String()
	assert.Contains(t, s, "Order 2 accepted: MARKET BUY x 5")
	assert.Contains(t, s, "Matched 2 @ 100 between b and a")
	assert.Contains(t, s, "Market order not fully filled. Remaining quantity: 3")
}

func TestConsoleEmptyBookShowsNoMarketPrice(t *testing.T) {
	c, out := newTestConsole(t)

	run(c, "SHOW")
	assert.Contains(t, out.String(), "Market price: n/a")
}

func TestConsoleCancel(t *testing.T) {
	c, out := newTestConsole(t)

	run(c,
		"LIMIT BUY 99 1 a",
		"CANCEL 1",
		"CANCEL 1",
	)

	s := out.String()
	assert.Contains(t, s, "Order 1 cancelled.")
	assert.Contains(t, s, "Order 1 not found or already matched.")
}

func TestConsoleModify(t *testing.T) {
	c, out := newTestConsole(t)

	run(c,
		"LIMIT BUY 99 4 a",
		"LIMIT SELL 101 2 b",
		"MODIFY 1 3 101",
		"MODIFY 42 1 100",
	)

	s := out.String()
	assert.Contains(t, s, "Order 1 modified to quantity 3 at 101.")
	assert.Contains(t, s, "Matched 2 @ 101 between a and b")
	assert.Contains(t, s, "Modification failed: order 42 not found.")

	out.Reset()
	run(c, "SHOW ORDERS")
	assert.Contains(t, out.String(), "ID: 1 | Trader: a | Type: LIMIT | Side: BUY | Price: 101 | Quantity: 1")
}

func TestConsoleRejectsBadInput(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"FOO", "unknown command"},
		{"LIMIT HOLD 100 1 a", `unknown side "HOLD"`},
		{"LIMIT BUY abc 1 a", `bad price "abc"`},
		{"LIMIT BUY 100 x a", `bad quantity "x"`},
		{"LIMIT BUY 100 1", "usage: LIMIT"},
		{"MARKET SELL 1", "usage: MARKET"},
		{"CANCEL one", `bad order id "one"`},
		{"MODIFY 1 2", "usage: MODIFY"},
		{"LIMIT BUY 0 1 a", orderbook.ErrInvalidOrder.Error()},
		{"MARKET BUY 0 a", orderbook.ErrInvalidOrder.Error()},
	}

	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			c, out := newTestConsole(t)
			quit := c.Exec(tc.line)
			assert.False(t, quit)
			assert.Contains(t, out.String(), "error: ")
			assert.Contains(t, out.String(), tc.want)
		})
	}
}

func TestConsoleRunUntilExit(t *testing.T) {
	c, out := newTestConsole(t)

	in := strings.NewReader("LIMIT BUY 100 1 a\n\nEXIT\nLIMIT SELL 100 1 b\n")
	require.NoError(t, c.Run(context.Background(), in))

	s := out.String()
	assert.Contains(t, s, "Commands:")
	assert.Contains(t, s, "Final market depth:")
	assert.Contains(t, s, "100 (1 orders, qty 1)")
	assert.NotContains(t, s, "Order 2 accepted")
}

func TestConsoleRunStopsAtEOF(t *testing.T) {
	c, out := newTestConsole(t)

	require.NoError(t, c.Run(context.Background(), strings.NewReader("SHOW\n")))
	assert.Contains(t, out.String(), "=== Market Depth ===")
}

func TestConsoleRunStopsOnCancel(t *testing.T) {
	c, _ := newTestConsole(t)

	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, r) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop after cancel")
	}
}
