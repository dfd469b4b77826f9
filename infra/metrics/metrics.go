package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine collectors. Create them once per registry.
type Metrics struct {
	OrdersSubmitted  *prometheus.CounterVec
	OrdersRejected   prometheus.Counter
	OrdersCancelled  prometheus.Counter
	OrdersModified   prometheus.Counter
	Trades           prometheus.Counter
	TradedQuantity   prometheus.Counter
	MarketUnfilled   prometheus.Counter
	RestingOrders    prometheus.Gauge
	OutboxFailures   prometheus.Counter
	OutboxCorrupt    prometheus.Counter
	FeedPublished    prometheus.Counter
	FeedPublishFails prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchbook_orders_submitted_total",
				Help: "Orders accepted by the book",
			},
			[]string{"side", "type"},
		),
		OrdersRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_orders_rejected_total",
			Help: "Orders refused at entry",
		}),
		OrdersCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_orders_cancelled_total",
			Help: "Resting orders withdrawn",
		}),
		OrdersModified: f.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_orders_modified_total",
			Help: "Resting orders replaced",
		}),
		Trades: f.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_trades_total",
			Help: "Trades executed",
		}),
		TradedQuantity: f.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_traded_quantity_total",
			Help: "Quantity executed across all trades",
		}),
		MarketUnfilled: f.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_market_unfilled_quantity_total",
			Help: "Market order quantity dropped for lack of liquidity",
		}),
		RestingOrders: f.NewGauge(prometheus.GaugeOpts{
			Name: "matchbook_resting_orders",
			Help: "Orders currently resting on the book",
		}),
		OutboxFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_outbox_failures_total",
			Help: "Trades that could not be written to the drop-copy outbox",
		}),
		OutboxCorrupt: f.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_outbox_corrupt_records_total",
			Help: "Outbox records quarantined because they could not be decoded",
		}),
		FeedPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_feed_published_total",
			Help: "Trade events acknowledged by the broker",
		}),
		FeedPublishFails: f.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_feed_publish_failures_total",
			Help: "Trade event publish attempts that failed",
		}),
	}
}
