package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counter: Total orders received
	OrdersReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_received_total",
			Help: "Total number of orders received by the matching engine",
		},
		[]string{"instrument", "side"},
	)

	// Counter: Total orders rejected
	OrdersRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_rejected_total",
			Help: "Total number of orders rejected by validation",
		},
		[]string{"instrument", "reason"},
	)

	// Counter: Total orders cancelled
	OrdersCancelledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_cancelled_total",
			Help: "Total number of orders cancelled",
		},
		[]string{"instrument"},
	)

	// Counter: Total trades executed
	TradesExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trades_executed_total",
			Help: "Total number of trades executed",
		},
		[]string{"instrument"},
	)

	// Counter: Total volume traded
	TradedVolumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traded_volume_total",
			Help: "Total volume traded",
		},
		[]string{"instrument"},
	)

	// Histogram: Order processing latency
	OrderLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_latency_seconds",
			Help:    "Time taken to process an order from submission to response",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to ~3.2s
		},
		[]string{"instrument"},
	)

	// Gauge: Current orderbook depth (resting orders per side)
	CurrentOrderbookDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "current_orderbook_depth",
			Help: "Current number of resting orders in the orderbook",
		},
		[]string{"instrument", "side"},
	)

	// Gauge: Best bid/ask prices
	BestBidPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "best_bid_price",
			Help: "Current best bid price in the orderbook",
		},
		[]string{"instrument"},
	)

	BestAskPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "best_ask_price",
			Help: "Current best ask price in the orderbook",
		},
		[]string{"instrument"},
	)

	// Gauge: Spread (difference between best ask and best bid)
	OrderbookSpread = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orderbook_spread",
			Help: "Current spread between best bid and best ask",
		},
		[]string{"instrument"},
	)
)

// RecordOrderReceived increments the orders_received_total counter
func RecordOrderReceived(instrument, side string) {
	OrdersReceivedTotal.WithLabelValues(instrument, side).Inc()
}

// RecordOrderRejected increments the orders_rejected_total counter
func RecordOrderRejected(instrument, reason string) {
	OrdersRejectedTotal.WithLabelValues(instrument, reason).Inc()
}

// RecordOrderCancelled increments the orders_cancelled_total counter
func RecordOrderCancelled(instrument string) {
	OrdersCancelledTotal.WithLabelValues(instrument).Inc()
}

// RecordTradeExecuted records a trade and its volume
func RecordTradeExecuted(instrument string, volume float64) {
	TradesExecutedTotal.WithLabelValues(instrument).Inc()
	TradedVolumeTotal.WithLabelValues(instrument).Add(volume)
}

// ObserveOrderLatency records how long an order took to process
func ObserveOrderLatency(instrument string, seconds float64) {
	OrderLatencySeconds.WithLabelValues(instrument).Observe(seconds)
}

// UpdateOrderbookDepth sets the current depth gauge for a side
func UpdateOrderbookDepth(instrument, side string, depth float64) {
	CurrentOrderbookDepth.WithLabelValues(instrument, side).Set(depth)
}

// UpdateBestPrices sets the best bid/ask gauges
func UpdateBestPrices(instrument string, bestBid, bestAsk float64) {
	BestBidPrice.WithLabelValues(instrument).Set(bestBid)
	BestAskPrice.WithLabelValues(instrument).Set(bestAsk)
}

// UpdateSpread sets the spread gauge
func UpdateSpread(instrument string, spread float64) {
	OrderbookSpread.WithLabelValues(instrument).Set(spread)
}
