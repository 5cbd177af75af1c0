// Package metrics exposes the bot's Prometheus metrics:
//   - bot_orders_submitted_total{symbol,kind} – orders accepted by the exchange
//   - bot_order_failures_total{symbol,kind}   – order placements that errored
//   - bot_exit_fills_total{symbol,reason}     – exit fill deltas by reason
//   - bot_hard_reconciliations_total{symbol}  – hard-timeout reconciliations
//   - bot_stream_reconnects_total{stream}     – websocket redials
//   - bot_marks_coalesced_total{symbol}       – mark ticks replaced by newer ones
//   - bot_guard_rejections_total{symbol,guard} – entries refused by a guard
//   - bot_day_realized_pnl{symbol}            – realized PnL for the current day
//   - bot_position_qty{symbol}                – held quantity, signed by side
//
// Registered in init() and served at /metrics by Serve.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bandbot/internal/logger"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_submitted_total",
			Help: "Orders accepted by the exchange",
		},
		[]string{"symbol", "kind"}, // kind: ENTRY|EXIT
	)

	OrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_order_failures_total",
			Help: "Order placements that returned an error",
		},
		[]string{"symbol", "kind"},
	)

	ExitFills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_exit_fills_total",
			Help: "Exit fill deltas by reason",
		},
		[]string{"symbol", "reason"}, // SL_BB|TP1|BEP|TP2
	)

	HardReconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_hard_reconciliations_total",
			Help: "Stuck-pending orders forced through hard reconciliation",
		},
		[]string{"symbol"},
	)

	StreamReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_stream_reconnects_total",
			Help: "Websocket reconnects by stream",
		},
		[]string{"stream"}, // market_kline|market_mark|user
	)

	MarksCoalesced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_marks_coalesced_total",
			Help: "Mark ticks dropped in favor of a newer one",
		},
		[]string{"symbol"},
	)

	GuardRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_guard_rejections_total",
			Help: "Entry signals refused by a guard",
		},
		[]string{"symbol", "guard"},
	)

	DayRealizedPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_day_realized_pnl",
			Help: "Realized PnL for the current trading day",
		},
		[]string{"symbol"},
	)

	PositionQty = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_position_qty",
			Help: "Currently held quantity, signed by direction",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(OrdersSubmitted, OrderFailures, ExitFills)
	prometheus.MustRegister(HardReconciliations, StreamReconnects)
	prometheus.MustRegister(MarksCoalesced, GuardRejections)
	prometheus.MustRegister(DayRealizedPnL, PositionQty)
}

// Serve exposes /metrics on addr. Blocks until the server fails or stops.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Infof("metrics listening on %s", addr)
	return srv.ListenAndServe()
}
