package app

import (
	"context"
	"time"

	"bandbot/internal/exchange"
	"bandbot/internal/gateway/binance"
	"bandbot/internal/metrics"
	"bandbot/internal/stream"
)

// buildConns wires the three supervised subscriptions: closed bars, mark
// prices and the private order-update stream. Each handler also feeds the
// supervisor's liveness clock so the watchdog can tell silence from a dead
// socket.
func (a *App) buildConns() []*stream.Conn {
	symbols := a.cfg.Strategy.Symbols

	var klineConn, markConn, userConn *stream.Conn

	klineConn = stream.NewConn(
		a.connConfig("kline", a.cfg.Stream.MarketStale()),
		binance.KlineDialFunc(symbols, a.cfg.Strategy.Timeframe, binance.MarketHandlers{
			OnClosedBar: func(b exchange.ClosedBar) { a.engine.HandleClosedBar(b) },
			OnMessage:   func() { klineConn.MessageReceived() },
		}),
	)

	markConn = stream.NewConn(
		a.connConfig("mark", a.cfg.Stream.MarketStale()),
		binance.MarkPriceDialFunc(symbols, binance.MarketHandlers{
			OnMark:    func(ev exchange.MarkPriceEvent) { a.engine.HandleMark(ev) },
			OnMessage: func() { markConn.MessageReceived() },
		}),
	)

	userConn = stream.NewConn(
		a.connConfig("user", a.cfg.Stream.UserStale()),
		binance.UserDialFunc(a.currentListenKey, binance.UserHandlers{
			OnOrderUpdate: func(u exchange.OrderUpdate) { a.engine.HandleOrderUpdate(u) },
			OnListenKeyExpired: func() {
				// The redial picks the fresh key up via currentListenKey.
				a.rotateListenKey(context.Background())
			},
			OnMessage: func() { userConn.MessageReceived() },
		}),
	)

	return []*stream.Conn{klineConn, markConn, userConn}
}

func (a *App) connConfig(name string, stale time.Duration) stream.Config {
	return stream.Config{
		Name:          name,
		Stale:         stale,
		WatchdogEvery: a.cfg.Stream.Watchdog(),
		MaxBackoff:    a.cfg.Stream.MaxBackoff(),
		OnStateChange: func(s stream.State) {
			if s == stream.StateReconnectScheduled {
				metrics.StreamReconnects.WithLabelValues(name).Inc()
			}
		},
	}
}
