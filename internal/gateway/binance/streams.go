package binance

import (
	"strings"

	"github.com/adshao/go-binance/v2/futures"

	"bandbot/internal/exchange"
	"bandbot/internal/logger"
	"bandbot/internal/stream"
)

// MarketHandlers receives decoded market-stream events. OnMessage fires for
// every inbound frame, closed or not, so the stream watchdog sees liveness.
type MarketHandlers struct {
	OnClosedBar func(exchange.ClosedBar)
	OnMark      func(exchange.MarkPriceEvent)
	OnMessage   func()
}

// KlineDialFunc subscribes the combined kline stream for symbols at interval.
// Only finalized bars are forwarded; in-progress updates just feed liveness.
func KlineDialFunc(symbols []string, interval string, h MarketHandlers) stream.DialFunc {
	pairs := make(map[string]string, len(symbols))
	for _, s := range symbols {
		pairs[strings.ToUpper(s)] = interval
	}
	return func() (chan struct{}, chan struct{}, error) {
		handler := func(event *futures.WsKlineEvent) {
			if h.OnMessage != nil {
				h.OnMessage()
			}
			if event == nil || !event.Kline.IsFinal {
				return
			}
			if h.OnClosedBar != nil {
				h.OnClosedBar(convertClosedBar(event))
			}
		}
		errHandler := func(err error) {
			if err != nil {
				logger.Warnf("[binance] kline stream error: %v", err)
			}
		}
		return futures.WsCombinedKlineServe(pairs, handler, errHandler)
	}
}

// MarkPriceDialFunc subscribes the combined mark-price stream for symbols.
func MarkPriceDialFunc(symbols []string, h MarketHandlers) stream.DialFunc {
	upper := make([]string, len(symbols))
	for i, s := range symbols {
		upper[i] = strings.ToUpper(s)
	}
	return func() (chan struct{}, chan struct{}, error) {
		handler := func(event *futures.WsMarkPriceEvent) {
			if h.OnMessage != nil {
				h.OnMessage()
			}
			if event == nil || h.OnMark == nil {
				return
			}
			h.OnMark(convertMarkPrice(event))
		}
		errHandler := func(err error) {
			if err != nil {
				logger.Warnf("[binance] mark price stream error: %v", err)
			}
		}
		return futures.WsCombinedMarkPriceServe(upper, handler, errHandler)
	}
}

// UserHandlers receives decoded private-stream events.
type UserHandlers struct {
	OnOrderUpdate      func(exchange.OrderUpdate)
	OnListenKeyExpired func()
	OnMessage          func()
}

// UserDialFunc subscribes the private account stream. listenKey is resolved
// per dial so a redial after expiry picks up a fresh key.
func UserDialFunc(listenKey func() string, h UserHandlers) stream.DialFunc {
	return func() (chan struct{}, chan struct{}, error) {
		handler := func(event *futures.WsUserDataEvent) {
			if h.OnMessage != nil {
				h.OnMessage()
			}
			if event == nil {
				return
			}
			switch event.Event {
			case futures.UserDataEventTypeOrderTradeUpdate:
				if h.OnOrderUpdate != nil {
					h.OnOrderUpdate(convertOrderTradeUpdate(&event.OrderTradeUpdate, event.Time))
				}
			case futures.UserDataEventTypeListenKeyExpired:
				logger.Warnf("[binance] listen key expired")
				if h.OnListenKeyExpired != nil {
					h.OnListenKeyExpired()
				}
			}
		}
		errHandler := func(err error) {
			if err != nil {
				logger.Warnf("[binance] user stream error: %v", err)
			}
		}
		return futures.WsUserDataServe(listenKey(), handler, errHandler)
	}
}

func convertClosedBar(ev *futures.WsKlineEvent) exchange.ClosedBar {
	return exchange.ClosedBar{
		Symbol:    ev.Symbol,
		Close:     parseFloat(ev.Kline.Close),
		CloseTime: unixMilli(ev.Kline.EndTime),
	}
}

func convertMarkPrice(ev *futures.WsMarkPriceEvent) exchange.MarkPriceEvent {
	return exchange.MarkPriceEvent{
		Symbol:    ev.Symbol,
		Price:     parseFloat(ev.MarkPrice),
		EventTime: unixMilli(ev.Time),
	}
}
