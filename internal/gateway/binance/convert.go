package binance

import (
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"bandbot/internal/exchange"
	"bandbot/internal/quant"
)

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func toOrderStatus(s futures.OrderStatusType) exchange.OrderStatus {
	return exchange.OrderStatus(string(s))
}

func toOrderSide(s futures.SideType) exchange.OrderSide {
	return exchange.OrderSide(string(s))
}

func fromOrderSide(s exchange.OrderSide) futures.SideType {
	return futures.SideType(string(s))
}

func fromOrderType(t exchange.OrderType) futures.OrderType {
	return futures.OrderType(string(t))
}

func fromTimeInForce(t exchange.TimeInForce) futures.TimeInForceType {
	return futures.TimeInForceType(string(t))
}

func fromPositionSide(s exchange.PositionSide) futures.PositionSideType {
	switch s {
	case exchange.PositionLong:
		return futures.PositionSideTypeLong
	case exchange.PositionShort:
		return futures.PositionSideTypeShort
	}
	return futures.PositionSideTypeBoth
}

func unixMilli(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func convertOrderTradeUpdate(u *futures.WsOrderTradeUpdate, eventTime int64) exchange.OrderUpdate {
	return exchange.OrderUpdate{
		Symbol:        u.Symbol,
		ClientID:      u.ClientOrderID,
		Side:          toOrderSide(u.Side),
		Status:        toOrderStatus(u.Status),
		AvgPrice:      parseFloat(u.AveragePrice),
		CumFilledQty:  parseFloat(u.AccumulatedFilledQty),
		LastFillPrice: parseFloat(u.LastFilledPrice),
		EventTime:     unixMilli(eventTime),
	}
}

func convertPositionRisk(p *futures.PositionRisk) exchange.PositionSnapshot {
	amt := parseFloat(p.PositionAmt)
	snap := exchange.PositionSnapshot{EntryPrice: parseFloat(p.EntryPrice)}
	switch {
	case amt > 0:
		snap.Side = exchange.PositionLong
		snap.Qty = amt
	case amt < 0:
		snap.Side = exchange.PositionShort
		snap.Qty = -amt
	default:
		snap.Side = exchange.PositionNone
	}
	return snap
}

func convertSymbolRules(sym futures.Symbol) (quant.Rules, error) {
	var stepSize, minQty, maxQty, tickSize, minNotional string
	if f := sym.LotSizeFilter(); f != nil {
		stepSize, minQty, maxQty = f.StepSize, f.MinQuantity, f.MaxQuantity
	}
	if f := sym.PriceFilter(); f != nil {
		tickSize = f.TickSize
	}
	if f := sym.MinNotionalFilter(); f != nil {
		minNotional = f.Notional
	}
	return quant.ParseRules(stepSize, minQty, maxQty, tickSize, minNotional)
}
