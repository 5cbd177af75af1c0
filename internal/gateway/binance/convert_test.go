package binance

import (
	"testing"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"

	"bandbot/internal/exchange"
)

func TestConvertPositionRisk(t *testing.T) {
	long := convertPositionRisk(&futures.PositionRisk{PositionAmt: "0.5", EntryPrice: "30000"})
	assert.Equal(t, exchange.PositionLong, long.Side)
	assert.Equal(t, 0.5, long.Qty)
	assert.Equal(t, 30000.0, long.EntryPrice)

	short := convertPositionRisk(&futures.PositionRisk{PositionAmt: "-2", EntryPrice: "1800"})
	assert.Equal(t, exchange.PositionShort, short.Side)
	assert.Equal(t, 2.0, short.Qty)

	flat := convertPositionRisk(&futures.PositionRisk{PositionAmt: "0", EntryPrice: "0"})
	assert.True(t, flat.Flat())
}

func TestConvertOrderTradeUpdate(t *testing.T) {
	u := convertOrderTradeUpdate(&futures.WsOrderTradeUpdate{
		Symbol:               "BTCUSDT",
		ClientOrderID:        "bb-entry-1",
		Side:                 futures.SideTypeBuy,
		Status:               futures.OrderStatusTypePartiallyFilled,
		AveragePrice:         "30010.5",
		AccumulatedFilledQty: "0.3",
		LastFilledPrice:      "30011",
	}, 1_700_000_000_000)

	assert.Equal(t, "BTCUSDT", u.Symbol)
	assert.Equal(t, "bb-entry-1", u.ClientID)
	assert.Equal(t, exchange.SideBuy, u.Side)
	assert.Equal(t, exchange.StatusPartiallyFilled, u.Status)
	assert.Equal(t, 30010.5, u.AvgPrice)
	assert.Equal(t, 0.3, u.CumFilledQty)
	assert.Equal(t, 30011.0, u.LastFillPrice)
	assert.Equal(t, int64(1_700_000_000_000), u.EventTime.UnixMilli())
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, toOrderStatus(futures.OrderStatusTypeFilled).Terminal())
	assert.True(t, toOrderStatus(futures.OrderStatusTypeCanceled).Terminal())
	assert.True(t, toOrderStatus(futures.OrderStatusTypeExpired).Terminal())
	assert.False(t, toOrderStatus(futures.OrderStatusTypeNew).Terminal())
	assert.False(t, toOrderStatus(futures.OrderStatusTypePartiallyFilled).Terminal())
}

func TestFromPositionSide(t *testing.T) {
	assert.Equal(t, futures.PositionSideTypeLong, fromPositionSide(exchange.PositionLong))
	assert.Equal(t, futures.PositionSideTypeShort, fromPositionSide(exchange.PositionShort))
	assert.Equal(t, futures.PositionSideTypeBoth, fromPositionSide(exchange.PositionNone))
}
