// Package exchange defines the control-plane abstraction over the
// derivatives exchange. The execution core speaks only these types so the
// concrete transport (internal/gateway/binance) stays swappable.
package exchange

import (
	"time"

	"bandbot/internal/quant"
)

// PositionSide is the direction of a held position. NONE means flat.
type PositionSide string

const (
	PositionNone  PositionSide = "NONE"
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Opposite returns the closing direction for a held side.
func (s PositionSide) Opposite() OrderSide {
	if s == PositionLong {
		return SideSell
	}
	return SideBuy
}

// OrderSide is the taker direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

type TimeInForce string

const (
	TIFGoodTillCancel TimeInForce = "GTC"
	TIFImmediate      TimeInForce = "IOC"
	TIFFillOrKill     TimeInForce = "FOK"
)

// OrderStatus mirrors the exchange's order lifecycle states.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// Terminal reports whether the order can no longer change on the exchange.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// OrderRequest carries everything needed to place one order. Quantity and
// Price are pre-quantized strings so the transport never re-rounds them.
type OrderRequest struct {
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Quantity    string
	Price       string // LIMIT only
	TimeInForce TimeInForce
	ReduceOnly  bool
	ClientID    string
	// PositionSide is set only in hedge mode; empty means one-way.
	PositionSide PositionSide
}

// OpenOrder is one resting order as reported by the exchange.
type OpenOrder struct {
	OrderID  int64
	ClientID string
	Side     OrderSide
	Status   OrderStatus
}

// OrderAck is the synchronous response to a placement.
type OrderAck struct {
	OrderID  int64
	ClientID string
	Status   OrderStatus
}

// OrderUpdate is one record from the private account stream.
type OrderUpdate struct {
	Symbol        string
	ClientID      string
	Side          OrderSide
	Status        OrderStatus
	AvgPrice      float64
	CumFilledQty  float64
	LastFillPrice float64
	EventTime     time.Time
}

// PositionSnapshot is the exchange's authoritative view of a position.
type PositionSnapshot struct {
	Side       PositionSide
	Qty        float64
	EntryPrice float64
}

// Flat reports whether the snapshot carries no exposure.
func (p PositionSnapshot) Flat() bool {
	return p.Side == PositionNone || p.Qty <= 0
}

// MarkPriceEvent is one mark-price tick from the market stream.
type MarkPriceEvent struct {
	Symbol    string
	Price     float64
	EventTime time.Time
}

// ClosedBar is emitted only when a bar finalizes on the market stream.
type ClosedBar struct {
	Symbol    string
	Close     float64
	CloseTime time.Time
}

// SymbolRules aliases the quantization constants for boot-time fetch.
type SymbolRules = quant.Rules
