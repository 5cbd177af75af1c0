package trader

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"bandbot/internal/band"
	"bandbot/internal/exchange"
	"bandbot/internal/quant"
)

// PendingKind tags what a pending order is trying to do.
type PendingKind string

const (
	PendingEntry PendingKind = "ENTRY"
	PendingExit  PendingKind = "EXIT"
)

// ExitMode distinguishes a partial take-profit from a full close.
type ExitMode string

const (
	ExitFull    ExitMode = "FULL"
	ExitPartial ExitMode = "PARTIAL"
)

// ExitReason tags why an exit was submitted.
type ExitReason string

const (
	ReasonStopLoss   ExitReason = "SL_BB"
	ReasonTakeProfit ExitReason = "TP1"
	ReasonBreakEven  ExitReason = "BEP"
	ReasonTakeFull   ExitReason = "TP2"
)

// PendingOrder is the single in-flight order a symbol may have. At most one
// exists per symbol at any time.
type PendingOrder struct {
	Kind     PendingKind
	ClientID string
	Side     exchange.PositionSide
	Reason   ExitReason // EXIT only
	Mode     ExitMode   // EXIT only

	RequestedQty float64
	CumFilled    float64 // last cumulative fill seen on the account stream

	SubmittedAt       time.Time
	CancelRequestedAt time.Time // zero until the soft-timeout cancel fires
	MarkAtSubmit      float64
	TargetPrice       float64 // informational; the level that triggered this order
}

// Position is the in-memory view of exchange exposure for one symbol.
type Position struct {
	Side       exchange.PositionSide
	Qty        float64
	EntryPrice float64 // average fill price, 0 until known
	EntryMark  float64 // mark at submit, fallback reference
}

// EntryRef is the price used for TP/BEP/PnL arithmetic: average fill when
// known, mark-at-submit otherwise.
func (p Position) EntryRef() float64 {
	if p.EntryPrice > 0 {
		return p.EntryPrice
	}
	return p.EntryMark
}

func (p Position) Flat() bool {
	return p.Side == exchange.PositionNone || p.Qty <= 0
}

func flatPosition() Position {
	return Position{Side: exchange.PositionNone}
}

// SymbolState is the authoritative record for one symbol. It is owned by that
// symbol's Processor goroutine and never shared.
type SymbolState struct {
	Symbol string
	Rules  quant.Rules

	Band     *band.Snapshot
	Position Position
	Pending  *PendingOrder
	TP1Hit   bool

	ArmedLong  bool
	ArmedShort bool

	LastEntryAt   time.Time
	TradesToday   int
	TradesDayKey  string
	CooldownUntil time.Time
	PausedUntil   time.Time
	StopEvents    []time.Time

	PrevMark    float64
	PrevMarkSet bool

	DayRealizedPnL float64
	DayWins        int
	DayLosses      int
}

// NewSymbolState builds the boot-time record; Rules are populated later.
func NewSymbolState(symbol string) *SymbolState {
	return &SymbolState{
		Symbol:   symbol,
		Position: flatPosition(),
	}
}

// ResetPosition returns the symbol to flat and clears the TP1 latch.
func (s *SymbolState) ResetPosition() {
	s.Position = flatPosition()
	s.TP1Hit = false
}

// PausedUntilAtLeast extends the pause floor without shortening an existing
// longer pause.
func (s *SymbolState) PausedUntilAtLeast(t time.Time) {
	if t.After(s.PausedUntil) {
		s.PausedUntil = t
	}
}

// newClientID builds a unique submitter-assigned order id. The prefix keeps
// entry and exit orders distinguishable in exchange logs. The whole id must
// stay within Binance's 36-character client order id limit.
func newClientID(prefix, symbol string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d_%.6s", prefix, symbol, now.UnixMilli(), uuid.NewString())
}
