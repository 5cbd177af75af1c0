package perf

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bandbot/internal/exchange"
	"bandbot/internal/trader"
)

type memoNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (m *memoNotifier) Notify(text string) {
	m.mu.Lock()
	m.msgs = append(m.msgs, text)
	m.mu.Unlock()
}

func (m *memoNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

func entryAt(t time.Time) trader.EntryEvent {
	return trader.EntryEvent{
		Symbol:   "BTCUSDT",
		Side:     exchange.PositionLong,
		Entry:    100,
		Qty:      2,
		TP1:      101,
		TP2:      103,
		SL:       88,
		ClientID: "E_BTCUSDT_1",
		At:       t,
	}
}

func TestRecorderSessionAggregation(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	note := &memoNotifier{}
	r := NewRecorder(time.UTC, note)

	r.RecordEntry(entryAt(now))
	r.RecordExit(trader.ExitEvent{
		Symbol: "BTCUSDT", Reason: trader.ReasonTakeProfit, Mode: trader.ExitPartial,
		Price: 101, Qty: 1, PnL: 1, Remaining: 1, Final: false,
		ClientID: "X_BTCUSDT_1", At: now.Add(5 * time.Minute),
	})

	// Partial exits accrue into the session without closing it.
	assert.Equal(t, Tally{}, r.DayTally("BTCUSDT"))

	r.RecordExit(trader.ExitEvent{
		Symbol: "BTCUSDT", Reason: trader.ReasonTakeFull, Mode: trader.ExitFull,
		Price: 103, Qty: 1, PnL: 3, Remaining: 0, Final: true,
		ClientID: "X_BTCUSDT_2", At: now.Add(20 * time.Minute),
	})

	day := r.DayTally("BTCUSDT")
	assert.Equal(t, 1, day.Sessions)
	assert.Equal(t, 1, day.Wins)
	assert.Zero(t, day.Losses)
	assert.InDelta(t, 4.0, day.NetUSDT, 1e-9)
	assert.Equal(t, day, r.TotalTally("BTCUSDT"))
	assert.Equal(t, 2, note.count(), "entry and final trade notify")
}

func TestRecorderLossAndBreakEven(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	r := NewRecorder(time.UTC)

	r.RecordEntry(entryAt(now))
	r.RecordExit(trader.ExitEvent{
		Symbol: "BTCUSDT", Reason: trader.ReasonStopLoss, Mode: trader.ExitFull,
		Price: 88, Qty: 2, PnL: -24, Remaining: 0, Final: true, At: now.Add(time.Minute),
	})

	r.RecordEntry(entryAt(now.Add(time.Hour)))
	r.RecordExit(trader.ExitEvent{
		Symbol: "BTCUSDT", Reason: trader.ReasonBreakEven, Mode: trader.ExitFull,
		Price: 100, Qty: 2, PnL: 0, Remaining: 0, Final: true, At: now.Add(61 * time.Minute),
	})

	day := r.DayTally("BTCUSDT")
	assert.Equal(t, 2, day.Sessions)
	assert.Equal(t, 1, day.Losses)
	assert.Equal(t, 1, day.BreakEven)
	assert.InDelta(t, -24.0, day.NetUSDT, 1e-9)
}

func TestRecorderDayRollover(t *testing.T) {
	wib := time.FixedZone("WIB", 7*3600)
	day1 := time.Date(2025, 6, 2, 20, 0, 0, 0, wib)
	day2 := time.Date(2025, 6, 3, 1, 0, 0, 0, wib)
	r := NewRecorder(wib)

	r.RecordEntry(entryAt(day1))
	r.RecordExit(trader.ExitEvent{
		Symbol: "BTCUSDT", Reason: trader.ReasonTakeFull, Mode: trader.ExitFull,
		Price: 103, Qty: 2, PnL: 6, Remaining: 0, Final: true, At: day1.Add(time.Minute),
	})
	assert.Equal(t, 1, r.DayTally("BTCUSDT").Sessions)

	r.RecordEntry(entryAt(day2))
	assert.Zero(t, r.DayTally("BTCUSDT").Sessions, "new local day resets the bucket")
	assert.Equal(t, 1, r.TotalTally("BTCUSDT").Sessions, "lifetime bucket survives rollover")
}

func TestRecorderExitWithoutSession(t *testing.T) {
	r := NewRecorder(time.UTC)
	r.RecordExit(trader.ExitEvent{
		Symbol: "ETHUSDT", Reason: trader.ReasonStopLoss, Mode: trader.ExitFull,
		Price: 90, Qty: 1, PnL: -5, Remaining: 0, Final: true, At: time.Now(),
	})
	assert.Equal(t, Tally{}, r.DayTally("ETHUSDT"), "untracked exits never count as sessions")
}
