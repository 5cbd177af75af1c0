package trader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bandbot/internal/band"
	"bandbot/internal/config"
	"bandbot/internal/exchange"
	"bandbot/internal/quant"
)

func readyState(t *testing.T) *SymbolState {
	t.Helper()
	st := NewSymbolState("BTCUSDT")
	rules, err := quant.ParseRules("0.001", "0.001", "", "0.1", "")
	if err != nil {
		t.Fatal(err)
	}
	st.Rules = rules
	st.Band = &band.Snapshot{Middle: 100, Upper: 105, Lower: 95, Width: 10, LongTrigger: 92, ShortTrigger: 108}
	return st
}

func TestCanEnterNowBaseline(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	g := defaultGuards()

	st := readyState(t)
	ok, _ := CanEnterNow(st, g, now)
	assert.True(t, ok)

	st.Position = Position{Side: exchange.PositionLong, Qty: 1}
	ok, reason := CanEnterNow(st, g, now)
	assert.False(t, ok)
	assert.Equal(t, "position open", reason)

	st = readyState(t)
	st.Pending = &PendingOrder{Kind: PendingEntry}
	ok, reason = CanEnterNow(st, g, now)
	assert.False(t, ok)
	assert.Equal(t, "order pending", reason)

	st = readyState(t)
	st.Band = nil
	ok, reason = CanEnterNow(st, g, now)
	assert.False(t, ok)
	assert.Equal(t, "not initialized", reason)
}

func TestCanEnterNowGuardToggles(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	t.Run("cooldown", func(t *testing.T) {
		g := defaultGuards()
		st := readyState(t)
		st.CooldownUntil = now.Add(time.Minute)
		ok, reason := CanEnterNow(st, g, now)
		assert.False(t, ok)
		assert.Equal(t, "cooldown", reason)

		g.CooldownEnabled = false
		ok, _ = CanEnterNow(st, g, now)
		assert.True(t, ok)
	})

	t.Run("kill switch pause", func(t *testing.T) {
		g := defaultGuards()
		st := readyState(t)
		st.PausedUntil = now.Add(time.Hour)
		ok, reason := CanEnterNow(st, g, now)
		assert.False(t, ok)
		assert.Equal(t, "kill switch pause", reason)

		g.KillSwitchEnabled = false
		ok, _ = CanEnterNow(st, g, now)
		assert.True(t, ok)
	})

	t.Run("max trades", func(t *testing.T) {
		g := defaultGuards()
		st := readyState(t)
		st.TradesToday = g.MaxTradesPerDay
		ok, reason := CanEnterNow(st, g, now)
		assert.False(t, ok)
		assert.Equal(t, "max trades/day", reason)

		g.MaxTradesEnabled = false
		ok, _ = CanEnterNow(st, g, now)
		assert.True(t, ok)
	})

	t.Run("min gap", func(t *testing.T) {
		g := defaultGuards()
		g.MinGapEnabled = true
		st := readyState(t)
		st.LastEntryAt = now.Add(-10 * time.Minute)
		ok, reason := CanEnterNow(st, g, now)
		assert.False(t, ok)
		assert.Equal(t, "min entry gap", reason)

		st.LastEntryAt = now.Add(-16 * time.Minute)
		ok, _ = CanEnterNow(st, g, now)
		assert.True(t, ok)
	})

	t.Run("all disabled leaves only structural checks", func(t *testing.T) {
		g := config.GuardsConfig{} // everything off
		st := readyState(t)
		st.CooldownUntil = now.Add(time.Hour)
		st.PausedUntil = now.Add(time.Hour)
		st.TradesToday = 1000
		st.LastEntryAt = now
		ok, _ := CanEnterNow(st, g, now)
		assert.True(t, ok)

		st.Pending = &PendingOrder{Kind: PendingEntry}
		ok, _ = CanEnterNow(st, g, now)
		assert.False(t, ok, "position/pending checks cannot be disabled")
	})
}

func TestOnStopLossCooldownDuration(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	g := defaultGuards()
	g.CooldownBarsAfterSL = 2
	barDur := 300000 * time.Millisecond

	st := readyState(t)
	OnStopLoss(st, g, barDur, now)
	assert.Equal(t, now.Add(600000*time.Millisecond), st.CooldownUntil)

	ok, _ := CanEnterNow(st, g, now.Add(599999*time.Millisecond))
	assert.False(t, ok)
	ok, _ = CanEnterNow(st, g, now.Add(600000*time.Millisecond))
	assert.True(t, ok)
}

func TestKillSwitchWindow(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	g := defaultGuards()
	g.CooldownEnabled = false
	g.KillSwitch = config.KillSwitchConfig{MaxStops: 3, WindowMinutes: 120, PauseMinutes: 180}

	st := readyState(t)
	OnStopLoss(st, g, time.Minute, now)
	OnStopLoss(st, g, time.Minute, now.Add(10*time.Minute))
	assert.True(t, st.PausedUntil.IsZero(), "two stops stay under the threshold")

	OnStopLoss(st, g, time.Minute, now.Add(20*time.Minute))
	assert.Equal(t, now.Add(20*time.Minute).Add(3*time.Hour), st.PausedUntil)
	assert.Empty(t, st.StopEvents, "window clears after tripping")
}

func TestKillSwitchPrunesOldStops(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	g := defaultGuards()
	g.CooldownEnabled = false

	st := readyState(t)
	OnStopLoss(st, g, time.Minute, now)
	OnStopLoss(st, g, time.Minute, now.Add(30*time.Minute))
	// Third stop lands after the first fell out of the 120-minute window.
	OnStopLoss(st, g, time.Minute, now.Add(125*time.Minute))
	assert.True(t, st.PausedUntil.IsZero())
	assert.Len(t, st.StopEvents, 2)
}

func TestResetArmedOnReenterBand(t *testing.T) {
	st := readyState(t)
	st.ArmedLong = true
	st.ArmedShort = true

	ResetArmedOnReenterBand(st, 94, true) // below lower: long stays armed
	assert.True(t, st.ArmedLong)
	assert.False(t, st.ArmedShort)

	st.ArmedLong = true
	st.ArmedShort = true
	ResetArmedOnReenterBand(st, 100, true) // inside the band clears both
	assert.False(t, st.ArmedLong)
	assert.False(t, st.ArmedShort)

	st.ArmedLong = true
	ResetArmedOnReenterBand(st, 100, false)
	assert.True(t, st.ArmedLong, "disabled latch never mutates")
}

func TestTriggerCrossings(t *testing.T) {
	st := readyState(t)

	assert.False(t, CrossedLongTrigger(st, 92), "no previous mark")

	st.PrevMark, st.PrevMarkSet = 93, true
	assert.True(t, CrossedLongTrigger(st, 92))
	assert.True(t, CrossedLongTrigger(st, 91.5))

	st.PrevMark = 92 // already at the trigger: hovering is not a crossing
	assert.False(t, CrossedLongTrigger(st, 92))

	st.PrevMark = 107
	assert.True(t, CrossedShortTrigger(st, 108))
	st.PrevMark = 108
	assert.False(t, CrossedShortTrigger(st, 108.5))
}
