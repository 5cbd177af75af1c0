package trader

import (
	"time"

	"bandbot/internal/config"
	"bandbot/internal/exchange"
)

// CanEnterNow evaluates every enabled guard and reports whether a new entry
// is allowed. The returned reason names the first guard that refused, for
// logging only.
func CanEnterNow(st *SymbolState, g config.GuardsConfig, now time.Time) (bool, string) {
	if st.Position.Side != exchange.PositionNone {
		return false, "position open"
	}
	if st.Pending != nil {
		return false, "order pending"
	}
	if st.Band == nil || !st.Rules.Populated() {
		return false, "not initialized"
	}

	if g.CooldownEnabled && now.Before(st.CooldownUntil) {
		return false, "cooldown"
	}
	if g.KillSwitchEnabled && now.Before(st.PausedUntil) {
		return false, "kill switch pause"
	}
	if g.MaxTradesEnabled && st.TradesToday >= g.MaxTradesPerDay {
		return false, "max trades/day"
	}
	if g.MinGapEnabled && !st.LastEntryAt.IsZero() {
		gap := time.Duration(g.MinMinutesBetweenEntries) * time.Minute
		if now.Sub(st.LastEntryAt) < gap {
			return false, "min entry gap"
		}
	}
	return true, ""
}

// OnStopLoss mutates guard state after a confirmed stop-loss fill: starts the
// bar-denominated cooldown and feeds the kill-switch window.
func OnStopLoss(st *SymbolState, g config.GuardsConfig, barDur time.Duration, now time.Time) {
	if g.CooldownEnabled {
		st.CooldownUntil = now.Add(time.Duration(g.CooldownBarsAfterSL) * barDur)
	}
	if !g.KillSwitchEnabled {
		return
	}
	st.StopEvents = append(st.StopEvents, now)
	cutoff := now.Add(-g.KillSwitch.Window())
	kept := st.StopEvents[:0]
	for _, ts := range st.StopEvents {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	st.StopEvents = kept
	if len(st.StopEvents) >= g.KillSwitch.MaxStops {
		st.PausedUntilAtLeast(now.Add(g.KillSwitch.Pause()))
		st.StopEvents = nil
	}
}

// ResetArmedOnReenterBand clears the anti-repeat latches once price returns
// inside the band, re-enabling the corresponding entry side.
func ResetArmedOnReenterBand(st *SymbolState, mark float64, enabled bool) {
	if !enabled || st.Band == nil {
		return
	}
	if mark > st.Band.Lower {
		st.ArmedLong = false
	}
	if mark < st.Band.Upper {
		st.ArmedShort = false
	}
}

// CrossedLongTrigger reports a true downward crossing of the long trigger:
// the previous mark strictly above it, the current mark at or below. A touch
// without a crossing never fires.
func CrossedLongTrigger(st *SymbolState, mark float64) bool {
	if !st.PrevMarkSet || st.Band == nil {
		return false
	}
	return st.PrevMark > st.Band.LongTrigger && mark <= st.Band.LongTrigger
}

// CrossedShortTrigger is the mirror for the short side.
func CrossedShortTrigger(st *SymbolState, mark float64) bool {
	if !st.PrevMarkSet || st.Band == nil {
		return false
	}
	return st.PrevMark < st.Band.ShortTrigger && mark >= st.Band.ShortTrigger
}
