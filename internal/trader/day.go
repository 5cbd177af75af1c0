package trader

import "time"

// DayKey renders the trading-day bucket for a timestamp in the configured
// reference timezone. Guard counters and PnL tallies key off this, never off
// the host zone or UTC.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// EnsureDay rolls the per-day counters when the trading day changes. Called
// at the top of every event-processing entry point.
func (s *SymbolState) EnsureDay(now time.Time, loc *time.Location) {
	key := DayKey(now, loc)
	if s.TradesDayKey == key {
		return
	}
	s.TradesDayKey = key
	s.TradesToday = 0
	s.DayRealizedPnL = 0
	s.DayWins = 0
	s.DayLosses = 0
}
