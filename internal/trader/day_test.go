package trader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayKeyUsesReferenceZone(t *testing.T) {
	wib := time.FixedZone("WIB", 7*3600)

	// 17:00 UTC is already midnight of the next day at UTC+7.
	ts := time.Date(2025, 6, 2, 17, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-03", DayKey(ts, wib))
	assert.Equal(t, "2025-06-02", DayKey(ts, time.UTC))

	assert.Equal(t, "2025-06-02", DayKey(time.Date(2025, 6, 2, 16, 59, 59, 0, time.UTC), wib))
}

func TestEnsureDayRollsCounters(t *testing.T) {
	wib := time.FixedZone("WIB", 7*3600)
	st := NewSymbolState("BTCUSDT")

	morning := time.Date(2025, 6, 2, 9, 0, 0, 0, wib)
	st.EnsureDay(morning, wib)
	st.TradesToday = 4
	st.DayRealizedPnL = 12.5
	st.DayWins = 3
	st.DayLosses = 1

	// Same trading day: counters untouched.
	st.EnsureDay(morning.Add(10*time.Hour), wib)
	assert.Equal(t, 4, st.TradesToday)
	assert.Equal(t, 12.5, st.DayRealizedPnL)

	// Past local midnight: everything resets.
	st.EnsureDay(morning.Add(16*time.Hour), wib)
	assert.Equal(t, "2025-06-03", st.TradesDayKey)
	assert.Zero(t, st.TradesToday)
	assert.Zero(t, st.DayRealizedPnL)
	assert.Zero(t, st.DayWins)
	assert.Zero(t, st.DayLosses)
}
