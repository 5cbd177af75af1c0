// Package band computes the rolling volatility-band statistics that drive
// entry and exit levels. Bands come from go-talib; the trigger levels are
// offsets from the band edges scaled by band width.
package band

import (
	"time"

	"github.com/markcheno/go-talib"
)

// Snapshot is the per-bar band state cached on each symbol. It is replaced
// wholesale on every closed bar and read-only in between.
type Snapshot struct {
	Middle float64
	Upper  float64
	Lower  float64
	Width  float64

	LongTrigger  float64
	ShortTrigger float64

	UpdatedAt time.Time
}

// Provider derives band snapshots from closed-bar series.
type Provider struct {
	Period      int
	StdDev      float64
	TriggerMult float64
}

func NewProvider(period int, stdDev, triggerMult float64) *Provider {
	return &Provider{Period: period, StdDev: stdDev, TriggerMult: triggerMult}
}

// Compute returns the band snapshot for the given closes, or false when the
// series is still shorter than the configured period.
func (p *Provider) Compute(closes []float64, closedAt time.Time) (Snapshot, bool) {
	if p.Period <= 0 || len(closes) < p.Period {
		return Snapshot{}, false
	}
	window := closes[len(closes)-p.Period:]
	upper, middle, lower := talib.BBands(window, p.Period, p.StdDev, p.StdDev, talib.SMA)
	last := len(window) - 1
	snap := Snapshot{
		Middle:    middle[last],
		Upper:     upper[last],
		Lower:     lower[last],
		Width:     upper[last] - lower[last],
		UpdatedAt: closedAt,
	}
	snap.LongTrigger = snap.Lower - p.TriggerMult*snap.Width
	snap.ShortTrigger = snap.Upper + p.TriggerMult*snap.Width
	return snap, true
}

// CloseSeries is a bounded buffer of closed-bar close prices, oldest first.
type CloseSeries struct {
	buf []float64
	max int
}

func NewCloseSeries(max int) *CloseSeries {
	if max <= 0 {
		max = 500
	}
	return &CloseSeries{max: max}
}

func (s *CloseSeries) Push(close float64) {
	s.buf = append(s.buf, close)
	if len(s.buf) > s.max {
		s.buf = s.buf[len(s.buf)-s.max:]
	}
}

func (s *CloseSeries) Len() int { return len(s.buf) }

// Values returns the buffered closes, oldest first. The returned slice is
// shared; callers must not mutate it.
func (s *CloseSeries) Values() []float64 { return s.buf }
