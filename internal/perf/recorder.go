package perf

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"bandbot/internal/logger"
	"bandbot/internal/metrics"
	"bandbot/internal/trader"
)

// Notifier receives human-readable trade notices. Implementations must not
// block; the recorder calls them from processor goroutines.
type Notifier interface {
	Notify(text string)
}

// Tally is one bucket of session outcomes.
type Tally struct {
	Sessions  int
	Wins      int
	Losses    int
	BreakEven int
	NetUSDT   float64
}

// openSession tracks one entry and its subsequent exit fills until the
// position is fully closed.
type openSession struct {
	EntryAt    time.Time
	EntryCID   string
	Side       string
	EntryPrice float64
	QtyOpen    float64
	TP1        float64
	TP2        float64
	SL         float64
	Realized   float64
}

type symbolPerf struct {
	dayKey string
	day    Tally
	total  Tally
	open   *openSession
}

// Recorder aggregates entry and exit telemetry into per-symbol session, day
// and lifetime tallies. It is safe for concurrent use by multiple symbol
// processors.
type Recorder struct {
	loc       *time.Location
	notifiers []Notifier

	mu  sync.Mutex
	sym map[string]*symbolPerf
}

func NewRecorder(loc *time.Location, notifiers ...Notifier) *Recorder {
	if loc == nil {
		loc = time.UTC
	}
	return &Recorder{
		loc:       loc,
		notifiers: notifiers,
		sym:       make(map[string]*symbolPerf),
	}
}

var _ trader.PerfSink = (*Recorder)(nil)

func (r *Recorder) get(symbol string) *symbolPerf {
	p, ok := r.sym[symbol]
	if !ok {
		p = &symbolPerf{dayKey: ""}
		r.sym[symbol] = p
	}
	return p
}

// ensureDay rolls the day bucket, printing the closing summary for the day
// that just ended.
func (r *Recorder) ensureDay(symbol string, p *symbolPerf, now time.Time) {
	key := trader.DayKey(now, r.loc)
	if p.dayKey == key {
		return
	}
	if p.dayKey != "" {
		logger.Infof("[DAY] %s %s sessions=%d W=%d L=%d BE=%d NET=%.6f",
			symbol, p.dayKey, p.day.Sessions, p.day.Wins, p.day.Losses, p.day.BreakEven, p.day.NetUSDT)
	}
	p.dayKey = key
	p.day = Tally{}
	metrics.DayRealizedPnL.WithLabelValues(symbol).Set(0)
}

func (r *Recorder) RecordEntry(ev trader.EntryEvent) {
	r.mu.Lock()
	p := r.get(ev.Symbol)
	r.ensureDay(ev.Symbol, p, ev.At)

	// A fresh entry replaces a leftover session; that only happens after a
	// restart mid-position.
	p.open = &openSession{
		EntryAt:    ev.At,
		EntryCID:   ev.ClientID,
		Side:       string(ev.Side),
		EntryPrice: ev.Entry,
		QtyOpen:    ev.Qty,
		TP1:        ev.TP1,
		TP2:        ev.TP2,
		SL:         ev.SL,
	}
	r.mu.Unlock()

	logger.Infof("[ENTRY] %s %s side=%s qty=%.8f entry=%.8f tp1=%.8f tp2=%.8f sl=%.8f cid=%s",
		ev.Symbol, r.stamp(ev.At), ev.Side, ev.Qty, ev.Entry, ev.TP1, ev.TP2, ev.SL, ev.ClientID)
	r.broadcast(fmt.Sprintf("ENTRY %s %s qty=%.4f @ %.4f (tp1 %.4f / tp2 %.4f / sl %.4f)",
		ev.Symbol, ev.Side, ev.Qty, ev.Entry, ev.TP1, ev.TP2, ev.SL))
}

func (r *Recorder) RecordExit(ev trader.ExitEvent) {
	r.mu.Lock()
	p := r.get(ev.Symbol)
	r.ensureDay(ev.Symbol, p, ev.At)

	open := p.open
	if open == nil {
		r.mu.Unlock()
		// Exit without a tracked entry: the bot restarted mid-position. Log
		// it, but session tallies stay untouched.
		logger.Infof("[EXIT] %s %s reason=%s mode=%s qty=%.8f exit=%.8f pnl=%.6f cid=%s (no open session)",
			ev.Symbol, r.stamp(ev.At), ev.Reason, ev.Mode, ev.Qty, ev.Price, ev.PnL, ev.ClientID)
		return
	}

	open.Realized += ev.PnL
	open.QtyOpen = ev.Remaining
	if open.QtyOpen < 0 {
		open.QtyOpen = 0
	}

	logger.Infof("[EXIT] %s %s reason=%s mode=%s side=%s qty=%.8f exit=%.8f pnl=%.6f netSession=%.6f remQty=%.8f cid=%s",
		ev.Symbol, r.stamp(ev.At), ev.Reason, ev.Mode, open.Side, ev.Qty, ev.Price, ev.PnL, open.Realized, open.QtyOpen, ev.ClientID)

	if !ev.Final {
		r.mu.Unlock()
		return
	}

	net := open.Realized
	p.day.Sessions++
	p.total.Sessions++
	p.day.NetUSDT += net
	p.total.NetUSDT += net
	switch {
	case net > 0:
		p.day.Wins++
		p.total.Wins++
	case net < 0:
		p.day.Losses++
		p.total.Losses++
	default:
		p.day.BreakEven++
		p.total.BreakEven++
	}
	day := p.day
	entryAt := open.EntryAt
	side := open.Side
	entryPrice := open.EntryPrice
	p.open = nil
	r.mu.Unlock()

	metrics.DayRealizedPnL.WithLabelValues(ev.Symbol).Set(day.NetUSDT)

	dur := ev.At.Sub(entryAt).Truncate(time.Second)
	if dur < 0 {
		dur = 0
	}
	logger.Infof("[TRADE] %s ENTRY@%s -> EXIT@%s side=%s entry=%.8f net=%.6f dur=%s DAY.net=%.6f (W%d/L%d/BE%d)",
		ev.Symbol, r.stamp(entryAt), r.stamp(ev.At), side, entryPrice, net, dur,
		day.NetUSDT, day.Wins, day.Losses, day.BreakEven)
	r.broadcast(fmt.Sprintf("TRADE %s %s net=%.4f USDT (day %.4f, W%d/L%d/BE%d)",
		ev.Symbol, side, net, day.NetUSDT, day.Wins, day.Losses, day.BreakEven))
}

// DayTally returns a copy of the current day bucket for one symbol.
func (r *Recorder) DayTally(symbol string) Tally {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.sym[symbol]; ok {
		return p.day
	}
	return Tally{}
}

// TotalTally returns a copy of the lifetime bucket for one symbol.
func (r *Recorder) TotalTally(symbol string) Tally {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.sym[symbol]; ok {
		return p.total
	}
	return Tally{}
}

// LogTotals prints the lifetime summary for every tracked symbol, usually on
// shutdown.
func (r *Recorder) LogTotals() {
	r.mu.Lock()
	type row struct {
		symbol string
		t      Tally
	}
	rows := make([]row, 0, len(r.sym))
	for symbol, p := range r.sym {
		rows = append(rows, row{symbol, p.total})
	}
	r.mu.Unlock()

	for _, rw := range rows {
		logger.Infof("[TOTAL] %s sessions=%d W=%d L=%d BE=%d NET=%.6f",
			rw.symbol, rw.t.Sessions, rw.t.Wins, rw.t.Losses, rw.t.BreakEven, rw.t.NetUSDT)
	}
}

func (r *Recorder) stamp(t time.Time) string {
	return t.In(r.loc).Format("2006-01-02 15:04:05")
}

func (r *Recorder) broadcast(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	for _, n := range r.notifiers {
		n.Notify(text)
	}
}
