package trader

import (
	"context"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"bandbot/internal/band"
	"bandbot/internal/config"
	"bandbot/internal/exchange"
	"bandbot/internal/logger"
	"bandbot/internal/metrics"
	"bandbot/internal/quant"
)

// EntryEvent is sent to the performance sink when an entry order fills.
type EntryEvent struct {
	Symbol   string
	Side     exchange.PositionSide
	Entry    float64
	Qty      float64
	TP1      float64
	TP2      float64
	SL       float64
	ClientID string
	At       time.Time
}

// ExitEvent is sent to the performance sink for every exit fill delta.
type ExitEvent struct {
	Symbol    string
	Reason    ExitReason
	Mode      ExitMode
	Price     float64
	Qty       float64
	PnL       float64
	Remaining float64
	Final     bool
	ClientID  string
	At        time.Time
}

// PerfSink receives trade telemetry, fire-and-forget. It never influences
// control flow.
type PerfSink interface {
	RecordEntry(EntryEvent)
	RecordExit(ExitEvent)
}

// ProcessorParams wires one symbol's processor.
type ProcessorParams struct {
	Symbol      string
	Client      exchange.ControlClient
	Strategy    config.StrategyConfig
	Sizing      config.SizingConfig
	Exec        config.ExecConfig
	Guards      func() config.GuardsConfig
	BarDuration time.Duration
	Location    *time.Location
	Perf        PerfSink
	Now         func() time.Time
}

// Processor is the per-symbol actor. One goroutine owns the SymbolState and
// serializes mark evaluations, order updates and closed bars through a single
// loop; REST calls are the only suspension points and they block the loop for
// this symbol only.
type Processor struct {
	symbol string
	st     *SymbolState
	client exchange.ControlClient

	strat  config.StrategyConfig
	sizing config.SizingConfig
	exec   config.ExecConfig
	guards func() config.GuardsConfig

	barDur time.Duration
	loc    *time.Location
	bands  *band.Provider
	closes *band.CloseSeries
	perf   PerfSink
	now    func() time.Time

	// markCh has capacity 1: OfferMark overwrites an unconsumed value so the
	// loop always evaluates the freshest price and bursts coalesce.
	markCh chan exchange.MarkPriceEvent
	updCh  chan exchange.OrderUpdate
	barCh  chan exchange.ClosedBar
	stopCh chan struct{}
	wg     sync.WaitGroup

	// daySnap is refreshed by the loop after every event so readers outside
	// the loop (the periodic summary) never touch SymbolState directly.
	daySnap atomic.Value // DayStats

	ctx context.Context
}

// DayStats is the read-only day tally exposed to the summary ticker.
type DayStats struct {
	Key    string
	PnL    float64
	Wins   int
	Losses int
	Trades int
}

func NewProcessor(p ProcessorParams) *Processor {
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	return &Processor{
		symbol: p.Symbol,
		st:     NewSymbolState(p.Symbol),
		client: p.Client,
		strat:  p.Strategy,
		sizing: p.Sizing,
		exec:   p.Exec,
		guards: p.Guards,
		barDur: p.BarDuration,
		loc:    p.Location,
		bands:  band.NewProvider(p.Strategy.BBPeriod, p.Strategy.BBStdDev, p.Strategy.TriggerMult),
		closes: band.NewCloseSeries(p.Strategy.SeriesMax),
		perf:   p.Perf,
		now:    p.Now,
		markCh: make(chan exchange.MarkPriceEvent, 1),
		updCh:  make(chan exchange.OrderUpdate, 64),
		barCh:  make(chan exchange.ClosedBar, 8),
		stopCh: make(chan struct{}),
	}
}

// SetRules installs the boot-time quantization rules. Must be called before
// Start.
func (p *Processor) SetRules(r quant.Rules) { p.st.Rules = r }

func (p *Processor) Symbol() string { return p.symbol }

// SeedPosition rehydrates exposure from the exchange snapshot at boot.
func (p *Processor) SeedPosition(snap exchange.PositionSnapshot) {
	if snap.Flat() {
		p.st.ResetPosition()
		return
	}
	p.st.Position = Position{Side: snap.Side, Qty: snap.Qty, EntryPrice: snap.EntryPrice}
	logger.Infof("[%s] rehydrated position side=%s qty=%v entry=%v",
		p.symbol, snap.Side, snap.Qty, snap.EntryPrice)
}

func (p *Processor) Start(ctx context.Context) {
	p.ctx = ctx
	p.wg.Add(1)
	go p.runLoop()
}

func (p *Processor) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// OfferMark stores the mark in the single-slot buffer, displacing any
// unconsumed older value. Never blocks.
func (p *Processor) OfferMark(ev exchange.MarkPriceEvent) {
	for {
		select {
		case p.markCh <- ev:
			return
		default:
		}
		select {
		case <-p.markCh:
			metrics.MarksCoalesced.WithLabelValues(p.symbol).Inc()
		default:
		}
	}
}

// OfferUpdate queues an account-stream order update.
func (p *Processor) OfferUpdate(u exchange.OrderUpdate) {
	select {
	case p.updCh <- u:
	default:
		logger.Warnf("[%s] order update queue full, dropping cid=%s", p.symbol, u.ClientID)
	}
}

// OfferBar queues a finalized bar for band recomputation.
func (p *Processor) OfferBar(b exchange.ClosedBar) {
	select {
	case p.barCh <- b:
	default:
		logger.Warnf("[%s] bar queue full, dropping close=%v", p.symbol, b.Close)
	}
}

func (p *Processor) runLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case ev := <-p.markCh:
			p.safely(func() { p.processMark(ev) })
		case u := <-p.updCh:
			p.safely(func() { p.handleOrderUpdate(u) })
		case b := <-p.barCh:
			p.safely(func() { p.handleClosedBar(b) })
		}
	}
}

// safely contains a panic to this symbol's event, matching the containment
// rule that no failure crosses symbol boundaries.
func (p *Processor) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[%s] event handler panic: %v\n%s", p.symbol, r, debug.Stack())
		}
		p.daySnap.Store(DayStats{
			Key:    p.st.TradesDayKey,
			PnL:    p.st.DayRealizedPnL,
			Wins:   p.st.DayWins,
			Losses: p.st.DayLosses,
			Trades: p.st.TradesToday,
		})
		qty := p.st.Position.Qty
		if p.st.Position.Side == exchange.PositionShort {
			qty = -qty
		}
		metrics.PositionQty.WithLabelValues(p.symbol).Set(qty)
	}()
	fn()
}

func (p *Processor) handleClosedBar(b exchange.ClosedBar) {
	p.closes.Push(b.Close)
	snap, ok := p.bands.Compute(p.closes.Values(), b.CloseTime)
	if !ok {
		return
	}
	p.st.Band = &snap
	logger.Debugf("[%s] band mid=%.6f up=%.6f low=%.6f width=%.6f trigL=%.6f trigS=%.6f",
		p.symbol, snap.Middle, snap.Upper, snap.Lower, snap.Width, snap.LongTrigger, snap.ShortTrigger)
}

func (p *Processor) processMark(ev exchange.MarkPriceEvent) {
	st := p.st
	now := p.now()
	st.EnsureDay(now, p.loc)

	mark := ev.Price
	if math.IsNaN(mark) || math.IsInf(mark, 0) || mark <= 0 {
		st.PrevMarkSet = false
		return
	}
	defer func() {
		st.PrevMark = mark
		st.PrevMarkSet = true
	}()

	if st.Band == nil || !st.Rules.Populated() {
		return
	}

	if st.Pending != nil {
		// Catastrophic stop-loss overrides any in-flight order lifecycle.
		if !st.Position.Flat() {
			if sl, ok := p.stopLossPrice(st.Position.Side); ok && stopHit(st.Position.Side, mark, sl) {
				p.overridePendingForStop(mark, now, sl)
				return
			}
		}
		if p.hardReleaseStuckPending(now) {
			return
		}
		p.maybeCancelStuckPending(now)
		return
	}

	g := p.guards()
	ResetArmedOnReenterBand(st, mark, g.ArmedEnabled)

	if !st.Position.Flat() {
		p.manageOpenPosition(mark, now)
		return
	}

	if ok, reason := CanEnterNow(st, g, now); !ok {
		metrics.GuardRejections.WithLabelValues(p.symbol, reason).Inc()
		logger.Debugf("[%s] entry blocked: %s", p.symbol, reason)
		return
	}

	var longSignal, shortSignal bool
	if g.DebounceEnabled {
		longSignal = CrossedLongTrigger(st, mark)
		shortSignal = CrossedShortTrigger(st, mark)
	} else {
		longSignal = mark <= st.Band.LongTrigger
		shortSignal = mark >= st.Band.ShortTrigger
	}
	allowLong := !g.ArmedEnabled || !st.ArmedLong
	allowShort := !g.ArmedEnabled || !st.ArmedShort

	switch {
	case allowLong && longSignal:
		p.enterPosition(exchange.PositionLong, mark, now, g)
	case allowShort && shortSignal:
		p.enterPosition(exchange.PositionShort, mark, now, g)
	}
}

// manageOpenPosition walks the exit ladder; the first applicable condition
// wins and the rest are not evaluated.
func (p *Processor) manageOpenPosition(mark float64, now time.Time) {
	st := p.st
	side := st.Position.Side
	entry := st.Position.EntryRef()
	if entry <= 0 {
		entry = mark
	}

	if sl, ok := p.stopLossPrice(side); ok && stopHit(side, mark, sl) {
		p.exitPosition(ReasonStopLoss, ExitFull, mark, now, sl)
		return
	}
	if !st.TP1Hit {
		if t1, ok := targetPrice(entry, side, p.strat.TP1Pct); ok && targetHit(side, mark, t1) {
			p.exitPosition(ReasonTakeProfit, ExitPartial, mark, now, t1)
			return
		}
	}
	if st.TP1Hit && breakEvenHit(side, mark, entry) {
		p.exitPosition(ReasonBreakEven, ExitFull, mark, now, entry)
		return
	}
	if t2, ok := targetPrice(entry, side, p.strat.TP2Pct); ok && targetHit(side, mark, t2) {
		p.exitPosition(ReasonTakeFull, ExitFull, mark, now, t2)
	}
}

func (p *Processor) enterPosition(side exchange.PositionSide, mark float64, now time.Time, g config.GuardsConfig) {
	st := p.st
	if g.ArmedEnabled {
		p.setArmed(side, true)
	}
	unarm := func() {
		if g.ArmedEnabled {
			p.setArmed(side, false)
		}
	}

	qty := quant.QtyFromNotional(p.sizing.NotionalUSD(), mark, st.Rules)
	if qty.Sign() <= 0 {
		logger.Warnf("[%s] entry qty below exchange minimums, skipping %s", p.symbol, side)
		unarm()
		return
	}
	qtyF, _ := qty.Float64()
	cid := newClientID("E", p.symbol, now)

	req := exchange.OrderRequest{
		Symbol:   p.symbol,
		Side:     entrySide(side),
		Type:     exchange.OrderType(p.exec.EntryType),
		Quantity: quant.Format(qty),
		ClientID: cid,
	}
	if p.exec.HedgeMode() {
		req.PositionSide = side
	}
	if req.Type == exchange.OrderLimit {
		px, ok := p.entryLimitPrice(side)
		if !ok {
			logger.Warnf("[%s] no usable limit price for %s entry, skipping", p.symbol, side)
			unarm()
			return
		}
		req.Price = px
		req.TimeInForce = exchange.TimeInForce(p.exec.EntryTimeInForce)
		logger.Infof("[%s] ENTER %s LIMIT mark=%.6f price=%s qty=%s cid=%s",
			p.symbol, side, mark, req.Price, req.Quantity, cid)
	} else {
		logger.Infof("[%s] ENTER %s MARKET mark=%.6f qty=%s cid=%s",
			p.symbol, side, mark, req.Quantity, cid)
	}

	st.Pending = &PendingOrder{
		Kind:         PendingEntry,
		ClientID:     cid,
		Side:         side,
		RequestedQty: qtyF,
		SubmittedAt:  now,
		MarkAtSubmit: mark,
	}

	if _, err := p.client.PlaceOrder(p.ctx, req); err != nil {
		logger.Errorf("[%s] entry order failed: %v", p.symbol, err)
		metrics.OrderFailures.WithLabelValues(p.symbol, string(PendingEntry)).Inc()
		unarm()
		st.Pending = nil
		return
	}
	metrics.OrdersSubmitted.WithLabelValues(p.symbol, string(PendingEntry)).Inc()
}

// entryLimitPrice prices a limit entry at the trigger level nudged by the
// configured slip ticks toward the market, rounded so the price never lands
// on the unfavorable side of the grid.
func (p *Processor) entryLimitPrice(side exchange.PositionSide) (string, bool) {
	b := p.st.Band
	if b == nil {
		return "", false
	}
	trigger := b.LongTrigger
	bias := quant.BiasFloor
	if side == exchange.PositionShort {
		trigger = b.ShortTrigger
		bias = quant.BiasCeil
	}
	if trigger <= 0 {
		return "", false
	}
	px := decimal.NewFromFloat(trigger)
	if p.exec.EntrySlipTicks > 0 && p.st.Rules.TickSize.Sign() > 0 {
		adj := decimal.NewFromInt(int64(p.exec.EntrySlipTicks)).Mul(p.st.Rules.TickSize)
		if side == exchange.PositionLong {
			px = px.Add(adj)
		} else {
			px = px.Sub(adj)
		}
	}
	px = quant.RoundPriceToTick(px, p.st.Rules.TickSize, bias)
	if px.Sign() <= 0 {
		return "", false
	}
	return quant.Format(px), true
}

func (p *Processor) exitPosition(reason ExitReason, mode ExitMode, mark float64, now time.Time, target float64) {
	st := p.st
	side := st.Position.Side
	fullQty := st.Position.Qty
	if side == exchange.PositionNone || fullQty <= 0 {
		return
	}

	qtyD := decimal.NewFromFloat(fullQty)
	if mode == ExitPartial {
		part := p.partialQty(fullQty)
		if part.Sign() <= 0 || !part.LessThan(qtyD) {
			mode = ExitFull
		} else {
			qtyD = part
		}
	}
	qtyD = quant.RoundDownToStep(qtyD, st.Rules.StepSize)
	if qtyD.Sign() <= 0 {
		logger.Warnf("[%s] exit qty quantized to zero, skipping %s", p.symbol, reason)
		return
	}
	qtyF, _ := qtyD.Float64()
	cid := newClientID("X", p.symbol, now)

	st.Pending = &PendingOrder{
		Kind:         PendingExit,
		ClientID:     cid,
		Side:         side,
		Reason:       reason,
		Mode:         mode,
		RequestedQty: qtyF,
		SubmittedAt:  now,
		MarkAtSubmit: mark,
		TargetPrice:  target,
	}

	req := exchange.OrderRequest{
		Symbol:   p.symbol,
		Side:     side.Opposite(),
		Type:     exchange.OrderType(p.exec.ExitType),
		Quantity: quant.Format(qtyD),
		ClientID: cid,
	}
	if p.exec.HedgeMode() {
		req.PositionSide = side
	} else {
		req.ReduceOnly = true
	}
	if req.Type == exchange.OrderLimit {
		ref := target
		if ref <= 0 {
			ref = mark
		}
		bias := quant.BiasFloor // LONG exit sells, lower price fills
		if side == exchange.PositionShort {
			bias = quant.BiasCeil
		}
		px := quant.RoundPriceToTick(decimal.NewFromFloat(ref), st.Rules.TickSize, bias)
		if px.Sign() <= 0 {
			logger.Warnf("[%s] exit limit price unusable, skipping %s", p.symbol, reason)
			st.Pending = nil
			return
		}
		req.Price = quant.Format(px)
		req.TimeInForce = exchange.TIFGoodTillCancel
	}

	logger.Infof("[%s] EXIT %s %s %s mark=%.6f qty=%s full=%.8f target=%.6f cid=%s",
		p.symbol, reason, mode, side, mark, req.Quantity, fullQty, target, cid)

	if _, err := p.client.PlaceOrder(p.ctx, req); err != nil {
		logger.Errorf("[%s] exit order failed: %v", p.symbol, err)
		metrics.OrderFailures.WithLabelValues(p.symbol, string(PendingExit)).Inc()
		st.Pending = nil
		return
	}
	metrics.OrdersSubmitted.WithLabelValues(p.symbol, string(PendingExit)).Inc()
}

// partialQty quantizes the TP1 fraction of the position. Zero means the
// partial is not executable and the caller escalates to a full exit.
func (p *Processor) partialQty(fullQty float64) decimal.Decimal {
	raw := decimal.NewFromFloat(fullQty * p.strat.TP1CloseFrac)
	rounded := quant.RoundDownToStep(raw, p.st.Rules.StepSize)
	if rounded.Sign() <= 0 || rounded.LessThan(p.st.Rules.MinQty) {
		return decimal.Zero
	}
	return rounded
}

// overridePendingForStop cancels the outstanding order and fires an
// immediate full stop-loss exit. Risk containment beats order lifecycle.
func (p *Processor) overridePendingForStop(mark float64, now time.Time, sl float64) {
	st := p.st
	if st.Pending != nil && st.Pending.ClientID != "" {
		if err := p.client.CancelOrder(p.ctx, p.symbol, st.Pending.ClientID); err != nil {
			logger.Warnf("[%s] cancel before stop failed cid=%s: %v", p.symbol, st.Pending.ClientID, err)
		} else {
			logger.Infof("[%s] canceled pending cid=%s before stop", p.symbol, st.Pending.ClientID)
		}
	}
	st.Pending = nil
	if err := p.client.CancelAllOpenOrders(p.ctx, p.symbol); err != nil {
		logger.Warnf("[%s] cancel-all before stop failed: %v", p.symbol, err)
	}
	p.exitPosition(ReasonStopLoss, ExitFull, mark, now, sl)
}

// maybeCancelStuckPending requests exactly one cancellation once the pending
// order outlives the soft timeout.
func (p *Processor) maybeCancelStuckPending(now time.Time) {
	pend := p.st.Pending
	if pend == nil {
		return
	}
	if now.Sub(pend.SubmittedAt) < p.exec.PendingTimeout() {
		return
	}
	if !pend.CancelRequestedAt.IsZero() {
		return
	}
	pend.CancelRequestedAt = now
	logger.Warnf("[%s] pending %s cid=%s stuck %s, requesting cancel",
		p.symbol, pend.Kind, pend.ClientID, now.Sub(pend.SubmittedAt).Truncate(time.Second))
	if err := p.client.CancelOrder(p.ctx, p.symbol, pend.ClientID); err != nil {
		logger.Warnf("[%s] soft cancel failed cid=%s: %v", p.symbol, pend.ClientID, err)
	}
}

// hardReleaseStuckPending force-reconciles a pending order past the hard
// timeout. It always ends with Pending cleared; uncertainty costs a short
// symbol pause.
func (p *Processor) hardReleaseStuckPending(now time.Time) bool {
	st := p.st
	pend := st.Pending
	if pend == nil {
		return false
	}
	if now.Sub(pend.SubmittedAt) < p.exec.HardPending() {
		return false
	}

	logger.Warnf("[%s] HARD reconcile %s cid=%s age=%s",
		p.symbol, pend.Kind, pend.ClientID, now.Sub(pend.SubmittedAt).Truncate(time.Second))
	metrics.HardReconciliations.WithLabelValues(p.symbol).Inc()

	status, err := p.client.GetOrderStatus(p.ctx, p.symbol, pend.ClientID)
	if err != nil {
		logger.Errorf("[%s] HARD status lookup failed cid=%s: %v", p.symbol, pend.ClientID, err)
		p.syncPositionFromExchange()
		st.Pending = nil
		p.cancelAllQuiet()
		st.PausedUntilAtLeast(now.Add(p.exec.ReconcilePause()))
		return true
	}

	if status.Terminal() {
		p.syncPositionFromExchange()
		st.Pending = nil
		p.cancelAllQuiet()
		logger.Infof("[%s] HARD release: order terminal (%s), state resynced", p.symbol, status)
		return true
	}

	if err := p.client.CancelOrder(p.ctx, p.symbol, pend.ClientID); err != nil {
		logger.Warnf("[%s] HARD cancel failed cid=%s: %v", p.symbol, pend.ClientID, err)
	}
	p.syncPositionFromExchange()
	st.Pending = nil
	p.cancelAllQuiet()
	st.PausedUntilAtLeast(now.Add(p.exec.ReconcilePause()))
	logger.Infof("[%s] HARD release: open order cleared, paused %s", p.symbol, p.exec.ReconcilePause())
	return true
}

func (p *Processor) cancelAllQuiet() {
	if err := p.client.CancelAllOpenOrders(p.ctx, p.symbol); err != nil {
		logger.Warnf("[%s] cancel-all failed: %v", p.symbol, err)
	}
}

func (p *Processor) syncPositionFromExchange() {
	snap, err := p.client.GetPositionSnapshot(p.ctx, p.symbol)
	if err != nil {
		logger.Errorf("[%s] position sync failed: %v", p.symbol, err)
		return
	}
	if snap.Flat() {
		p.st.ResetPosition()
		return
	}
	p.st.Position.Side = snap.Side
	p.st.Position.Qty = snap.Qty
	if snap.EntryPrice > 0 {
		p.st.Position.EntryPrice = snap.EntryPrice
	}
}

func (p *Processor) handleOrderUpdate(u exchange.OrderUpdate) {
	st := p.st
	now := p.now()
	st.EnsureDay(now, p.loc)

	if st.Pending == nil || st.Pending.ClientID != u.ClientID {
		p.maybeRefreshEntryPrice(u)
		return
	}
	switch st.Pending.Kind {
	case PendingEntry:
		p.handleEntryUpdate(u, now)
	case PendingExit:
		p.handleExitUpdate(u, now)
	}
}

// maybeRefreshEntryPrice uses an unmatched same-direction fill on an open
// position to improve the remembered average entry.
func (p *Processor) maybeRefreshEntryPrice(u exchange.OrderUpdate) {
	if u.Status != exchange.StatusFilled && u.Status != exchange.StatusPartiallyFilled {
		return
	}
	if u.CumFilledQty <= 0 || u.AvgPrice <= 0 {
		return
	}
	pos := &p.st.Position
	if (pos.Side == exchange.PositionLong && u.Side == exchange.SideBuy) ||
		(pos.Side == exchange.PositionShort && u.Side == exchange.SideSell) {
		pos.EntryPrice = u.AvgPrice
	}
}

func (p *Processor) handleEntryUpdate(u exchange.OrderUpdate, now time.Time) {
	st := p.st
	pend := st.Pending

	if u.Status == exchange.StatusPartiallyFilled && u.CumFilledQty > 0 {
		// Optimistic open: exposure exists, pending stays set until terminal.
		st.Position.Side = sideFromOrder(u.Side)
		st.Position.Qty = u.CumFilledQty
		if u.AvgPrice > 0 {
			st.Position.EntryPrice = u.AvgPrice
		}
		st.Position.EntryMark = pend.MarkAtSubmit
		return
	}

	if u.Status == exchange.StatusFilled && u.CumFilledQty > 0 {
		st.Position.Side = sideFromOrder(u.Side)
		st.Position.Qty = u.CumFilledQty
		st.Position.EntryPrice = u.AvgPrice
		st.Position.EntryMark = pend.MarkAtSubmit

		st.TP1Hit = false
		st.TradesToday++
		st.LastEntryAt = now

		entryRef := st.Position.EntryRef()
		tp1, _ := targetPrice(entryRef, st.Position.Side, p.strat.TP1Pct)
		tp2, _ := targetPrice(entryRef, st.Position.Side, p.strat.TP2Pct)
		sl, _ := p.stopLossPrice(st.Position.Side)

		logger.Infof("[%s] ENTRY FILLED cid=%s side=%s entry=%.6f qty=%.8f",
			p.symbol, u.ClientID, st.Position.Side, entryRef, u.CumFilledQty)
		if p.perf != nil {
			p.perf.RecordEntry(EntryEvent{
				Symbol: p.symbol, Side: st.Position.Side,
				Entry: entryRef, Qty: u.CumFilledQty,
				TP1: tp1, TP2: tp2, SL: sl,
				ClientID: u.ClientID, At: now,
			})
		}
		st.Pending = nil
		return
	}

	if u.Status.Terminal() {
		logger.Infof("[%s] ENTRY terminal without fill cid=%s status=%s", p.symbol, u.ClientID, u.Status)
		if p.guards().ArmedEnabled {
			p.setArmed(pend.Side, false)
		}
		st.Pending = nil
	}
}

func (p *Processor) handleExitUpdate(u exchange.OrderUpdate, now time.Time) {
	st := p.st
	pend := st.Pending

	// Cumulative-delta accounting: the stream may repeat a cumulative total,
	// so only the positive delta against the last-seen value counts.
	delta := u.CumFilledQty - pend.CumFilled
	if delta > 0 {
		pend.CumFilled = u.CumFilledQty

		fillPx := u.LastFillPrice
		if fillPx <= 0 {
			fillPx = u.AvgPrice
		}
		entryRef := st.Position.EntryRef()

		var pnl float64
		if entryRef > 0 && fillPx > 0 {
			if st.Position.Side == exchange.PositionLong {
				pnl = (fillPx - entryRef) * delta
			} else {
				pnl = (entryRef - fillPx) * delta
			}
			st.DayRealizedPnL += pnl
			if pnl >= 0 {
				st.DayWins++
			} else {
				st.DayLosses++
			}
		}

		remaining := st.Position.Qty - delta
		if remaining < 0 {
			remaining = 0
		}
		st.Position.Qty = remaining

		if pend.Reason == ReasonTakeProfit {
			st.TP1Hit = true
		}

		metrics.ExitFills.WithLabelValues(p.symbol, string(pend.Reason)).Inc()
		logger.Infof("[%s] EXIT FILL cid=%s reason=%s mode=%s px=%.6f delta=%.8f pnl=%.4f remaining=%.8f",
			p.symbol, u.ClientID, pend.Reason, pend.Mode, fillPx, delta, pnl, remaining)
		if p.perf != nil {
			p.perf.RecordExit(ExitEvent{
				Symbol: p.symbol, Reason: pend.Reason, Mode: pend.Mode,
				Price: fillPx, Qty: delta, PnL: pnl,
				Remaining: remaining, Final: remaining <= 0,
				ClientID: u.ClientID, At: now,
			})
		}

		if remaining <= 0 {
			st.ResetPosition()
		}
		if pend.Reason == ReasonStopLoss {
			OnStopLoss(st, p.guards(), p.barDur, now)
			logger.Infof("[%s] stop-loss confirmed, cooldown until %s pause until %s",
				p.symbol, st.CooldownUntil.Format(time.RFC3339), st.PausedUntil.Format(time.RFC3339))
		}
	}

	if u.Status == exchange.StatusFilled {
		st.Pending = nil
		return
	}
	if u.Status.Terminal() {
		logger.Infof("[%s] EXIT terminal cid=%s status=%s cum=%.8f", p.symbol, u.ClientID, u.Status, u.CumFilledQty)
		st.Pending = nil
	}
}

// CancelOutstanding best-effort cancels the pending order and sweeps resting
// orders. Used at shutdown after the loop has stopped.
func (p *Processor) CancelOutstanding(ctx context.Context) {
	if pend := p.st.Pending; pend != nil && pend.ClientID != "" {
		if err := p.client.CancelOrder(ctx, p.symbol, pend.ClientID); err != nil {
			logger.Warnf("[%s] shutdown cancel failed cid=%s: %v", p.symbol, pend.ClientID, err)
		}
	}
	if err := p.client.CancelAllOpenOrders(ctx, p.symbol); err != nil {
		logger.Warnf("[%s] shutdown cancel-all failed: %v", p.symbol, err)
	}
}

// DaySummary reports the last published day tallies. Safe to call from any
// goroutine.
func (p *Processor) DaySummary() DayStats {
	if v, ok := p.daySnap.Load().(DayStats); ok {
		return v
	}
	return DayStats{}
}

func (p *Processor) setArmed(side exchange.PositionSide, v bool) {
	switch side {
	case exchange.PositionLong:
		p.st.ArmedLong = v
	case exchange.PositionShort:
		p.st.ArmedShort = v
	}
}

func (p *Processor) stopLossPrice(side exchange.PositionSide) (float64, bool) {
	b := p.st.Band
	if b == nil {
		return 0, false
	}
	switch side {
	case exchange.PositionLong:
		return b.Lower - p.strat.SLMult*b.Width, true
	case exchange.PositionShort:
		return b.Upper + p.strat.SLMult*b.Width, true
	}
	return 0, false
}

func stopHit(side exchange.PositionSide, mark, sl float64) bool {
	if side == exchange.PositionLong {
		return mark <= sl
	}
	return mark >= sl
}

func targetPrice(entry float64, side exchange.PositionSide, pct float64) (float64, bool) {
	if entry <= 0 || pct <= 0 {
		return 0, false
	}
	if side == exchange.PositionLong {
		return entry * (1 + pct), true
	}
	return entry * (1 - pct), true
}

func targetHit(side exchange.PositionSide, mark, target float64) bool {
	if side == exchange.PositionLong {
		return mark >= target
	}
	return mark <= target
}

func breakEvenHit(side exchange.PositionSide, mark, entry float64) bool {
	if side == exchange.PositionLong {
		return mark <= entry
	}
	return mark >= entry
}

func entrySide(side exchange.PositionSide) exchange.OrderSide {
	if side == exchange.PositionLong {
		return exchange.SideBuy
	}
	return exchange.SideSell
}

func sideFromOrder(s exchange.OrderSide) exchange.PositionSide {
	if s == exchange.SideBuy {
		return exchange.PositionLong
	}
	return exchange.PositionShort
}
