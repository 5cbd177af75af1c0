package trader

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"bandbot/internal/config"
	"bandbot/internal/exchange"
)

// EngineParams carries everything needed to build the per-symbol processors.
type EngineParams struct {
	Symbols     []string
	Client      exchange.ControlClient
	Strategy    config.StrategyConfig
	Sizing      config.SizingConfig
	Exec        config.ExecConfig
	Guards      config.GuardsConfig
	BarDuration time.Duration
	Location    *time.Location
	Perf        PerfSink
	Now         func() time.Time
}

// Engine is the explicit registry of per-symbol processors. Built once at
// startup with the fixed symbol list, torn down only at shutdown. Stream
// callbacks enter here and are routed by symbol; events for unknown symbols
// are dropped.
type Engine struct {
	procs  map[string]*Processor
	guards atomic.Pointer[config.GuardsConfig]
}

func NewEngine(p EngineParams) *Engine {
	e := &Engine{procs: make(map[string]*Processor, len(p.Symbols))}
	g := p.Guards
	e.guards.Store(&g)
	for _, sym := range p.Symbols {
		sym = strings.ToUpper(sym)
		e.procs[sym] = NewProcessor(ProcessorParams{
			Symbol:      sym,
			Client:      p.Client,
			Strategy:    p.Strategy,
			Sizing:      p.Sizing,
			Exec:        p.Exec,
			Guards:      e.CurrentGuards,
			BarDuration: p.BarDuration,
			Location:    p.Location,
			Perf:        p.Perf,
			Now:         p.Now,
		})
	}
	return e
}

// CurrentGuards returns the latest guard snapshot; hot reload swaps it.
func (e *Engine) CurrentGuards() config.GuardsConfig {
	return *e.guards.Load()
}

// SetGuards publishes a new guard configuration to all processors.
func (e *Engine) SetGuards(g config.GuardsConfig) {
	e.guards.Store(&g)
}

// Processor returns the processor for a symbol, or nil.
func (e *Engine) Processor(symbol string) *Processor {
	return e.procs[strings.ToUpper(symbol)]
}

// Each visits every processor.
func (e *Engine) Each(fn func(*Processor)) {
	for _, p := range e.procs {
		fn(p)
	}
}

func (e *Engine) Start(ctx context.Context) {
	for _, p := range e.procs {
		p.Start(ctx)
	}
}

func (e *Engine) Stop() {
	for _, p := range e.procs {
		p.Stop()
	}
}

// CancelOutstanding sweeps pending and resting orders for every symbol,
// tolerating individual failures. Called after Stop.
func (e *Engine) CancelOutstanding(ctx context.Context) {
	for _, p := range e.procs {
		p.CancelOutstanding(ctx)
	}
}

func (e *Engine) HandleMark(ev exchange.MarkPriceEvent) {
	if p := e.Processor(ev.Symbol); p != nil {
		p.OfferMark(ev)
	}
}

func (e *Engine) HandleClosedBar(b exchange.ClosedBar) {
	if p := e.Processor(b.Symbol); p != nil {
		p.OfferBar(b)
	}
}

func (e *Engine) HandleOrderUpdate(u exchange.OrderUpdate) {
	if p := e.Processor(u.Symbol); p != nil {
		p.OfferUpdate(u)
	}
}
