// Package app is the composition root: it builds the exchange client, the
// per-symbol trading engine, the stream supervisors and the guard hot-reload
// watcher, then runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/sync/errgroup"

	"bandbot/internal/config"
	"bandbot/internal/gateway/binance"
	"bandbot/internal/logger"
	"bandbot/internal/metrics"
	"bandbot/internal/notifier"
	"bandbot/internal/perf"
	"bandbot/internal/trader"
)

// App owns every long-lived component of the bot.
type App struct {
	cfg     *config.Config
	cfgPath string
	loc     *time.Location

	client *binance.Client
	engine *trader.Engine
	perf   *perf.Recorder

	listenKey atomic.Value // string
}

// New builds the application without starting anything.
func New(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	loc, err := time.LoadLocation(cfg.App.DayTimezone)
	if err != nil {
		return nil, fmt.Errorf("day timezone: %w", err)
	}

	if cfg.Market.Proxy.Enabled && cfg.Market.Proxy.WSURL != "" {
		futures.SetWsProxyUrl(cfg.Market.Proxy.WSURL)
	}

	client, err := binance.NewClient(cfg.Market)
	if err != nil {
		return nil, err
	}

	var notifiers []perf.Notifier
	if cfg.Notify.Telegram.Enabled {
		notifiers = append(notifiers, notifier.NewTelegram(cfg.Notify.Telegram))
	}
	recorder := perf.NewRecorder(loc, notifiers...)

	engine := trader.NewEngine(trader.EngineParams{
		Symbols:     cfg.Strategy.Symbols,
		Client:      client,
		Strategy:    cfg.Strategy,
		Sizing:      cfg.Sizing,
		Exec:        cfg.Exec,
		Guards:      cfg.Guards,
		BarDuration: cfg.BarDuration(),
		Location:    loc,
		Perf:        recorder,
	})

	return &App{
		cfg:     cfg,
		cfgPath: cfgPath,
		loc:     loc,
		client:  client,
		engine:  engine,
		perf:    recorder,
	}, nil
}

// Run bootstraps the symbols, opens the streams and blocks until ctx is
// cancelled or a fatal component error occurs.
func (a *App) Run(ctx context.Context) error {
	if err := a.bootstrapSymbols(ctx); err != nil {
		return err
	}

	key, err := a.client.StartUserStream(ctx)
	if err != nil {
		return fmt.Errorf("start user stream: %w", err)
	}
	a.listenKey.Store(key)

	watcher, err := config.NewGuardWatcher(a.cfgPath)
	if err != nil {
		return fmt.Errorf("guard watcher: %w", err)
	}
	watcher.Subscribe(func(snap config.GuardSnapshot) {
		a.engine.SetGuards(snap.Guards)
	})

	if a.cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(a.cfg.Metrics.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("metrics server: %v", err)
			}
		}()
	}

	a.engine.Start(ctx)
	conns := a.buildConns()
	for _, c := range conns {
		c.Start(ctx)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.runKeepAlive(ctx) })
	group.Go(func() error { return a.runDaySummary(ctx) })

	err = group.Wait()

	for _, c := range conns {
		c.Close()
	}
	a.engine.Stop()

	// Orders left on the book after shutdown would fill unsupervised.
	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	a.engine.CancelOutstanding(cancelCtx)
	cancel()

	a.perf.LogTotals()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// bootstrapSymbols prepares each symbol before any stream event is handled:
// trading rules, isolated margin, leverage, a clean order book, and the
// current position (the bot may have been restarted mid-trade).
func (a *App) bootstrapSymbols(ctx context.Context) error {
	for _, symbol := range a.cfg.Strategy.Symbols {
		proc := a.engine.Processor(symbol)
		if proc == nil {
			return fmt.Errorf("no processor for %s", symbol)
		}

		rules, err := a.client.GetSymbolRules(ctx, symbol)
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", symbol, err)
		}
		proc.SetRules(rules)

		if err := a.client.SetIsolatedMargin(ctx, symbol); err != nil {
			return fmt.Errorf("bootstrap %s: %w", symbol, err)
		}
		if err := a.client.SetLeverage(ctx, symbol, a.cfg.Sizing.Leverage); err != nil {
			return fmt.Errorf("bootstrap %s: %w", symbol, err)
		}
		a.sweepOpenOrders(ctx, symbol)

		snap, err := a.client.GetPositionSnapshot(ctx, symbol)
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", symbol, err)
		}
		proc.SeedPosition(snap)
		if !snap.Flat() {
			logger.Warnf("[BOOT] %s resuming with open position side=%s qty=%v entry=%v",
				symbol, snap.Side, snap.Qty, snap.EntryPrice)
		}

		logger.Infof("[BOOT] %s ready (leverage x%d, isolated)", symbol, a.cfg.Sizing.Leverage)
	}
	return nil
}

// sweepOpenOrders clears leftovers from a previous run, cancelling each
// resting order individually so every failure is attributable. A failed
// listing falls back to the bulk sweep.
func (a *App) sweepOpenOrders(ctx context.Context, symbol string) {
	orders, err := a.client.ListOpenOrders(ctx, symbol)
	if err != nil {
		logger.Warnf("[BOOT] list open orders %s: %v", symbol, err)
		if err := a.client.CancelAllOpenOrders(ctx, symbol); err != nil {
			logger.Warnf("[BOOT] cancel open orders %s: %v", symbol, err)
		}
		return
	}
	for _, o := range orders {
		if o.ClientID == "" {
			continue
		}
		if err := a.client.CancelOrder(ctx, symbol, o.ClientID); err != nil {
			logger.Warnf("[BOOT] cancel order %s %s: %v", symbol, o.ClientID, err)
		}
	}
	if len(orders) > 0 {
		logger.Infof("[BOOT] %s cleared %d stale open orders", symbol, len(orders))
	}
}

func (a *App) currentListenKey() string {
	if v, ok := a.listenKey.Load().(string); ok {
		return v
	}
	return ""
}

// rotateListenKey fetches a fresh key after the exchange expired the old one.
// The user stream supervisor resolves the key on every redial, so storing the
// new value is enough.
func (a *App) rotateListenKey(ctx context.Context) {
	key, err := a.client.StartUserStream(ctx)
	if err != nil {
		logger.Errorf("listen key rotate failed: %v", err)
		return
	}
	a.listenKey.Store(key)
	logger.Infof("listen key rotated")
}

// runKeepAlive pings the user stream on the exchange's recommended cadence.
// Consecutive failures beyond the limit are fatal: without a live listen key
// the bot is blind to its own fills.
func (a *App) runKeepAlive(ctx context.Context) error {
	interval := a.cfg.UserStream.KeepAliveInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fails := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := a.client.KeepAliveUserStream(ctx, a.currentListenKey())
			if err == nil {
				fails = 0
				continue
			}
			fails++
			logger.Errorf("user stream keepalive failed (%d/%d): %v",
				fails, a.cfg.UserStream.MaxKeepAliveFails, err)
			a.rotateListenKey(ctx)
			if fails >= a.cfg.UserStream.MaxKeepAliveFails {
				return fmt.Errorf("user stream keepalive failed %d times: %w", fails, err)
			}
		}
	}
}

// runDaySummary logs each symbol's day tallies every five minutes.
func (a *App) runDaySummary(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.engine.Each(func(p *trader.Processor) {
				s := p.DaySummary()
				if s.Key == "" {
					return
				}
				logger.Infof("[SUMMARY] %s %s trades=%d pnl=%.6f W=%d L=%d",
					p.Symbol(), s.Key, s.Trades, s.PnL, s.Wins, s.Losses)
			})
		}
	}
}
