// Package stream supervises a single websocket subscription: it redials on
// drop with capped exponential backoff, and a watchdog forces a reconnect
// when the feed goes silent even though the socket still looks open.
package stream

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"bandbot/internal/logger"
)

// State describes the supervisor's view of the connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnectScheduled
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnectScheduled:
		return "RECONNECT_SCHEDULED"
	}
	return "UNKNOWN"
}

// DialFunc opens the subscription. It matches the go-binance serve functions:
// doneC closes when the session ends, closing stopC tears the session down.
type DialFunc func() (doneC, stopC chan struct{}, err error)

// Config tunes the supervisor. Zero fields fall back to sane values.
type Config struct {
	Name          string
	Stale         time.Duration // silence on the feed before forcing a redial
	WatchdogEvery time.Duration
	InitialDelay  time.Duration
	MaxBackoff    time.Duration

	OnStateChange func(State)
}

// Conn supervises one subscription for its whole lifetime. At most one
// reconnect timer is ever armed; a redial triggered while one is scheduled
// is a no-op.
type Conn struct {
	cfg  Config
	dial DialFunc

	mu       sync.Mutex
	state    State
	delay    time.Duration
	stopC    chan struct{}
	timer    *time.Timer
	alive    bool
	watchers sync.WaitGroup

	lastMsgNano atomic.Int64
	rng         *rand.Rand
}

// NewConn builds a supervisor around dial without connecting yet.
func NewConn(cfg Config, dial DialFunc) *Conn {
	if cfg.Name == "" {
		cfg.Name = "stream"
	}
	if cfg.Stale <= 0 {
		cfg.Stale = 20 * time.Second
	}
	if cfg.WatchdogEvery <= 0 {
		cfg.WatchdogEvery = 5 * time.Second
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Conn{
		cfg:  cfg,
		dial: dial,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start connects and begins supervising until ctx ends or Close is called.
func (c *Conn) Start(ctx context.Context) {
	c.mu.Lock()
	if c.alive {
		c.mu.Unlock()
		return
	}
	c.alive = true
	c.delay = c.cfg.InitialDelay
	c.mu.Unlock()

	c.MessageReceived()
	c.connect()

	c.watchers.Add(1)
	go c.runWatchdog(ctx)

	go func() {
		<-ctx.Done()
		c.Close()
	}()
}

// Close tears down the current session and cancels any scheduled reconnect.
func (c *Conn) Close() {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.alive = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	stopC := c.stopC
	c.stopC = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if stopC != nil {
		close(stopC)
	}
	c.watchers.Wait()
}

// MessageReceived marks the feed as live. Stream handlers must call it for
// every inbound frame so the watchdog can tell silence from a slow market.
func (c *Conn) MessageReceived() {
	c.lastMsgNano.Store(time.Now().UnixNano())
}

// State returns the supervisor's current state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) connect() {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	doneC, stopC, err := c.dial()
	if err != nil {
		logger.Warnf("[%s] dial failed: %v", c.cfg.Name, err)
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		close(stopC)
		return
	}
	c.stopC = stopC
	c.delay = c.cfg.InitialDelay
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.MessageReceived()
	logger.Infof("[%s] connected", c.cfg.Name)

	go func() {
		<-doneC
		c.mu.Lock()
		if c.stopC == stopC {
			c.stopC = nil
		}
		alive := c.alive
		c.mu.Unlock()
		if !alive {
			return
		}
		logger.Warnf("[%s] session ended, scheduling reconnect", c.cfg.Name)
		c.scheduleReconnect()
	}()
}

// scheduleReconnect arms the single reconnect timer with the next backoff
// delay plus jitter. If a timer is already armed it does nothing.
func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive || c.timer != nil {
		return
	}
	d := c.delay
	c.delay *= 2
	if c.delay > c.cfg.MaxBackoff {
		c.delay = c.cfg.MaxBackoff
	}
	jitter := time.Duration(c.rng.Int63n(int64(d)/4 + 1))
	d += jitter
	c.setStateLocked(StateReconnectScheduled)
	logger.Infof("[%s] reconnect in %s", c.cfg.Name, d.Truncate(time.Millisecond))
	c.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		c.timer = nil
		alive := c.alive
		c.mu.Unlock()
		if alive {
			c.connect()
		}
	})
}

func (c *Conn) runWatchdog(ctx context.Context) {
	defer c.watchers.Done()
	ticker := time.NewTicker(c.cfg.WatchdogEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		alive := c.alive
		connected := c.state == StateConnected
		stopC := c.stopC
		c.mu.Unlock()
		if !alive {
			return
		}
		if !connected || stopC == nil {
			continue
		}
		silent := time.Since(time.Unix(0, c.lastMsgNano.Load()))
		if silent < c.cfg.Stale {
			continue
		}
		logger.Warnf("[%s] no data for %s, forcing reconnect", c.cfg.Name, silent.Truncate(time.Second))
		c.mu.Lock()
		if c.stopC == stopC {
			c.stopC = nil
		}
		c.mu.Unlock()
		// Closing stopC ends the session; doneC closing drives the redial.
		close(stopC)
	}
}

func (c *Conn) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.cfg.OnStateChange != nil {
		cb := c.cfg.OnStateChange
		go cb(s)
	}
}
