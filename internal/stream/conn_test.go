package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	mu       sync.Mutex
	sessions []chan struct{} // doneC per dial
	failures int32           // dials to fail before succeeding
	dials    atomic.Int32
}

func (f *fakeDialer) dial() (chan struct{}, chan struct{}, error) {
	f.dials.Add(1)
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, nil, assertErr{}
	}
	doneC := make(chan struct{})
	stopC := make(chan struct{})
	go func() {
		<-stopC
		close(doneC)
	}()
	f.mu.Lock()
	f.sessions = append(f.sessions, doneC)
	f.mu.Unlock()
	return doneC, stopC, nil
}

func (f *fakeDialer) dropCurrent() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := len(f.sessions); n > 0 {
		close(f.sessions[n-1])
		f.sessions = f.sessions[:n-1]
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "dial refused" }

func waitState(t *testing.T, c *Conn, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, still %s", want, c.State())
}

func TestConnConnectsAndReports(t *testing.T) {
	d := &fakeDialer{}
	c := NewConn(Config{Name: "test", InitialDelay: 10 * time.Millisecond}, func() (chan struct{}, chan struct{}, error) {
		return d.dial()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	waitState(t, c, StateConnected)
	assert.Equal(t, int32(1), d.dials.Load())
	c.Close()
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnRetriesFailedDials(t *testing.T) {
	d := &fakeDialer{failures: 2}
	c := NewConn(Config{
		Name:         "test",
		InitialDelay: 5 * time.Millisecond,
		MaxBackoff:   20 * time.Millisecond,
	}, func() (chan struct{}, chan struct{}, error) { return d.dial() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	waitState(t, c, StateConnected)
	require.GreaterOrEqual(t, d.dials.Load(), int32(3))
	c.Close()
}

func TestConnReconnectsAfterDrop(t *testing.T) {
	d := &fakeDialer{}
	c := NewConn(Config{Name: "test", InitialDelay: 5 * time.Millisecond},
		func() (chan struct{}, chan struct{}, error) { return d.dial() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	waitState(t, c, StateConnected)

	d.dropCurrent()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && d.dials.Load() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	require.GreaterOrEqual(t, d.dials.Load(), int32(2), "drop must trigger a redial")
	waitState(t, c, StateConnected)
	c.Close()
}

func TestConnWatchdogForcesRedialOnSilence(t *testing.T) {
	d := &fakeDialer{}
	c := NewConn(Config{
		Name:          "test",
		Stale:         40 * time.Millisecond,
		WatchdogEvery: 10 * time.Millisecond,
		InitialDelay:  5 * time.Millisecond,
	}, func() (chan struct{}, chan struct{}, error) { return d.dial() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	waitState(t, c, StateConnected)

	// No MessageReceived calls: the feed is silent and must be redialed.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && d.dials.Load() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, d.dials.Load(), int32(2))
	c.Close()
}

func TestConnMessageReceivedKeepsSessionAlive(t *testing.T) {
	d := &fakeDialer{}
	c := NewConn(Config{
		Name:          "test",
		Stale:         60 * time.Millisecond,
		WatchdogEvery: 10 * time.Millisecond,
		InitialDelay:  5 * time.Millisecond,
	}, func() (chan struct{}, chan struct{}, error) { return d.dial() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	waitState(t, c, StateConnected)

	stop := time.After(250 * time.Millisecond)
feed:
	for {
		select {
		case <-stop:
			break feed
		case <-time.After(15 * time.Millisecond):
			c.MessageReceived()
		}
	}
	assert.Equal(t, int32(1), d.dials.Load(), "live feed must not be redialed")
	c.Close()
}

func TestConnCloseStopsReconnects(t *testing.T) {
	d := &fakeDialer{failures: 1000}
	c := NewConn(Config{Name: "test", InitialDelay: 5 * time.Millisecond, MaxBackoff: 10 * time.Millisecond},
		func() (chan struct{}, chan struct{}, error) { return d.dial() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	c.Close()
	n := d.dials.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, d.dials.Load(), "no dials after Close")
}
