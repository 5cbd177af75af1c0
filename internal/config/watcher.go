package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bandbot/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// GuardSnapshot is a versioned read-only copy of the guard section.
type GuardSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Guards   GuardsConfig
}

// GuardListener is called whenever the guard section changes on disk.
type GuardListener func(GuardSnapshot)

// GuardWatcher hot-reloads the guards section of the config file. Only guard
// toggles and limits are reloadable; everything else requires a restart.
type GuardWatcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  GuardSnapshot
	listeners []GuardListener
}

// NewGuardWatcher reads the config file and starts watching it for changes.
func NewGuardWatcher(path string) (*GuardWatcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("guard watcher requires a config path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config for guard watcher: %w", err)
	}
	w := &GuardWatcher{path: path, v: v}
	if err := w.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.v.ReadInConfig(); err != nil {
			logger.Errorf("guard reload read failed (%s): %v", evt.Name, err)
			return
		}
		if err := w.reload(); err != nil {
			logger.Errorf("guard reload failed (%s): %v", evt.Name, err)
			return
		}
		w.notify()
	})
	v.WatchConfig()
	return w, nil
}

// Snapshot returns the current guard configuration.
func (w *GuardWatcher) Snapshot() GuardSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// Subscribe registers a listener and immediately delivers the current snapshot.
func (w *GuardWatcher) Subscribe(fn GuardListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	snap := w.snapshot
	w.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("guard listener panic: %v", r)
			}
		}()
		fn(snap)
	}()
}

func (w *GuardWatcher) notify() {
	w.mu.RLock()
	snap := w.snapshot
	listeners := append([]GuardListener(nil), w.listeners...)
	w.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb GuardListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("guard listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (w *GuardWatcher) reload() error {
	cfg, keys, err := decode(w.v)
	if err != nil {
		return err
	}
	applyDefaults(cfg, keys)
	if cfg.Guards.CooldownBarsAfterSL < 0 {
		return fmt.Errorf("guards.cooldown_bars_after_sl must not be negative")
	}
	if cfg.Guards.KillSwitchEnabled && cfg.Guards.KillSwitch.MaxStops < 1 {
		return fmt.Errorf("guards.kill_switch.max_stops must be at least 1 when enabled")
	}
	w.mu.Lock()
	w.snapshot = GuardSnapshot{
		Version:  w.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Guards:   cfg.Guards,
	}
	version := w.snapshot.Version
	w.mu.Unlock()
	logger.Infof("Guard config reloaded (v%d) from %s", version, filepath.Base(w.path))
	return nil
}
