package config

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"clientdesk/pkg/logx"
)

const (
	// Editors write in bursts (truncate, write, chmod, rename); reloads
	// wait out the burst instead of decoding partial files.
	watchDebounce = 250 * time.Millisecond

	watchBackoffMin = 250 * time.Millisecond
	watchBackoffMax = 5 * time.Second

	validateTimeout = 5 * time.Second
)

// Watch reloads the config file on filesystem events until ctx ends.
// The parent directory is watched rather than the file itself, so
// atomic-save editors that replace the inode stay covered. A broken
// watcher is rebuilt with jittered backoff.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	name := filepath.Base(m.path)
	delay := watchBackoffMin

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				w.Close()
			}
		}
		if err != nil {
			m.log.Warn("config watch unavailable", logx.String("dir", dir), logx.Err(err))
			if !sleepCtx(ctx, withJitter(delay)) {
				return nil
			}
			delay = nextBackoff(delay)
			continue
		}

		delay = watchBackoffMin
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", name))
		m.consumeEvents(ctx, w, name)
		w.Close()
		if ctx.Err() != nil {
			return nil
		}

		m.log.Warn("config watcher stopped, rebuilding", logx.String("dir", dir))
		if !sleepCtx(ctx, withJitter(delay)) {
			return nil
		}
		delay = nextBackoff(delay)
	}
	return nil
}

// consumeEvents drains one watcher until it breaks or ctx ends.
func (m *Manager) consumeEvents(ctx context.Context, w *fsnotify.Watcher, name string) {
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			// Match by basename; event paths may be absolute or relative.
			if !strings.EqualFold(filepath.Base(ev.Name), name) {
				continue
			}
			pending = time.After(watchDebounce)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "overflow") {
				// Events were lost; reload once rather than guess which.
				pending = time.After(watchDebounce)
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
			if strings.Contains(msg, "closed") {
				return
			}

		case <-pending:
			pending = nil
			m.reload(ctx)
		}
	}
}

// reload decodes, dedupes, validates, and commits one file change.
func (m *Manager) reload(ctx context.Context) {
	cfg, err := decodeFile(m.path)
	if err != nil {
		m.log.Warn("config reload failed", logx.String("path", m.path), logx.Err(err))
		return
	}

	sum := fingerprint(cfg)
	m.mu.RLock()
	unchanged := sum != 0 && sum == m.sum
	m.mu.RUnlock()
	if unchanged {
		return
	}

	if m.validate != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validate(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config change rejected", logx.String("path", m.path), logx.Err(err))
			return
		}
	}

	m.commit(cfg)
	m.publish(cfg)
	m.log.Debug("config reloaded", logx.String("path", m.path))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func withJitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d/2)+1))
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > watchBackoffMax {
		return watchBackoffMax
	}
	return d
}
