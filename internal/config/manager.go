package config

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"

	"clientdesk/pkg/logx"
)

// Manager owns the committed configuration. Readers take the committed
// pointer via Get and never see a half-applied state: reloads decode,
// validate, and only then swap the pointer and notify subscribers.
type Manager struct {
	path string
	log  logx.Logger

	mu      sync.RWMutex
	current *Config
	sum     uint64 // fingerprint of the committed config

	subMu sync.Mutex
	subs  map[chan *Config]struct{}

	validate func(ctx context.Context, cfg *Config) error
}

func NewManager(path string) *Manager {
	return &Manager{
		path: path,
		log:  logx.Nop(),
		subs: make(map[chan *Config]struct{}),
	}
}

func (m *Manager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

// SetValidator installs the hook Watch runs before committing a reload.
// The initial Load does not run it; the caller validates that one itself
// and can fail startup loudly instead of logging and carrying on.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validate = fn
}

// Parse decodes the file without committing it.
func (m *Manager) Parse() (*Config, error) {
	return decodeFile(m.path)
}

// Load decodes the file and commits it as the current config.
func (m *Manager) Load() (*Config, error) {
	cfg, err := decodeFile(m.path)
	if err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) commit(cfg *Config) {
	sum := fingerprint(cfg)
	m.mu.Lock()
	m.current = cfg
	m.sum = sum
	m.mu.Unlock()
}

// fingerprint hashes the decoded config, not the file bytes, so comment
// and whitespace edits do not count as changes. Zero means "unhashable"
// and never matches.
func fingerprint(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

// Subscribe returns a channel that receives each committed reload. The
// channel stays open until Unsubscribe.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

// publish delivers cfg to every subscriber. A full buffer sheds its oldest
// entry first: a slow subscriber that wakes up should apply the newest
// config, not replay a backlog. Holding subMu keeps the send ordered
// against a concurrent Unsubscribe close.
func (m *Manager) publish(cfg *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped, subscriber stalled",
				logx.Int("queue_cap", cap(ch)))
		}
	}
}
