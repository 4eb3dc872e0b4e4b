// README: Session manager keeps one orchestrator per trip session and evicts idle ones.
package trip

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smartride/internal/types"
)

type Manager struct {
	cfg  Config
	deps Deps
	ttl  time.Duration

	mu       sync.RWMutex
	sessions map[types.ID]*Orchestrator
}

func NewManager(cfg Config, deps Deps, ttl time.Duration) *Manager {
	return &Manager{
		cfg:      cfg,
		deps:     deps.withDefaults(),
		ttl:      ttl,
		sessions: make(map[types.ID]*Orchestrator),
	}
}

func (m *Manager) Create() *Orchestrator {
	id := types.ID(uuid.NewString())
	o := New(id, m.cfg, m.deps)

	m.mu.Lock()
	m.sessions[id] = o
	n := len(m.sessions)
	m.mu.Unlock()

	m.deps.Metrics.SessionsActive(n)
	m.deps.Logger.Info("trip session created", zap.String("trip_id", string(id)))
	return o
}

func (m *Manager) Get(id types.ID) (*Orchestrator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *Manager) Close(id types.ID) error {
	m.mu.Lock()
	o, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	o.Close()
	m.deps.Metrics.SessionsActive(n)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RunJanitor evicts sessions idle for longer than the TTL until ctx is done,
// then closes every remaining session.
func (m *Manager) RunJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			if n := m.evictIdle(m.deps.Now()); n > 0 {
				m.deps.Logger.Info("evicted idle trip sessions", zap.Int("count", n))
			}
		}
	}
}

func (m *Manager) evictIdle(now time.Time) int {
	var stale []*Orchestrator
	m.mu.Lock()
	for id, o := range m.sessions {
		if now.Sub(o.IdleSince()) > m.ttl {
			stale = append(stale, o)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, o := range stale {
		o.Close()
	}
	if len(stale) > 0 {
		m.deps.Metrics.SessionsActive(n)
	}
	return len(stale)
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[types.ID]*Orchestrator)
	m.mu.Unlock()

	for _, o := range all {
		o.Close()
	}
	m.deps.Metrics.SessionsActive(0)
}
