package core

import (
	"context"
	"sync"
	"time"

	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/pkg/types"
)

// DefaultIdleTimeout reaps session actors with no traffic for this long.
const DefaultIdleTimeout = 30 * time.Minute

// MemoryStore persists session memory between actor lifetimes. A reaped
// session that comes back picks up the memory it left behind.
type MemoryStore interface {
	LoadMemory(sessionID string) (map[string]string, error)
	SaveMemory(sessionID string, mem map[string]string) error
}

// Manager owns the session actors. Actors are created lazily on the first
// event for a session and reaped after the idle timeout.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	deps      sessionDeps
	inboxSize int
	onRetire  func(id string)
}

// NewManager builds a manager. deps.retire is installed by the manager
// itself.
func NewManager(cfg types.SessionConfig, deps sessionDeps) *Manager {
	m := &Manager{
		sessions:  make(map[string]*session),
		deps:      deps,
		inboxSize: cfg.InboxSize,
	}
	switch {
	case cfg.IdleTimeout.Std() > 0:
		m.deps.idleTimeout = cfg.IdleTimeout.Std()
	case cfg.IdleTimeout.Std() < 0:
		m.deps.idleTimeout = 0 // reaper disabled
	default:
		m.deps.idleTimeout = DefaultIdleTimeout
	}
	m.deps.retire = m.retire
	return m
}

// SetMemoryStore enables memory persistence. Must be called before the
// first Dispatch.
func (m *Manager) SetMemoryStore(store MemoryStore) {
	m.deps.store = store
}

// SetOnRetire installs a hook called whenever a session actor is retired.
// The tool client pool uses it to drop the session's client. Must be
// called before the first Dispatch.
func (m *Manager) SetOnRetire(fn func(id string)) {
	m.onRetire = fn
}

// Dispatch hands an event to its session actor, creating the actor if
// needed. It never blocks on a slow session; a full inbox drops the event
// with a warning. The enqueue happens under the manager lock so retire can
// drain a reaped actor's inbox without losing a racing event.
func (m *Manager) Dispatch(ctx context.Context, ev types.InputEvent) {
	id := ev.EffectiveSessionID()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	s, ok := m.sessions[id]
	if !ok {
		s = newSession(id, ev, m.inboxSize, m.deps)
		m.sessions[id] = s
		go s.run(ctx)
	}
	var dropped bool
	select {
	case s.inbox <- ev:
	default:
		dropped = true
	}
	m.mu.Unlock()

	if dropped {
		logging.Session("manager", id).Warn().Str("event", ev.ID).Msg("inbox full, dropping event")
	}
}

// retire removes a stopped actor. Events that raced into the inbox after
// the actor left its loop are re-dispatched, which recreates the session.
func (m *Manager) retire(ctx context.Context, id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	var pending []types.InputEvent
	if ok {
	drain:
		for {
			select {
			case ev, live := <-s.inbox:
				if !live {
					break drain
				}
				pending = append(pending, ev)
			default:
				break drain
			}
		}
	}
	closed := m.closed
	m.mu.Unlock()

	if m.onRetire != nil {
		m.onRetire(id)
	}
	if closed || ctx.Err() != nil {
		return
	}
	for _, ev := range pending {
		m.Dispatch(ctx, ev)
	}
}

// Len returns the number of live session actors.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close shuts down all actors by closing their inboxes.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, s := range sessions {
		close(s.inbox)
	}
}
