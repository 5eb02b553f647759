package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager keeps one State per dashboard session. States live in memory only
// and are gone when the process exits or after sitting idle past the TTL
// given to Sweep.
type Manager struct {
	policy ResetPolicy
	now    func() time.Time

	mu     sync.Mutex
	states map[uuid.UUID]*entry
}

type entry struct {
	state    *State
	lastUsed time.Time
}

func NewManager(policy ResetPolicy, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		policy: policy,
		now:    now,
		states: make(map[uuid.UUID]*entry),
	}
}

// New returns an empty State that is not registered. Read-only requests
// without a session use it so they never grow the session table.
func (m *Manager) New() *State {
	return New(m.policy, m.now)
}

// Create starts and registers a new empty session.
func (m *Manager) Create() *State {
	st := New(m.policy, m.now)
	m.mu.Lock()
	m.states[st.ID] = &entry{state: st, lastUsed: m.now()}
	m.mu.Unlock()
	return st
}

// Get looks up a session by id and marks it used.
func (m *Manager) Get(id uuid.UUID) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.states[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = m.now()
	return e.state, true
}

// Drop ends a session.
func (m *Manager) Drop(id uuid.UUID) {
	m.mu.Lock()
	delete(m.states, id)
	m.mu.Unlock()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// Sweep drops every session idle for longer than ttl and returns how many
// were dropped. A non-positive ttl keeps everything.
func (m *Manager) Sweep(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for id, e := range m.states {
		if e.lastUsed.Before(cutoff) {
			delete(m.states, id)
			dropped++
		}
	}
	return dropped
}

// Expire sweeps idle sessions every interval until ctx is done. After each
// sweep, onSweep (if set) receives the dropped and remaining counts.
func (m *Manager) Expire(ctx context.Context, ttl, interval time.Duration, onSweep func(dropped, remaining int)) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = max(min(ttl/4, time.Minute), time.Second)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dropped := m.Sweep(ttl)
			if onSweep != nil {
				onSweep(dropped, m.Len())
			}
		}
	}
}

// Policy is the reset policy new sessions are created with.
func (m *Manager) Policy() ResetPolicy {
	return m.policy
}
