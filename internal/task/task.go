// Package task tracks background tool invocations so the user can list and
// cancel work that outlives a single workflow step.
package task

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Summary is the user-facing view of one running task.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"startTime"`
	Status    string    `json:"status"`
	Ordinal   uint64    `json:"ordinal"`
	Prompt    string    `json:"originalPrompt"`
}

type entry struct {
	name    string
	start   time.Time
	ordinal uint64
	prompt  string
	cancel  context.CancelFunc
}

// Manager is the process-wide registry of running background tasks.
type Manager struct {
	mu      sync.Mutex
	tasks   map[string]*entry
	ordinal uint64
}

func NewManager() *Manager {
	return &Manager{tasks: make(map[string]*entry)}
}

// Add registers a running task and returns its ordinal. cancel aborts the
// task when the user asks for it.
func (m *Manager) Add(id, name, prompt string, cancel context.CancelFunc) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ordinal++
	m.tasks[id] = &entry{
		name:    name,
		start:   time.Now(),
		ordinal: m.ordinal,
		prompt:  prompt,
		cancel:  cancel,
	}
	return m.ordinal
}

// Remove forgets a finished task.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
}

// List returns running tasks in start order.
func (m *Manager) List() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0, len(m.tasks))
	for id, e := range m.tasks {
		out = append(out, Summary{
			ID:        id,
			Name:      e.name,
			StartTime: e.start,
			Status:    "Running",
			Ordinal:   e.ordinal,
			Prompt:    e.prompt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// Cancel aborts a task by id. Returns false when no such task is running.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	e, ok := m.tasks[id]
	delete(m.tasks, id)
	m.mu.Unlock()
	if ok {
		e.cancel()
	}
	return ok
}

// Len reports the number of running tasks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
