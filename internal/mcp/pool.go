package mcp

import (
	"sync"

	"github.com/agentd-ai/agentd/internal/logging"
)

// Pool hands out one tool protocol client per session. Server-initiated
// requests arriving on a session's connection are answered by that
// session's elicitation handler, so one session waiting on a prompt never
// blocks another session's tool calls.
type Pool struct {
	config   ClientConfig
	elicitor *Elicitor

	mu      sync.Mutex
	clients map[string]*Client
	base    *Client
	closed  bool
}

// NewPool creates a pool. config.Handler is ignored; each client gets a
// handler scoped to its session. elicitor may be nil, in which case
// server requests are rejected.
func NewPool(config ClientConfig, elicitor *Elicitor) *Pool {
	return &Pool{
		config:   config,
		elicitor: elicitor,
		clients:  make(map[string]*Client),
	}
}

// ClientFor returns the session's client, creating it on first use.
func (p *Pool) ClientFor(sessionID, source string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if c, ok := p.clients[sessionID]; ok {
		return c
	}

	cfg := p.config
	if p.elicitor != nil {
		cfg.Handler = p.elicitor.HandlerFor(sessionID, source)
	}
	c := NewClient(cfg)
	p.clients[sessionID] = c
	logging.Session("toolpool", sessionID).Debug().Msg("tool client created")
	return c
}

// Base returns a session-less client for catalog lookups (tool listing,
// schemas). It never receives server requests because it never runs tool
// calls.
func (p *Pool) Base() *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base == nil {
		cfg := p.config
		cfg.Handler = nil
		p.base = NewClient(cfg)
	}
	return p.base
}

// Release closes and forgets the session's client. Called when the session
// is retired.
func (p *Pool) Release(sessionID string) {
	p.mu.Lock()
	c, ok := p.clients[sessionID]
	delete(p.clients, sessionID)
	p.mu.Unlock()
	if ok {
		c.Close()
		if p.elicitor != nil {
			p.elicitor.Forget(sessionID)
		}
		logging.Session("toolpool", sessionID).Debug().Msg("tool client released")
	}
}

// Len reports the number of live session clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close closes every client in the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	clients := p.clients
	base := p.base
	p.clients = make(map[string]*Client)
	p.base = nil
	p.closed = true
	p.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	if base != nil {
		base.Close()
	}
}
