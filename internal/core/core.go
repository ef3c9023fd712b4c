// Package core ties the runtime together: the dispatcher drains the input
// bus into per-session actors, each actor gates, plans and executes, and
// outputs fan out to the handlers the router resolves.
package core

import (
	"context"
	"sync"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/plan"
	"github.com/agentd-ai/agentd/internal/router"
	"github.com/agentd-ai/agentd/internal/workflow"
	"github.com/agentd-ai/agentd/pkg/types"
)

// OutputHandler delivers one output event to a channel adapter.
type OutputHandler func(types.OutputEvent)

// Core is the runtime assembly.
type Core struct {
	in     *event.InputBus
	out    *event.OutputBus
	router *router.Router

	mu       sync.RWMutex
	handlers map[string]OutputHandler

	manager  *Manager
	unsubIn  func()
	unsubOut func()
}

// New assembles a core. gate may be nil (always act); the executor and
// engine are required.
func New(in *event.InputBus, out *event.OutputBus, rt *router.Router, engine plan.Engine, executor *workflow.Executor, gate IntentGate, cfg types.SessionConfig) *Core {
	if gate == nil {
		gate = AlwaysAct{}
	}
	c := &Core{
		in:       in,
		out:      out,
		router:   rt,
		handlers: make(map[string]OutputHandler),
	}
	c.manager = NewManager(cfg, sessionDeps{
		in:       in,
		engine:   engine,
		executor: executor,
		gate:     gate,
		emit:     c.Emit,
	})
	return c
}

// Router exposes the route table for bind-time configuration.
func (c *Core) Router() *router.Router { return c.router }

// Manager exposes the session manager, mainly for tests and introspection.
func (c *Core) Manager() *Manager { return c.manager }

// AddHandler registers an output handler under an id. Routing decides which
// events it sees; an unbound handler participates in broadcast only.
func (c *Core) AddHandler(id string, h OutputHandler) {
	c.mu.Lock()
	c.handlers[id] = h
	c.mu.Unlock()
	c.router.Register(id)
}

// RemoveHandler unregisters a handler and its routes.
func (c *Core) RemoveHandler(id string) {
	c.mu.Lock()
	delete(c.handlers, id)
	c.mu.Unlock()
	c.router.Unbind(id)
}

// Emit publishes an output event to the bus. Handler fan-out happens on the
// bus subscription, so events published by other producers reach the
// channels the same way.
func (c *Core) Emit(ev types.OutputEvent) {
	c.out.Publish(ev)
}

// fanOut delivers one output event to the handlers the router resolves.
func (c *Core) fanOut(ev types.OutputEvent) {
	ids := c.router.Resolve(router.Route{Source: ev.Source, SessionID: ev.SessionID})
	if len(ids) == 0 {
		logging.Component("core").Debug().
			Str("source", ev.Source).
			Str("session", ev.SessionID).
			Msg("no output handlers, dropping event")
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range ids {
		if h, ok := c.handlers[id]; ok {
			h(ev)
		}
	}
}

// Start subscribes the dispatcher to the input bus and the handler fan-out
// to the output bus. Events flow until Stop or ctx cancellation.
func (c *Core) Start(ctx context.Context) {
	c.unsubIn = c.in.Subscribe(func(ev types.InputEvent) {
		c.manager.Dispatch(ctx, ev)
	})
	c.unsubOut = c.out.Subscribe(c.fanOut)
	logging.Component("core").Info().Msg("core started")
}

// Stop detaches from both buses and shuts down all session actors.
func (c *Core) Stop() {
	if c.unsubIn != nil {
		c.unsubIn()
		c.unsubIn = nil
	}
	if c.unsubOut != nil {
		c.unsubOut()
		c.unsubOut = nil
	}
	c.manager.Close()
	logging.Component("core").Info().Msg("core stopped")
}
