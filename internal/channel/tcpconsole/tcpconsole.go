// Package tcpconsole is a line-oriented TCP channel. Each connection gets
// its own session; replies are routed back to the connection that owns the
// session.
package tcpconsole

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/pkg/types"
)

// HandlerID is the routing id of the TCP output handler.
const HandlerID = "tcp"

// outboxSize bounds the per-peer write queue. A peer that stops reading
// loses events rather than stalling the fanout.
const outboxSize = 32

// Channel accepts TCP connections and bridges them onto the buses. One
// session per connection, keyed by the remote address.
type Channel struct {
	in *event.InputBus
	ln net.Listener

	mu    sync.Mutex
	peers map[string]chan string
}

// Listen binds the listener. Run must be called to start accepting.
func Listen(in *event.InputBus, addr string) (*Channel, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcpconsole: listen %s: %w", addr, err)
	}
	return &Channel{in: in, ln: ln, peers: make(map[string]chan string)}, nil
}

// Addr returns the bound listener address.
func (c *Channel) Addr() net.Addr {
	return c.ln.Addr()
}

// Run accepts connections until the listener is closed or ctx is cancelled.
func (c *Channel) Run(ctx context.Context) error {
	log := logging.Component("tcpconsole")
	log.Info().Str("addr", c.ln.Addr().String()).Msg("listening")

	go func() {
		<-ctx.Done()
		c.ln.Close()
	}()

	for {
		conn, err := c.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("tcpconsole: accept: %w", err)
		}
		go c.serve(ctx, conn)
	}
}

// Close shuts the listener down. Open connections drain on their own.
func (c *Channel) Close() error {
	return c.ln.Close()
}

// Emit routes one output event to the connection owning its session.
// Registered with the core as the "tcp" output handler.
func (c *Channel) Emit(ev types.OutputEvent) {
	c.mu.Lock()
	outbox, ok := c.peers[ev.SessionID]
	c.mu.Unlock()
	if !ok {
		logging.Component("tcpconsole").Debug().
			Str("session", ev.SessionID).
			Msg("no connection for session, dropping event")
		return
	}
	select {
	case outbox <- renderOutput(ev):
	default:
		logging.Component("tcpconsole").Warn().
			Str("session", ev.SessionID).
			Msg("peer outbox full, dropping event")
	}
}

func (c *Channel) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	sessionID := "tcp:" + conn.RemoteAddr().String()
	log := logging.Session("tcpconsole", sessionID)

	outbox := make(chan string, outboxSize)
	c.mu.Lock()
	c.peers[sessionID] = outbox
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.peers, sessionID)
		c.mu.Unlock()
	}()

	// Writer drains the outbox; a write failure ends the connection.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case line := <-outbox:
				if _, err := fmt.Fprintln(conn, line); err != nil {
					conn.Close()
					return
				}
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	log.Info().Msg("connected")
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		content, err := json.Marshal(map[string]string{"content": line})
		if err != nil {
			continue
		}
		c.in.Publish(types.InputEvent{
			Source:    "tcp",
			SessionID: sessionID,
			Content:   content,
		})
	}
	log.Info().Msg("disconnected")
}

// renderOutput formats an output event as one wire line.
func renderOutput(ev types.OutputEvent) string {
	switch ev.Kind {
	case types.OutputElicitation:
		if m, ok := ev.Content.(map[string]any); ok {
			if msg, ok := m["message"].(string); ok {
				return "? " + msg
			}
		}
		return fmt.Sprintf("? %v", ev.Content)
	case types.OutputError:
		return fmt.Sprintf("error: %v", ev.Content)
	default:
		if s, ok := ev.Content.(string); ok {
			return s
		}
		data, err := json.Marshal(ev.Content)
		if err != nil {
			return fmt.Sprintf("%v", ev.Content)
		}
		return string(data)
	}
}
