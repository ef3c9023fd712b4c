// Package toolserver implements the server side of the tool protocol:
// newline-delimited JSON-RPC 2.0 over TCP, with tool registration and
// server-initiated elicitation. It exists for demos and integration tests;
// production tool servers live in their own processes.
package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/mcp"
)

// Handler runs one tool call. The Call carries the raw arguments and lets
// the handler elicit structured input from the user mid-call.
type Handler func(ctx context.Context, call *Call) (string, error)

// Call is one in-flight tool invocation on one connection.
type Call struct {
	Args json.RawMessage
	conn *conn
}

// Elicit asks the connected client for structured input and blocks until
// the user answers, declines, cancels, or ctx expires.
func (c *Call) Elicit(ctx context.Context, message string, schema json.RawMessage) (mcp.ElicitationResult, error) {
	var result mcp.ElicitationResult
	raw, err := c.conn.request(ctx, "elicitation/create", mcp.ElicitationRequest{
		Message:         message,
		RequestedSchema: schema,
	})
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("toolserver: bad elicitation result: %w", err)
	}
	return result, nil
}

// Progress sends a progress notification to the client. Fire and forget.
func (c *Call) Progress(payload any) {
	c.conn.notify("notifications/progress", payload)
}

// Server serves tools to protocol clients.
type Server struct {
	name    string
	version string

	mu       sync.RWMutex
	tools    []mcp.Tool
	handlers map[string]Handler

	ln     net.Listener
	closed atomic.Bool
}

// New creates a server identified by name and version in the handshake.
func New(name, version string) *Server {
	return &Server{
		name:     name,
		version:  version,
		handlers: make(map[string]Handler),
	}
}

// Register adds a tool. Registering a name twice replaces the handler and
// keeps the first schema.
func (s *Server) Register(tool mcp.Tool, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[tool.Name]; !exists {
		s.tools = append(s.tools, tool)
	}
	s.handlers[tool.Name] = h
}

// Serve accepts connections on ln until Close.
func (s *Server) Serve(ln net.Listener) error {
	s.ln = ln
	log := logging.Component("toolserver")
	log.Info().Str("addr", ln.Addr().String()).Msg("serving tools")

	for {
		netConn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		c := &conn{server: s, netConn: netConn, pending: map[int64]chan wireMessage{}}
		go c.serve()
	}
}

// Close stops accepting. Open connections run to completion of the current
// line.
func (s *Server) Close() error {
	s.closed.Store(true)
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) handler(name string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[name]
	return h, ok
}

func (s *Server) listTools() []mcp.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]mcp.Tool(nil), s.tools...)
}

// wireMessage is the superset read off the wire. A Method means a client
// request or notification; otherwise it answers a server-issued request.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcp.JSONRPCError `json:"error,omitempty"`
}

type conn struct {
	server  *Server
	netConn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan wireMessage
}

func (c *conn) serve() {
	defer c.netConn.Close()
	defer c.failPending()

	scanner := bufio.NewScanner(c.netConn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var msg wireMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Method == "" {
			c.resolve(msg)
			continue
		}
		if msg.ID == 0 {
			// Notification, nothing to answer.
			continue
		}
		go c.handleRequest(msg)
	}
}

func (c *conn) handleRequest(msg wireMessage) {
	ctx := context.Background()
	switch msg.Method {
	case "initialize":
		c.respond(msg.ID, mcp.InitializeResponse{
			ProtocolVersion: mcp.ProtocolVersion,
			Capabilities:    mcp.ServerCapabilities{Tools: &mcp.ToolCapability{}},
			ServerInfo:      mcp.ServerInfo{Name: c.server.name, Version: c.server.version},
		}, nil)
	case "tools/list":
		c.respond(msg.ID, mcp.ListToolsResponse{Tools: c.server.listTools()}, nil)
	case "tools/call":
		var req mcp.CallToolRequest
		if err := json.Unmarshal(msg.Params, &req); err != nil {
			c.respond(msg.ID, nil, &mcp.JSONRPCError{Code: -32602, Message: "invalid params"})
			return
		}
		h, ok := c.server.handler(req.Name)
		if !ok {
			c.respond(msg.ID, nil, &mcp.JSONRPCError{Code: -32602, Message: "unknown tool: " + req.Name})
			return
		}
		text, err := h(ctx, &Call{Args: req.Arguments, conn: c})
		resp := mcp.CallToolResponse{Content: []mcp.Content{{Type: "text", Text: text}}}
		if err != nil {
			resp.Content = []mcp.Content{{Type: "text", Text: err.Error()}}
			resp.IsError = true
		}
		c.respond(msg.ID, resp, nil)
	default:
		c.respond(msg.ID, nil, &mcp.JSONRPCError{Code: -32601, Message: "method not found: " + msg.Method})
	}
}

// respond writes a response to a client request.
func (c *conn) respond(id int64, result any, rpcErr *mcp.JSONRPCError) {
	msg := map[string]any{"jsonrpc": "2.0", "id": id}
	if rpcErr != nil {
		msg["error"] = rpcErr
	} else {
		msg["result"] = result
	}
	c.write(msg)
}

// request issues a server-initiated request and waits for the reply.
func (c *conn) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan wireMessage, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(mcp.JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, errors.New("toolserver: connection closed")
		}
		if msg.Error != nil {
			return nil, fmt.Errorf("toolserver: %s: %s", method, msg.Error.Message)
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conn) notify(method string, params any) {
	c.write(map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
}

func (c *conn) resolve(msg wireMessage) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

func (c *conn) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *conn) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.netConn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("toolserver: write: %w", err)
	}
	return nil
}
