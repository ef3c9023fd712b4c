package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/agentd-ai/agentd/internal/logging"
)

// TransportError reports a tool-server connection failure that survived the
// single reconnect attempt. Callers match it with errors.As.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tool transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a JSON-RPC error returned by the tool server. It is a tool
// failure, not a transport failure, and is never retried.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("tool server error %d: %s", e.Code, e.Message)
}

// DialFunc opens a connection to the tool server.
type DialFunc func(ctx context.Context) (net.Conn, error)

// ClientConfig configures the tool protocol client.
type ClientConfig struct {
	// Addr is the TCP address of the tool server.
	Addr string
	// DialTimeout bounds a single connection attempt. Defaults to 5s.
	DialTimeout time.Duration
	// Dial overrides the dialer (tests use this). When nil, a TCP dialer
	// for Addr is used.
	Dial DialFunc
	// Handler answers server-initiated requests (elicitation).
	Handler RequestHandler
}

// Client is the tool protocol client. The connection is lazy: nothing is
// dialed until the first call needs it. On a connection-class failure the
// client reconnects and retries the call exactly once; a second failure
// surfaces as a TransportError.
type Client struct {
	config ClientConfig
	dial   DialFunc

	mu        sync.Mutex
	status    Status
	transport *TCPTransport
	tools     []Tool
}

// NewClient creates a client. No connection is made yet.
func NewClient(config ClientConfig) *Client {
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	dial := config.Dial
	if dial == nil {
		addr := config.Addr
		timeout := config.DialTimeout
		dial = func(ctx context.Context) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	return &Client{
		config: config,
		dial:   dial,
		status: StatusDisconnected,
	}
}

// Status returns the connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetHandler installs the handler for server-initiated requests. It applies
// to connections opened after the call.
func (c *Client) SetHandler(h RequestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Handler = h
}

// ensureConnected dials and performs the handshake if needed.
func (c *Client) ensureConnected(ctx context.Context) (*TCPTransport, error) {
	c.mu.Lock()
	if c.status == StatusConnected && c.transport != nil && !c.transport.IsClosed() {
		t := c.transport
		c.mu.Unlock()
		return t, nil
	}
	c.status = StatusConnecting
	handler := c.config.Handler
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.setDisconnected()
		return nil, err
	}

	transport := NewTCPTransport(conn, handler)

	initReq := InitializeRequest{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{Elicitation: &ElicitationCapability{}},
		ClientInfo:      ClientInfo{Name: "agentd", Version: "1.0.0"},
	}
	raw, err := transport.Send(ctx, "initialize", initReq)
	if err != nil {
		transport.Close()
		c.setDisconnected()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	var initResp InitializeResponse
	if err := json.Unmarshal(raw, &initResp); err != nil {
		transport.Close()
		c.setDisconnected()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if err := transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		transport.Close()
		c.setDisconnected()
		return nil, fmt.Errorf("initialized notification: %w", err)
	}

	logging.Component("toolclient").Info().
		Str("server", initResp.ServerInfo.Name).
		Str("version", initResp.ServerInfo.Version).
		Msg("connected to tool server")

	c.mu.Lock()
	c.transport = transport
	c.status = StatusConnected
	c.tools = nil // refresh on next ListTools
	c.mu.Unlock()

	return transport, nil
}

func (c *Client) setDisconnected() {
	c.mu.Lock()
	c.status = StatusDisconnected
	c.transport = nil
	c.mu.Unlock()
}

// connectionMarkers classify failures that warrant the single reconnect.
var connectionMarkers = []string{
	"connection closed",
	"connection reset",
	"connection refused",
	"broken pipe",
	"use of closed network connection",
	"EOF",
	"i/o timeout",
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var serr *ServerError
	if errors.As(err, &serr) {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	msg := err.Error()
	for _, marker := range connectionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// do sends one request with the reconnect-once policy. The first
// connection-class failure tears the connection down, redials, and retries
// the request. Any further failure is final.
func (c *Client) do(ctx context.Context, method string, params any) (json.RawMessage, error) {
	transport, err := c.ensureConnected(ctx)
	if err == nil {
		var result json.RawMessage
		result, err = transport.Send(ctx, method, params)
		if err == nil {
			return result, nil
		}
		if !isConnectionError(err) {
			return nil, err
		}
		transport.Close()
	} else if !isConnectionError(err) {
		return nil, err
	}

	logging.Component("toolclient").Warn().Err(err).Str("method", method).Msg("connection lost, reconnecting once")
	c.setDisconnected()

	transport, rerr := c.ensureConnected(ctx)
	if rerr != nil {
		return nil, &TransportError{Op: method, Err: rerr}
	}
	result, rerr := transport.Send(ctx, method, params)
	if rerr != nil {
		if isConnectionError(rerr) {
			transport.Close()
			c.setDisconnected()
			return nil, &TransportError{Op: method, Err: rerr}
		}
		return nil, rerr
	}
	return result, nil
}

// ListTools returns the tools exposed by the server, cached until the next
// reconnect.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	c.mu.Lock()
	if c.tools != nil {
		tools := c.tools
		c.mu.Unlock()
		return tools, nil
	}
	c.mu.Unlock()

	raw, err := c.do(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var resp ListToolsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	c.mu.Lock()
	c.tools = resp.Tools
	c.mu.Unlock()
	return resp.Tools, nil
}

// CallTool invokes a tool and returns its text output. Tool-level failures
// (IsError results, server errors) are returned as plain errors; transport
// failures that survive the reconnect arrive as *TransportError.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	raw, err := c.do(ctx, "tools/call", CallToolRequest{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}

	var resp CallToolResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("tools/call: %w", err)
	}

	var out strings.Builder
	for _, content := range resp.Content {
		if content.Type == "text" {
			out.WriteString(content.Text)
		}
	}
	if resp.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, out.String())
	}
	return out.String(), nil
}

// ToolSchema returns the input schema of one tool.
func (c *Client) ToolSchema(ctx context.Context, name string) (json.RawMessage, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tools {
		if t.Name == name {
			return t.InputSchema, nil
		}
	}
	return nil, fmt.Errorf("tool not found: %s", name)
}

// RequiredFields returns the required property names of a tool's input
// schema, in schema order.
func (c *Client) RequiredFields(ctx context.Context, name string) ([]string, error) {
	schema, err := c.ToolSchema(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(schema) == 0 {
		return nil, nil
	}
	var parsed struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return nil, fmt.Errorf("tool %s schema: %w", name, err)
	}
	return parsed.Required, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	transport := c.transport
	c.transport = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	if transport != nil {
		return transport.Close()
	}
	return nil
}
