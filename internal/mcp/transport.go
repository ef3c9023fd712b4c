package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/agentd-ai/agentd/internal/logging"
)

// RequestHandler answers a server-initiated request. The returned value is
// marshaled as the JSON-RPC result; a non-nil error becomes a JSON-RPC
// error response.
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (any, error)

// TCPTransport speaks newline-delimited JSON-RPC 2.0 over one TCP
// connection. Responses are routed to pending calls by id; messages with a
// method are server-initiated requests dispatched to the handler.
type TCPTransport struct {
	conn    net.Conn
	reader  *bufio.Reader
	handler RequestHandler

	// ctx is handed to server request handlers and cancelled when the
	// connection dies, so a handler waiting on user input does not
	// outlive the call that asked for it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan *JSONRPCResponse
	closed  bool
	closeMu sync.RWMutex
}

// NewTCPTransport wraps an established connection. The handler may be nil,
// in which case server requests get a method-not-found error.
func NewTCPTransport(conn net.Conn, handler RequestHandler) *TCPTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &TCPTransport{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[int64]chan *JSONRPCResponse),
	}
	go t.readLoop()
	return t
}

// readLoop reads messages from the server.
func (t *TCPTransport) readLoop() {
	for {
		t.closeMu.RLock()
		if t.closed {
			t.closeMu.RUnlock()
			return
		}
		t.closeMu.RUnlock()

		line, err := t.reader.ReadBytes('\n')
		if err != nil {
			t.closeMu.Lock()
			t.closed = true
			// Close all pending channels
			t.mu.Lock()
			for _, ch := range t.pending {
				close(ch)
			}
			t.pending = make(map[int64]chan *JSONRPCResponse)
			t.mu.Unlock()
			t.closeMu.Unlock()
			t.cancel()
			return
		}

		var msg jsonRPCMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue // Skip invalid JSON
		}

		if msg.Method != "" {
			go t.dispatchServerRequest(&msg)
			continue
		}

		if msg.ID != 0 {
			t.mu.Lock()
			if ch, ok := t.pending[msg.ID]; ok {
				ch <- &JSONRPCResponse{
					JSONRPC: msg.JSONRPC,
					ID:      msg.ID,
					Result:  msg.Result,
					Error:   msg.Error,
				}
				delete(t.pending, msg.ID)
			}
			t.mu.Unlock()
		}
	}
}

// dispatchServerRequest runs the handler and writes the response. A message
// with no id is a notification and gets no response.
func (t *TCPTransport) dispatchServerRequest(msg *jsonRPCMessage) {
	if msg.ID == 0 {
		if t.handler != nil {
			_, _ = t.handler(t.ctx, msg.Method, msg.Params)
		}
		return
	}

	resp := JSONRPCResponse{JSONRPC: "2.0", ID: msg.ID}
	if t.handler == nil {
		resp.Error = &JSONRPCError{Code: -32601, Message: fmt.Sprintf("method not found: %s", msg.Method)}
	} else {
		result, err := t.handler(t.ctx, msg.Method, msg.Params)
		if err != nil {
			resp.Error = &JSONRPCError{Code: -32000, Message: err.Error()}
		} else if data, merr := json.Marshal(result); merr != nil {
			resp.Error = &JSONRPCError{Code: -32603, Message: merr.Error()}
		} else {
			resp.Result = data
		}
	}

	if err := t.writeMessage(resp); err != nil {
		logging.Debug().Err(err).Str("method", msg.Method).Msg("failed to answer server request")
	}
}

// Send sends a request and waits for a response.
func (t *TCPTransport) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return nil, fmt.Errorf("connection closed")
	}
	t.closeMu.RUnlock()

	id := atomic.AddInt64(&t.nextID, 1)

	ch := make(chan *JSONRPCResponse, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	req := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
	}
	if params != nil {
		req.Params = params
	}

	if err := t.writeMessage(req); err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, fmt.Errorf("connection closed")
		}
		if resp.Error != nil {
			return nil, &ServerError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Notify sends a notification (no response expected).
func (t *TCPTransport) Notify(ctx context.Context, method string, params any) error {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return fmt.Errorf("connection closed")
	}
	t.closeMu.RUnlock()

	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
	}
	if params != nil {
		req.Params = params
	}

	return t.writeMessage(req)
}

// writeMessage writes a newline-delimited JSON-RPC message.
func (t *TCPTransport) writeMessage(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.conn.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Close closes the transport.
func (t *TCPTransport) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()
	t.cancel()

	return t.conn.Close()
}

// IsClosed returns whether the transport is closed.
func (t *TCPTransport) IsClosed() bool {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	return t.closed
}
