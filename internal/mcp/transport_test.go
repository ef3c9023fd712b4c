package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func TestTransportSendReceivesResponse(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	transport := NewTCPTransport(clientConn, nil)
	defer transport.Close()

	go func() {
		reader := bufio.NewReader(serverConn)
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var msg jsonRPCMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return
		}
		resp := JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Result:  json.RawMessage(`{"ok":true}`),
		}
		data, _ := json.Marshal(resp)
		serverConn.Write(append(data, '\n'))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := transport.Send(ctx, "ping", nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Errorf("unexpected result: %s", result)
	}
}

func TestTransportSendServerError(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	transport := NewTCPTransport(clientConn, nil)
	defer transport.Close()

	go func() {
		reader := bufio.NewReader(serverConn)
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var msg jsonRPCMessage
		json.Unmarshal(line, &msg)
		resp := JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Error:   &JSONRPCError{Code: -32001, Message: "tool exploded"},
		}
		data, _ := json.Marshal(resp)
		serverConn.Write(append(data, '\n'))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := transport.Send(ctx, "tools/call", nil)
	serr, ok := err.(*ServerError)
	if !ok {
		t.Fatalf("expected *ServerError, got %T: %v", err, err)
	}
	if serr.Code != -32001 || serr.Message != "tool exploded" {
		t.Errorf("unexpected server error: %+v", serr)
	}
}

func TestTransportDispatchesServerRequest(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	handler := func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		if method != "elicitation/create" {
			t.Errorf("unexpected method %q", method)
		}
		return ElicitationResult{Action: ElicitAccept, Content: json.RawMessage(`{"answer":42}`)}, nil
	}

	transport := NewTCPTransport(clientConn, handler)
	defer transport.Close()

	req := `{"jsonrpc":"2.0","id":7,"method":"elicitation/create","params":{"message":"need input"}}` + "\n"
	if _, err := serverConn.Write([]byte(req)); err != nil {
		t.Fatalf("write: %v", err)
	}

	serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(serverConn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	var resp JSONRPCResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ID != 7 {
		t.Errorf("response id = %d, want 7", resp.ID)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	var result ElicitationResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Action != ElicitAccept {
		t.Errorf("action = %q, want accept", result.Action)
	}
}

func TestTransportNoHandlerReturnsMethodNotFound(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	transport := NewTCPTransport(clientConn, nil)
	defer transport.Close()

	req := `{"jsonrpc":"2.0","id":3,"method":"elicitation/create"}` + "\n"
	serverConn.Write([]byte(req))

	serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(serverConn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	var resp JSONRPCResponse
	json.Unmarshal(line, &resp)
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Errorf("expected method-not-found error, got %+v", resp.Error)
	}
}

func TestTransportSendFailsWhenPeerCloses(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	transport := NewTCPTransport(clientConn, nil)
	defer transport.Close()

	go func() {
		reader := bufio.NewReader(serverConn)
		reader.ReadBytes('\n')
		serverConn.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := transport.Send(ctx, "ping", nil)
	if err == nil {
		t.Fatal("expected error after peer closed the connection")
	}
	if !transport.IsClosed() {
		t.Error("transport should be closed after read failure")
	}
}

func TestTransportSendAfterClose(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	transport := NewTCPTransport(clientConn, nil)
	transport.Close()

	_, err := transport.Send(context.Background(), "ping", nil)
	if err == nil {
		t.Fatal("expected error on closed transport")
	}
}

func TestTransportCancelsHandlerOnClose(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	// The handler blocks the way an elicitation waiting for user input
	// does. Tearing the connection down must release it.
	unblocked := make(chan struct{})
	handler := func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		<-ctx.Done()
		close(unblocked)
		return nil, ctx.Err()
	}

	transport := NewTCPTransport(clientConn, handler)

	req := `{"jsonrpc":"2.0","id":3,"method":"elicitation/create","params":{"message":"need input"}}` + "\n"
	if _, err := serverConn.Write([]byte(req)); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	transport.Close()

	select {
	case <-unblocked:
	case <-time.After(2 * time.Second):
		t.Fatal("handler still blocked after close")
	}
}

func TestTransportCancelsHandlerOnPeerClose(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	unblocked := make(chan struct{})
	handler := func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		<-ctx.Done()
		close(unblocked)
		return nil, ctx.Err()
	}

	transport := NewTCPTransport(clientConn, handler)
	defer transport.Close()

	req := `{"jsonrpc":"2.0","id":4,"method":"elicitation/create","params":{"message":"need input"}}` + "\n"
	if _, err := serverConn.Write([]byte(req)); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	serverConn.Close()

	select {
	case <-unblocked:
	case <-time.After(2 * time.Second):
		t.Fatal("handler still blocked after peer close")
	}
}
