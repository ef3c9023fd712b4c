// Package mcp implements the tool protocol client: a JSON-RPC 2.0 client
// speaking newline-delimited messages over a raw TCP connection to an
// external tool server.
//
// The client connects lazily on first use and performs the initialize
// handshake, advertising elicitation support. When a request fails with a
// connection-class error the client reconnects and retries exactly once;
// a second failure surfaces as a TransportError. Errors returned by the
// server itself (ServerError) are never retried.
//
// The server may send requests of its own on the same connection, most
// importantly elicitation/create when a tool needs more input mid-call.
// Elicitor bridges those requests onto the event buses: it prompts the
// user's session over the output bus, then waits on the input bus for a
// reply, claiming matched events so the session actor does not process
// them as fresh messages. Replies are validated against the requested
// schema; free-form answers can be coerced to JSON by a completion model.
package mcp
