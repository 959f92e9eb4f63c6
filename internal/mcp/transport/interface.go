// Package transport carries JSON-RPC 2.0 traffic to MCP servers over
// stdio subprocesses, Streamable HTTP, or legacy SSE. The runloop core
// only sees the Transport interface; which wire a server speaks is a
// configuration detail.
package transport

import (
	"context"
	"encoding/json"
)

// JSONRPCRequest is a JSON-RPC 2.0 call expecting a response.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// JSONRPCResponse is the reply to one request, matched by ID.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is the error member of a failed response.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// JSONRPCNotification is a fire-and-forget message (no ID, no reply).
type JSONRPCNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Transport is one server connection. Implementations must be safe for
// concurrent Send calls and must fail all pending requests when the
// connection drops.
type Transport interface {
	// Start establishes the connection (spawn the subprocess, open the
	// stream, or validate the endpoint).
	Start(ctx context.Context) error

	// Send issues one request and blocks for its response or ctx.
	Send(ctx context.Context, req *JSONRPCRequest) (*JSONRPCResponse, error)

	// SendNotification delivers a message with no expected reply.
	SendNotification(ctx context.Context, notif *JSONRPCNotification) error

	// Close tears the connection down and releases resources.
	Close() error

	// IsAlive reports whether the connection is usable.
	IsAlive() bool

	// SetNotificationHandler registers the sink for server-initiated
	// notifications.
	SetNotificationHandler(handler NotificationHandler)
}

// NotificationHandler receives server-initiated notifications.
type NotificationHandler func(method string, params []byte)

// ParseAndDispatchNotification decodes data and, if it carries a method
// name, hands it to the handler. It reports whether the message was a
// notification.
func ParseAndDispatchNotification(data []byte, handler NotificationHandler) bool {
	if handler == nil {
		return false
	}

	var notif struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &notif); err != nil {
		return false
	}

	if notif.Method == "" {
		return false
	}

	handler(notif.Method, notif.Params)
	return true
}
