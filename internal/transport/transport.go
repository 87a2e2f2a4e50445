// Package transport defines the transport-agnostic seam:
// a uniform Transport interface implemented by stdio, Streamable HTTP,
// legacy HTTP+SSE, and WebSocket, plus the client-side ConnectionState
// machine shared by all of them.
package transport

import (
	"context"

	"github.com/coremcp/coremcp/internal/jsonrpc"
)

// MessageReceiver is notified of inbound messages, transport errors, and
// closure. Implementations must not block the caller for long; dispatch
// work onto another goroutine if needed.
type MessageReceiver interface {
	OnMessage(msg *jsonrpc.Message)
	OnError(err error)
	OnClose()
}

// Transport is the uniform surface every wire protocol binds to,
// client- or server-side. Start begins receiving (and must invoke the
// MessageReceiver callbacks as messages/errors/closure occur); Send
// writes one envelope; Close tears down the connection. SessionID is
// empty for transports that have no session concept of their own (a
// WebSocket connection or a single stdio pipe).
type Transport interface {
	Start(ctx context.Context, receiver MessageReceiver) error
	Send(ctx context.Context, msg *jsonrpc.Message) error
	Close() error
	SessionID() string
}

// ConnectionState is the client-side connection lifecycle shared across
// transports.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String renders the state the way the Rust original's Display impl
// does: lowercase variant names.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
