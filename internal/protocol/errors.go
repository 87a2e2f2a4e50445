// Package protocol implements the MCP dispatch pipeline: capability
// gating, schema validation, request-context propagation, cancellation,
// and timeout handling, on top of the jsonrpc envelope.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/coremcp/coremcp/internal/jsonrpc"
)

// ErrorKind enumerates the protocol-level error variants, mirroring the
// original ProtocolError enum (UnknownMethod, Cancelled, Timeout,
// Capability, TaskUnsupported, Validation, Handler, Serialization).
type ErrorKind int

const (
	ErrUnknownMethod ErrorKind = iota
	ErrCancelled
	ErrTimeout
	ErrCapability
	ErrTaskUnsupported
	ErrValidation
	ErrHandler
	ErrSerialization
	ErrConnectionClosed
	ErrParse
	ErrInvalidRequest
	ErrInternal
	ErrURLElicitationRequired
)

// Code returns the JSON-RPC error code for this error kind, per §7 of the spec.
func (k ErrorKind) Code() int {
	switch k {
	case ErrParse:
		return -32700
	case ErrInvalidRequest:
		return -32600
	case ErrUnknownMethod:
		return -32601
	case ErrValidation:
		return -32602
	case ErrInternal, ErrHandler, ErrSerialization:
		return -32603
	case ErrConnectionClosed, ErrCancelled:
		return -32000
	case ErrTimeout:
		return -32001
	case ErrURLElicitationRequired:
		return -32042
	case ErrCapability, ErrTaskUnsupported:
		// These kinds have no dedicated code; they are sent as -32603 and
		// are told apart on the wire only by their message.
		return -32603
	default:
		return -32603
	}
}

// Error is the typed protocol error surfaced by the dispatch pipeline.
// It implements error and carries an optional wrapped cause and
// validation detail list.
type Error struct {
	Kind    ErrorKind
	Message string
	Data    any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Code returns the JSON-RPC error code for this error.
func (e *Error) Code() int { return e.Kind.Code() }

// ToJSONRPCError renders this protocol error as a wire ErrorObject.
func (e *Error) ToJSONRPCError() *jsonrpc.ErrorObject {
	obj := &jsonrpc.ErrorObject{Code: e.Kind.Code(), Message: e.Message}
	if e.Data != nil {
		if raw, err := json.Marshal(e.Data); err == nil {
			obj.Data = raw
		}
	}
	return obj
}

// NewUnknownMethod builds an UnknownMethod error for the given method name.
func NewUnknownMethod(method string) *Error {
	return &Error{Kind: ErrUnknownMethod, Message: fmt.Sprintf("unknown method %q", method)}
}

// NewCapabilityError builds a Capability error naming the missing capability.
func NewCapabilityError(capability string) *Error {
	return &Error{Kind: ErrCapability, Message: fmt.Sprintf("capability not negotiated: %s", capability)}
}

// NewCancelled builds a Cancelled error.
func NewCancelled() *Error {
	return &Error{Kind: ErrCancelled, Message: "request was cancelled"}
}

// NewTimeout builds a Timeout error.
func NewTimeout() *Error {
	return &Error{Kind: ErrTimeout, Message: "request timed out"}
}

// NewTaskUnsupported builds a TaskUnsupported error for a tool whose
// execution.taskSupport is "forbidden".
func NewTaskUnsupported(tool string) *Error {
	return &Error{Kind: ErrTaskUnsupported, Message: fmt.Sprintf("tool %q does not support task-augmented execution", tool)}
}

// NewValidation builds a Validation error carrying the failing-path detail list.
func NewValidation(errs []string) *Error {
	return &Error{Kind: ErrValidation, Message: "invalid params", Data: map[string]any{"errors": errs}}
}

// NewHandlerError wraps a handler-originated failure.
func NewHandlerError(cause error) *Error {
	return &Error{Kind: ErrHandler, Message: "handler error", Cause: cause}
}

// NewInternal wraps a non-specific internal failure.
func NewInternal(cause error) *Error {
	return &Error{Kind: ErrInternal, Message: "internal error", Cause: cause}
}

// NewConnectionClosed builds a ConnectionClosed error.
func NewConnectionClosed() *Error {
	return &Error{Kind: ErrConnectionClosed, Message: "connection closed"}
}

// NewParseError wraps a message-decode failure (malformed JSON, wrong
// jsonrpc version, neither method nor id present).
func NewParseError(cause error) *Error {
	return &Error{Kind: ErrParse, Message: "parse error", Cause: cause}
}

// AsProtocolError extracts a *Error from err, wrapping as Internal if the
// error isn't already a protocol error.
func AsProtocolError(err error) *Error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return NewInternal(err)
}
