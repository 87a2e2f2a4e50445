// Package jsonrpc implements the JSON-RPC 2.0 envelope used by the MCP
// wire protocol: Request, Notification, and Result as a tagged union
// sharing jsonrpc = "2.0".
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the only JSON-RPC version this package understands.
const Version = "2.0"

// ID is a JSON-RPC request id: a string or an integer. The zero value is
// the empty ID, used by notifications.
type ID struct {
	str   string
	num   int64
	isNum bool
	set   bool
}

// NewStringID builds a string-valued ID.
func NewStringID(s string) ID { return ID{str: s, set: true} }

// NewIntID builds an integer-valued ID.
func NewIntID(n int64) ID { return ID{num: n, isNum: true, set: true} }

// IsNull reports whether this ID was never set (e.g. a notification).
func (id ID) IsNull() bool { return !id.set }

// String renders the ID as it would appear in a log line.
func (id ID) String() string {
	if id.isNum {
		return fmt.Sprintf("%d", id.num)
	}
	return id.str
}

// Equal reports whether two IDs refer to the same request.
func (id ID) Equal(other ID) bool {
	return id.isNum == other.isNum && id.num == other.num && id.str == other.str
}

// MarshalJSON encodes the ID as a JSON string or number.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isNum {
		return json.Marshal(id.num)
	}
	return json.Marshal(id.str)
}

// UnmarshalJSON decodes a JSON string or number into an ID.
func (id *ID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID{num: n, isNum: true, set: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("jsonrpc: id must be a string or integer: %w", err)
	}
	*id = ID{str: s, set: true}
	return nil
}

// Kind identifies which envelope variant a decoded message holds.
type Kind int

const (
	// KindRequest is a Request envelope: has both method and id.
	KindRequest Kind = iota
	// KindNotification is a Notification envelope: has method, no id.
	KindNotification
	// KindResult is a Result envelope: has id and result xor error.
	KindResult
)

// Request is an inbound or outbound JSON-RPC call expecting a Result.
type Request struct {
	ID     ID              `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Notification is a one-way JSON-RPC call with no id and no response.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorObject is the JSON-RPC error payload carried by a failed Result.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Result is the response envelope correlated to a Request by ID.
// Invariant: exactly one of Result or Error is non-nil/non-empty.
type Result struct {
	ID     ID              `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`
}

// IsSuccess reports whether this Result carries a payload rather than an error.
func (r *Result) IsSuccess() bool { return r.Error == nil }

// Message is the decoded form of one line on the wire: exactly one of
// Request, Notification, or Result is non-nil, mirroring the Rust
// original's #[serde(untagged)] enum.
type Message struct {
	Kind         Kind
	Request      *Request
	Notification *Notification
	Result       *Result
}

// wireEnvelope is the on-the-wire shape used to distinguish variants by
// field presence: method+id -> Request, method only -> Notification,
// id+(result xor error) -> Result.
type wireEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  *string         `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// Decode parses one JSON-RPC envelope from raw bytes, classifying it by
// field shape.
func Decode(data []byte) (*Message, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("jsonrpc: decode: %w", err)
	}
	if w.JSONRPC != Version {
		return nil, fmt.Errorf("jsonrpc: unsupported version %q", w.JSONRPC)
	}

	switch {
	case w.Method != nil && w.ID != nil:
		return &Message{Kind: KindRequest, Request: &Request{
			ID: *w.ID, Method: *w.Method, Params: w.Params,
		}}, nil
	case w.Method != nil:
		return &Message{Kind: KindNotification, Notification: &Notification{
			Method: *w.Method, Params: w.Params,
		}}, nil
	case w.ID != nil:
		return &Message{Kind: KindResult, Result: &Result{
			ID: *w.ID, Result: w.Result, Error: w.Error,
		}}, nil
	default:
		return nil, fmt.Errorf("jsonrpc: envelope has neither method nor id")
	}
}

// Encode serializes a Message back to its wire JSON form.
func Encode(m *Message) ([]byte, error) {
	switch m.Kind {
	case KindRequest:
		if m.Request == nil {
			return nil, fmt.Errorf("jsonrpc: encode: nil Request")
		}
		return json.Marshal(wireEnvelope{
			JSONRPC: Version, ID: &m.Request.ID, Method: &m.Request.Method, Params: m.Request.Params,
		})
	case KindNotification:
		if m.Notification == nil {
			return nil, fmt.Errorf("jsonrpc: encode: nil Notification")
		}
		return json.Marshal(wireEnvelope{
			JSONRPC: Version, Method: &m.Notification.Method, Params: m.Notification.Params,
		})
	case KindResult:
		if m.Result == nil {
			return nil, fmt.Errorf("jsonrpc: encode: nil Result")
		}
		return json.Marshal(wireEnvelope{
			JSONRPC: Version, ID: &m.Result.ID, Result: m.Result.Result, Error: m.Result.Error,
		})
	default:
		return nil, fmt.Errorf("jsonrpc: encode: unknown kind %d", m.Kind)
	}
}

// NewResultSuccess builds a successful Result message for the given request id.
func NewResultSuccess(id ID, payload json.RawMessage) *Message {
	return &Message{Kind: KindResult, Result: &Result{ID: id, Result: payload}}
}

// NewResultError builds a failed Result message for the given request id.
func NewResultError(id ID, errObj *ErrorObject) *Message {
	return &Message{Kind: KindResult, Result: &Result{ID: id, Error: errObj}}
}
