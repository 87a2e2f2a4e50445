package mcpserver

import (
	"encoding/json"

	"github.com/coremcp/coremcp/internal/jsonrpc"
	"github.com/coremcp/coremcp/internal/session"
)

// SessionNotifier implements Notifier by appending the encoded
// notification directly to session event buffers, the sink every
// transport (Streamable HTTP's SSE stream, legacy SSE, WebSocket) reads
// from to push server-initiated messages. sessionID == "" broadcasts to
// every live session, since list_changed notifications aren't scoped
// to one client.
type SessionNotifier struct {
	Sessions *session.Manager
}

// Notify encodes method/params as a JSON-RPC notification and appends it
// to the target session's buffer, or every session's buffer when
// sessionID is empty. Encode failures and unknown session ids are
// dropped silently: a best-effort notification never blocks a request.
func (n *SessionNotifier) Notify(sessionID, method string, params json.RawMessage) {
	payload, err := jsonrpc.Encode(&jsonrpc.Message{
		Kind:         jsonrpc.KindNotification,
		Notification: &jsonrpc.Notification{Method: method, Params: params},
	})
	if err != nil {
		return
	}

	if sessionID != "" {
		if s, err := n.Sessions.Get(sessionID); err == nil {
			s.Buffer().Append(method, payload)
		}
		return
	}

	for _, s := range n.Sessions.All() {
		s.Buffer().Append(method, payload)
	}
}
