// Package websocket implements the WebSocket transport: a full-duplex
// bidirectional channel, one JSON-RPC envelope per text frame,
// negotiated via the "mcp" subprotocol on a single endpoint path
// (conventionally /ws). Unlike the HTTP transports there is no separate
// request/response cycle, since either side can write a frame at any
// time, so a session lives exactly as long as the underlying connection.
// Mirrors the stdio package's Server/Client split, adapted from line
// framing to WebSocket text frames.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/coremcp/coremcp/internal/jsonrpc"
	"github.com/coremcp/coremcp/internal/logging"
	"github.com/coremcp/coremcp/internal/protocol"
	"github.com/coremcp/coremcp/internal/session"
	"github.com/coremcp/coremcp/internal/transport"
)

// Subprotocol is the Sec-WebSocket-Protocol value MCP connections
// negotiate.
const Subprotocol = "mcp"

// PingInterval is how often the server side pings an idle connection to
// keep intermediaries from closing it and to detect dead peers.
const PingInterval = 30 * time.Second

// PongWait is how long the server waits for a pong before considering
// the connection dead.
const PongWait = 60 * time.Second

// Server accepts WebSocket upgrades and dispatches one JSON-RPC
// connection per socket through a protocol.Runtime.
type Server struct {
	Runtime  *protocol.Runtime
	Sessions *session.Manager
	Log      *logging.Logger

	upgrader websocket.Upgrader
}

// NewServer constructs a websocket Server. CheckOrigin is left to the
// caller (set on the returned Server's upgrader) since the allowed-origin
// policy is deployment-specific.
func NewServer(runtime *protocol.Runtime, sessions *session.Manager, log *logging.Logger) *Server {
	return &Server{
		Runtime:  runtime,
		Sessions: sessions,
		Log:      log,
		upgrader: websocket.Upgrader{
			Subprotocols:    []string{Subprotocol},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// SetCheckOrigin installs an origin-validation callback on the upgrader,
// guarding against cross-site WebSocket hijacking.
func (s *Server) SetCheckOrigin(f func(r *http.Request) bool) {
	s.upgrader.CheckOrigin = f
}

// ServeHTTP upgrades the connection and runs its message loop until the
// socket closes. One session is created per connection and deleted when
// the loop exits.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.Log != nil {
			s.Log.Error(r.Context(), "websocket: upgrade failed", zap.Error(err))
		}
		return
	}

	sess, err := s.Sessions.Create("")
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		_ = conn.Close()
		return
	}
	defer s.Sessions.Delete(sess.ID)

	conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	ctx := r.Context()
	var writeMu sync.Mutex
	writeFrame := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	done := make(chan struct{})
	go s.pingLoop(conn, &writeMu, done)
	defer close(done)

	// Drain buffered/live server-initiated events (progress, list_changed,
	// logging notifications) onto the socket for the lifetime of the
	// connection.
	live := sess.Buffer().Live()
	go func() {
		for {
			select {
			case <-done:
				return
			case ev := <-live:
				_ = writeFrame(ev.Payload)
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		msg, err := jsonrpc.Decode(data)
		if err != nil {
			resp := jsonrpc.NewResultError(jsonrpc.ID{}, protocol.NewParseError(err).ToJSONRPCError())
			payload, _ := jsonrpc.Encode(resp)
			_ = writeFrame(payload)
			continue
		}

		switch msg.Kind {
		case jsonrpc.KindNotification:
			s.Runtime.DispatchNotification(ctx, sess.ID, msg.Notification)
		case jsonrpc.KindRequest:
			resp := s.Runtime.Dispatch(ctx, sess.ID, msg.Request, protocol.RequestMeta{})
			payload, err := jsonrpc.Encode(resp)
			if err != nil {
				continue
			}
			if err := writeFrame(payload); err != nil {
				return
			}
		case jsonrpc.KindResult:
			// A server-initiated request (sampling, elicitation) answer;
			// routing those belongs to the client half, not this loop.
		}
	}
}

func (s *Server) pingLoop(conn *websocket.Conn, writeMu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Client is the client half of the WebSocket transport: it dials a
// server, assigns request ids, and correlates Result frames back to
// callers. It implements transport.Transport.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	nextID  int64

	pendingMu sync.Mutex
	pending   map[string]chan *jsonrpc.Result

	receiver transport.MessageReceiver
	state    transport.ConnectionState
	stateMu  sync.Mutex
}

// Dial opens a WebSocket connection to url, negotiating the "mcp"
// subprotocol.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	dialer := websocket.Dialer{Subprotocols: []string{Subprotocol}}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:    conn,
		pending: make(map[string]chan *jsonrpc.Result),
		state:   transport.StateConnected,
	}, nil
}

// SessionID always returns "" — WebSocket has no session header of its
// own, the connection itself is the session.
func (c *Client) SessionID() string { return "" }

// Start begins the read loop in a background goroutine.
func (c *Client) Start(ctx context.Context, receiver transport.MessageReceiver) error {
	c.receiver = receiver
	go c.readLoop(ctx)
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.setState(transport.StateClosed)
			c.failPending()
			c.receiver.OnError(err)
			c.receiver.OnClose()
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		msg, err := jsonrpc.Decode(data)
		if err != nil {
			c.receiver.OnError(err)
			continue
		}
		if msg.Kind == jsonrpc.KindResult {
			c.resolve(msg.Result)
			continue
		}
		c.receiver.OnMessage(msg)
	}
}

func (c *Client) resolve(result *jsonrpc.Result) {
	key := result.ID.String()
	c.pendingMu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- result
	}
}

// failPending resolves every outstanding Call with ConnectionClosed so
// callers blocked on the pending channel don't hang once the read loop
// has exited and no further Result can ever arrive.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan *jsonrpc.Result)
	c.pendingMu.Unlock()

	errObj := protocol.NewConnectionClosed().ToJSONRPCError()
	for _, ch := range pending {
		ch <- &jsonrpc.Result{Error: errObj}
	}
}

func (c *Client) setState(st transport.ConnectionState) {
	c.stateMu.Lock()
	c.state = st
	c.stateMu.Unlock()
}

// State reports the connection's current lifecycle state.
func (c *Client) State() transport.ConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Send writes one envelope as a text frame.
func (c *Client) Send(ctx context.Context, msg *jsonrpc.Message) error {
	data, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Call sends a request and blocks until its correlated Result arrives or
// ctx is cancelled.
func (c *Client) Call(ctx context.Context, method string, params json.RawMessage) (*jsonrpc.Result, error) {
	c.pendingMu.Lock()
	c.nextID++
	id := jsonrpc.NewIntID(c.nextID)
	ch := make(chan *jsonrpc.Result, 1)
	c.pending[id.String()] = ch
	c.pendingMu.Unlock()

	req := &jsonrpc.Message{Kind: jsonrpc.KindRequest, Request: &jsonrpc.Request{ID: id, Method: method, Params: params}}
	if err := c.Send(ctx, req); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id.String())
		c.pendingMu.Unlock()
		return nil, err
	}

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id.String())
		c.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

// Close sends a close frame and shuts down the underlying connection.
func (c *Client) Close() error {
	c.setState(transport.StateClosed)
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
