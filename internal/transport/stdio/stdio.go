// Package stdio implements the stdio transport: one JSON-RPC message per
// line on stdin/stdout, newline-delimited, no session concept. Wired
// directly to this repo's own jsonrpc.ReadBuffer and protocol.Runtime
// rather than wrapping an external SDK.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/coremcp/coremcp/internal/jsonrpc"
	"github.com/coremcp/coremcp/internal/logging"
	"github.com/coremcp/coremcp/internal/protocol"
	"github.com/coremcp/coremcp/internal/transport"
)

// Server runs the MCP server side of the stdio transport: reads
// newline-delimited requests/notifications from an input stream,
// dispatches them through a protocol.Runtime, and writes responses to an
// output stream. There is exactly one logical session for the lifetime
// of the process, so SessionID is always empty.
type Server struct {
	runtime *protocol.Runtime
	log     *logging.Logger

	in  io.Reader
	out io.Writer

	writeMu sync.Mutex
}

// NewServer constructs a stdio Server bound to runtime, reading from in
// and writing responses/notifications to out.
func NewServer(runtime *protocol.Runtime, log *logging.Logger, in io.Reader, out io.Writer) *Server {
	return &Server{runtime: runtime, log: log, in: in, out: out}
}

// Run reads lines from in until EOF, ctx cancellation, or a read error,
// dispatching every decoded message through runtime and writing the
// corresponding Result back for requests. Notifications produce no
// response. Run blocks until the input stream closes or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var rb jsonrpc.ReadBuffer
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rb.Append(scanner.Bytes())
		rb.Append([]byte("\n"))

		for {
			msg, err := rb.ReadMessage()
			if err != nil {
				s.writeParseError(err)
				continue
			}
			if msg == nil {
				break
			}
			s.handle(ctx, msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdio: scan: %w", err)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, msg *jsonrpc.Message) {
	switch msg.Kind {
	case jsonrpc.KindRequest:
		resp := s.runtime.Dispatch(ctx, "", msg.Request, protocol.RequestMeta{})
		if err := s.write(resp); err != nil {
			s.log.Error(ctx, "stdio: write response failed", zap.Error(err))
		}
	case jsonrpc.KindNotification:
		s.runtime.DispatchNotification(ctx, "", msg.Notification)
	case jsonrpc.KindResult:
		// A stdio server receiving a Result envelope means the peer is
		// answering a server-initiated request (sampling, elicitation);
		// routing those replies belongs to the client half below, not
		// the server, so it is ignored here.
	}
}

func (s *Server) writeParseError(err error) {
	resp := jsonrpc.NewResultError(jsonrpc.ID{}, protocol.NewParseError(err).ToJSONRPCError())
	_ = s.write(resp)
}

func (s *Server) write(msg *jsonrpc.Message) error {
	data, err := jsonrpc.SerializeMessage(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.out.Write(data)
	return err
}

// Notify sends a server-initiated notification (list_changed, progress,
// logging messages) to the peer.
func (s *Server) Notify(method string, params json.RawMessage) error {
	return s.write(&jsonrpc.Message{Kind: jsonrpc.KindNotification, Notification: &jsonrpc.Notification{
		Method: method, Params: params,
	}})
}

// Client is the client half of the stdio transport: it owns a spawned
// server process's stdin/stdout (or any io.Reader/io.Writer pair wired
// to one), assigns request ids, and correlates Result envelopes back to
// callers. It implements transport.Transport.
type Client struct {
	in  io.Reader
	out io.Writer

	writeMu sync.Mutex
	nextID  int64

	pendingMu sync.Mutex
	pending   map[string]chan *jsonrpc.Result

	receiver transport.MessageReceiver
	closeCh  chan struct{}
	closeOnce sync.Once
}

// NewClient builds a stdio Client reading server output from in and
// writing requests to out.
func NewClient(in io.Reader, out io.Writer) *Client {
	return &Client{
		in:      in,
		out:     out,
		pending: make(map[string]chan *jsonrpc.Result),
		closeCh: make(chan struct{}),
	}
}

// SessionID always returns "" for stdio: the transport has no session
// concept of its own.
func (c *Client) SessionID() string { return "" }

// Start begins the read loop in a background goroutine, invoking
// receiver's callbacks as messages arrive.
func (c *Client) Start(ctx context.Context, receiver transport.MessageReceiver) error {
	c.receiver = receiver
	go c.readLoop(ctx)
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.failPending()

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var rb jsonrpc.ReadBuffer
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			c.receiver.OnClose()
			return
		case <-c.closeCh:
			return
		default:
		}

		rb.Append(scanner.Bytes())
		rb.Append([]byte("\n"))
		for {
			msg, err := rb.ReadMessage()
			if err != nil {
				c.receiver.OnError(err)
				continue
			}
			if msg == nil {
				break
			}
			if msg.Kind == jsonrpc.KindResult {
				c.resolve(msg.Result)
				continue
			}
			c.receiver.OnMessage(msg)
		}
	}
	if err := scanner.Err(); err != nil {
		c.receiver.OnError(err)
	}
	c.receiver.OnClose()
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

// Send writes one envelope to the server's stdin.
func (c *Client) Send(ctx context.Context, msg *jsonrpc.Message) error {
	data, err := jsonrpc.SerializeMessage(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.out.Write(data)
	return err
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

// Close stops the client's read loop.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	return nil
}
