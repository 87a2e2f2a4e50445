package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremcp/coremcp/internal/jsonrpc"
	"github.com/coremcp/coremcp/internal/logging"
	"github.com/coremcp/coremcp/internal/protocol"
	"github.com/coremcp/coremcp/internal/schema"
	"github.com/coremcp/coremcp/internal/transport"
)

func newTestRuntime() *protocol.Runtime {
	caps := &protocol.CapabilitySet{ServerTools: true}
	rt := protocol.NewRuntime(schema.NewValidator(), &protocol.CapabilityGate{Strict: false}, caps)
	rt.RegisterRequestHandler("ping", "", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	return rt
}

func TestServerDispatchesRequestAndWritesResult(t *testing.T) {
	rt := newTestRuntime()
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")
	var out bytes.Buffer

	s := NewServer(rt, logging.NewTestLogger().Logger, in, &out)
	require.NoError(t, s.Run(context.Background()))

	line := strings.TrimRight(out.String(), "\n")
	msg, err := jsonrpc.Decode([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, jsonrpc.KindResult, msg.Kind)
	assert.True(t, msg.Result.IsSuccess())
}

func TestServerHandlesNotificationWithoutResponse(t *testing.T) {
	rt := newTestRuntime()
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	var out bytes.Buffer

	s := NewServer(rt, logging.NewTestLogger().Logger, in, &out)
	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, out.String())
}

func TestServerWritesParseErrorOnMalformedLine(t *testing.T) {
	rt := newTestRuntime()
	in := strings.NewReader("not json at all\n")
	var out bytes.Buffer

	s := NewServer(rt, logging.NewTestLogger().Logger, in, &out)
	require.NoError(t, s.Run(context.Background()))

	line := strings.TrimRight(out.String(), "\n")
	msg, err := jsonrpc.Decode([]byte(line))
	require.NoError(t, err)
	require.False(t, msg.Result.IsSuccess())
	assert.Equal(t, protocol.ErrParse.Code(), msg.Result.Error.Code)
}

func TestServerProcessesMultipleMessagesInOneRun(t *testing.T) {
	rt := newTestRuntime()
	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n")
	var out bytes.Buffer

	s := NewServer(rt, logging.NewTestLogger().Logger, in, &out)
	require.NoError(t, s.Run(context.Background()))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
}

type recordingReceiver struct {
	messages []*jsonrpc.Message
	errors   []error
	closed   bool
}

func (r *recordingReceiver) OnMessage(msg *jsonrpc.Message) { r.messages = append(r.messages, msg) }
func (r *recordingReceiver) OnError(err error)              { r.errors = append(r.errors, err) }
func (r *recordingReceiver) OnClose()                       { r.closed = true }

// TestClientCallCorrelatesResponseByID wires a Client against a fake
// peer built from two io.Pipe()s: clientToFake carries the Client's
// requests, fakeToClient carries the canned Result back, correlated by
// the request's own id.
func TestClientCallCorrelatesResponseByID(t *testing.T) {
	clientToFakeR, clientToFakeW := io.Pipe()
	fakeToClientR, fakeToClientW := io.Pipe()

	client := NewClient(fakeToClientR, clientToFakeW)
	recv := &recordingReceiver{}
	require.NoError(t, client.Start(context.Background(), recv))

	go func() {
		var rb jsonrpc.ReadBuffer
		buf := make([]byte, 4096)
		for {
			n, err := clientToFakeR.Read(buf)
			if err != nil {
				return
			}
			rb.Append(buf[:n])
			msg, err := rb.ReadMessage()
			if err != nil || msg == nil {
				continue
			}
			resp := jsonrpc.NewResultSuccess(msg.Request.ID, json.RawMessage(`{"pong":true}`))
			data, _ := jsonrpc.SerializeMessage(resp)
			_, _ = fakeToClientW.Write(data)
			return
		}
	}()

	res, err := client.Call(context.Background(), "ping", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.True(t, res.IsSuccess())
	assert.JSONEq(t, `{"pong":true}`, string(res.Result))

	require.NoError(t, client.Close())
}

func TestConnectionStateStringRendersAllVariants(t *testing.T) {
	cases := map[transport.ConnectionState]string{
		transport.StateDisconnected: "disconnected",
		transport.StateConnecting:   "connecting",
		transport.StateConnected:    "connected",
		transport.StateReconnecting: "reconnecting",
		transport.StateClosed:       "closed",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}

// TestClientCallResolvesWithConnectionClosedOnReadError ensures a Call
// blocked waiting on a Result doesn't hang forever once the peer closes
// the connection: the read loop exiting must fail every pending entry.
func TestClientCallResolvesWithConnectionClosedOnReadError(t *testing.T) {
	fakeToClientR, fakeToClientW := io.Pipe()
	clientToFakeR, clientToFakeW := io.Pipe()
	go io.Copy(io.Discard, clientToFakeR)

	client := NewClient(fakeToClientR, clientToFakeW)
	require.NoError(t, client.Start(context.Background(), &recordingReceiver{}))

	type callResult struct {
		res *jsonrpc.Result
		err error
	}
	resultCh := make(chan callResult, 1)
	go func() {
		res, err := client.Call(context.Background(), "ping", json.RawMessage(`{}`))
		resultCh <- callResult{res, err}
	}()

	require.Eventually(t, func() bool {
		client.pendingMu.Lock()
		defer client.pendingMu.Unlock()
		return len(client.pending) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, fakeToClientW.Close())

	select {
	case got := <-resultCh:
		require.NoError(t, got.err)
		require.NotNil(t, got.res.Error)
		assert.Equal(t, protocol.ErrConnectionClosed.Code(), got.res.Error.Code)
	case <-time.After(time.Second):
		t.Fatal("Call did not resolve after read loop closed")
	}
}

func TestClientCallTimesOutWithoutResponse(t *testing.T) {
	fakeToClientR, _ := io.Pipe()
	clientToFakeR, clientToFakeW := io.Pipe()
	go io.Copy(io.Discard, clientToFakeR)

	client := NewClient(fakeToClientR, clientToFakeW)
	require.NoError(t, client.Start(context.Background(), &recordingReceiver{}))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Call(ctx, "ping", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
