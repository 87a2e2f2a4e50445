// Package legacysse implements the pre-2025-03-26 HTTP+SSE transport for
// legacy client support: GET /sse opens a stream whose first event is
// "endpoint" (carrying the POST URL the client must use for this
// session), and POST /sse/message?sessionId=... submits one
// request/notification, answered out-of-band over the SSE stream rather
// than in the POST response.
package legacysse

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/coremcp/coremcp/internal/jsonrpc"
	"github.com/coremcp/coremcp/internal/protocol"
	"github.com/coremcp/coremcp/internal/session"
)

// HeartbeatInterval is the keep-alive ping cadence for open SSE streams.
const HeartbeatInterval = 30 * time.Second

// Server implements the legacy two-endpoint SSE transport.
type Server struct {
	Runtime  *protocol.Runtime
	Sessions *session.Manager

	// BasePath is prefixed onto the "endpoint" event's URL, e.g. "/sse".
	BasePath string
}

// NewServer constructs a legacy SSE Server.
func NewServer(runtime *protocol.Runtime, sessions *session.Manager, basePath string) *Server {
	if basePath == "" {
		basePath = "/sse"
	}
	return &Server{Runtime: runtime, Sessions: sessions, BasePath: basePath}
}

// Register mounts GET {BasePath} and POST {BasePath}/message.
func (s *Server) Register(g *echo.Group) {
	g.GET(s.BasePath, s.handleSSE)
	g.POST(s.BasePath+"/message", s.handleMessage)
}

// handleSSE opens the long-lived stream. The first event is always
// "endpoint", carrying the POST URL (with sessionId) the client must
// submit requests to.
func (s *Server) handleSSE(c echo.Context) error {
	sess, err := s.Sessions.Create("")
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}

	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)

	endpointURL := fmt.Sprintf("%s/message?sessionId=%s", s.BasePath, sess.ID)
	fmt.Fprintf(resp, "event: endpoint\ndata: %s\n\n", endpointURL)
	resp.Flush()

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	live := sess.Buffer().Live()
	ctx := c.Request().Context()
	for {
		select {
		case ev := <-live:
			fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", ev.Kind, ev.Payload)
			resp.Flush()
		case <-ticker.C:
			fmt.Fprintf(resp, ": heartbeat\n\n")
			resp.Flush()
		case <-ctx.Done():
			s.Sessions.Delete(sess.ID)
			return nil
		}
	}
}

// handleMessage implements POST {BasePath}/message?sessionId=...: decode one
// envelope, dispatch it, append the Result to the session's event
// buffer (so the open SSE stream delivers it), and acknowledge with a
// bare 202 — the legacy transport never answers a POST with a body.
func (s *Server) handleMessage(c echo.Context) error {
	sessionID := c.QueryParam("sessionId")
	if sessionID == "" {
		return c.NoContent(http.StatusBadRequest)
	}
	sess, err := s.Sessions.Get(sessionID)
	if err != nil {
		return c.NoContent(http.StatusNotFound)
	}

	defer c.Request().Body.Close()
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	msg, err := jsonrpc.Decode(body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	ctx := c.Request().Context()
	switch msg.Kind {
	case jsonrpc.KindNotification:
		s.Runtime.DispatchNotification(ctx, sessionID, msg.Notification)
	case jsonrpc.KindRequest:
		resp := s.Runtime.Dispatch(ctx, sessionID, msg.Request, protocol.RequestMeta{})
		payload, _ := jsonrpc.Encode(resp)
		sess.Buffer().Append("message", payload)
	default:
		return c.NoContent(http.StatusBadRequest)
	}
	return c.NoContent(http.StatusAccepted)
}
