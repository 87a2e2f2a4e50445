// Package streamablehttp implements the Streamable HTTP transport: a
// single /mcp endpoint accepting POST (submit a request/notification,
// a request gets one JSON Result back, never an SSE stream), GET (open a
// standalone SSE stream for server-initiated messages, with
// Last-Event-ID resumption), and DELETE (explicit session termination).
package streamablehttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/coremcp/coremcp/internal/jsonrpc"
	"github.com/coremcp/coremcp/internal/logging"
	"github.com/coremcp/coremcp/internal/protocol"
	"github.com/coremcp/coremcp/internal/session"
)

// HeartbeatInterval is the keep-alive ping cadence for open SSE streams.
const HeartbeatInterval = 30 * time.Second

// SessionHeader and ProtocolVersionHeader are the MCP-defined response
// headers set on a successful initialize.
const (
	SessionHeader         = "Mcp-Session-Id"
	ProtocolVersionHeader = "Mcp-Protocol-Version"
	LastEventIDHeader     = "Last-Event-ID"
)

// Server is the Streamable HTTP transport. AllowedOrigins, when
// non-empty, restricts the Origin header accepted on requests, guarding
// against DNS-rebinding attacks; an empty list disables the check
// (same-process/dev use).
type Server struct {
	Runtime *protocol.Runtime
	Sessions *session.Manager
	Log      *logging.Logger

	AllowedOrigins []string
}

// NewServer constructs a Streamable HTTP Server bound to runtime and
// sessions.
func NewServer(runtime *protocol.Runtime, sessions *session.Manager, log *logging.Logger) *Server {
	return &Server{Runtime: runtime, Sessions: sessions, Log: log}
}

// Register mounts the /mcp endpoint's three methods on an echo group.
func (s *Server) Register(g *echo.Group) {
	g.POST("/mcp", s.handlePost)
	g.GET("/mcp", s.handleGet)
	g.DELETE("/mcp", s.handleDelete)
}

func (s *Server) checkOrigin(c echo.Context) bool {
	if len(s.AllowedOrigins) == 0 {
		return true
	}
	origin := c.Request().Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// validateAcceptHeader checks that both required media types are present.
func validateAcceptHeader(accept string) bool {
	if accept == "" {
		return false
	}
	return strings.Contains(accept, "application/json") && strings.Contains(accept, "text/event-stream")
}

// validateContentType reports whether the request body is declared as
// application/json, ignoring any charset/boundary parameters.
func validateContentType(contentType string) bool {
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	return strings.EqualFold(mediaType, "application/json")
}

// validateSSEAccept reports whether the Accept header accepts
// text/event-stream, as required to open the GET SSE stream.
func validateSSEAccept(accept string) bool {
	return strings.Contains(accept, "text/event-stream")
}

// writeJSONRPC wire-encodes msg per the jsonrpc package's tagged-union
// envelope and writes it with the given status code. c.JSON cannot be
// used here: Message itself carries no json tags, so encoding it
// directly would leak the Go struct shape instead of the wire envelope.
func writeJSONRPC(c echo.Context, status int, msg *jsonrpc.Message) error {
	body, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	return c.JSONBlob(status, body)
}

func jsonRPCErrorResponse(c echo.Context, status int, id jsonrpc.ID, perr *protocol.Error) error {
	return writeJSONRPC(c, status, jsonrpc.NewResultError(id, perr.ToJSONRPCError()))
}

// handlePost implements POST /mcp: decode one JSON-RPC envelope, dispatch
// it, and return the Result as JSON. Notifications get a bare 202.
func (s *Server) handlePost(c echo.Context) error {
	if !s.checkOrigin(c) {
		return c.NoContent(http.StatusForbidden)
	}
	if !validateAcceptHeader(c.Request().Header.Get("Accept")) {
		return jsonRPCErrorResponse(c, http.StatusNotAcceptable, jsonrpc.ID{},
			&protocol.Error{Kind: protocol.ErrInvalidRequest, Message: "Accept header must include application/json and text/event-stream"})
	}
	if !validateContentType(c.Request().Header.Get(echo.HeaderContentType)) {
		return jsonRPCErrorResponse(c, http.StatusUnsupportedMediaType, jsonrpc.ID{},
			&protocol.Error{Kind: protocol.ErrInvalidRequest, Message: "Content-Type must be application/json"})
	}

	body, err := readAll(c)
	if err != nil {
		logErr(s.Log, c, "streamablehttp: read request body failed", err)
		return jsonRPCErrorResponse(c, http.StatusBadRequest, jsonrpc.ID{}, protocol.NewParseError(err))
	}

	msg, err := jsonrpc.Decode(body)
	if err != nil {
		return jsonRPCErrorResponse(c, http.StatusBadRequest, jsonrpc.ID{}, protocol.NewParseError(err))
	}

	ctx := c.Request().Context()

	if msg.Kind == jsonrpc.KindNotification {
		sessionID := c.Request().Header.Get(SessionHeader)
		s.Runtime.DispatchNotification(ctx, sessionID, msg.Notification)
		return c.NoContent(http.StatusAccepted)
	}

	if msg.Kind != jsonrpc.KindRequest {
		return jsonRPCErrorResponse(c, http.StatusBadRequest, jsonrpc.ID{},
			&protocol.Error{Kind: protocol.ErrInvalidRequest, Message: "POST body must be a request or notification"})
	}

	sessionID := c.Request().Header.Get(SessionHeader)
	if msg.Request.Method == "initialize" {
		sess, err := s.Sessions.Create("")
		if err != nil {
			return jsonRPCErrorResponse(c, http.StatusServiceUnavailable, msg.Request.ID,
				&protocol.Error{Kind: protocol.ErrInternal, Message: err.Error()})
		}
		sessionID = sess.ID
	} else if s.Sessions != nil {
		if sessionID == "" {
			return jsonRPCErrorResponse(c, http.StatusBadRequest, msg.Request.ID,
				&protocol.Error{Kind: protocol.ErrInvalidRequest, Message: "Mcp-Session-Id header is required for non-initialize requests"})
		}
		if _, err := s.Sessions.Get(sessionID); err != nil {
			return s.sessionLookupError(c, msg.Request.ID, err)
		}
	}

	resp := s.Runtime.Dispatch(ctx, sessionID, msg.Request, protocol.RequestMeta{})

	if msg.Request.Method == "initialize" {
		var result struct {
			ProtocolVersion string `json:"protocolVersion"`
		}
		if resp.Result.IsSuccess() {
			_ = json.Unmarshal(resp.Result.Result, &result)
			c.Response().Header().Set(SessionHeader, sessionID)
			c.Response().Header().Set(ProtocolVersionHeader, result.ProtocolVersion)
		}
	}

	return writeJSONRPC(c, http.StatusOK, resp)
}

func (s *Server) sessionLookupError(c echo.Context, id jsonrpc.ID, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		return jsonRPCErrorResponse(c, http.StatusGone, id, &protocol.Error{Kind: protocol.ErrConnectionClosed, Message: "session expired"})
	case errors.Is(err, session.ErrSessionNotFound):
		return jsonRPCErrorResponse(c, http.StatusNotFound, id, &protocol.Error{Kind: protocol.ErrInvalidRequest, Message: "unknown session"})
	default:
		return jsonRPCErrorResponse(c, http.StatusInternalServerError, id, protocol.NewInternal(err))
	}
}

func readAll(c echo.Context) ([]byte, error) {
	req := c.Request()
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

// handleGet implements GET /mcp: opens a standalone SSE stream for
// server-initiated notifications, replaying buffered events after
// Last-Event-ID if supplied, then tailing live events until the client
// disconnects.
func (s *Server) handleGet(c echo.Context) error {
	if !validateSSEAccept(c.Request().Header.Get("Accept")) {
		return jsonRPCErrorResponse(c, http.StatusNotAcceptable, jsonrpc.ID{},
			&protocol.Error{Kind: protocol.ErrInvalidRequest, Message: "Accept header must include text/event-stream"})
	}

	sessionID := c.Request().Header.Get(SessionHeader)
	sess, err := s.Sessions.Get(sessionID)
	if err != nil {
		return s.sessionLookupError(c, jsonrpc.ID{}, err)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)

	buffer := sess.Buffer()
	lastEventID := c.Request().Header.Get(LastEventIDHeader)
	if backlog, ok := buffer.ReplayAfter(lastEventID); ok {
		for _, ev := range backlog {
			writeSSEEvent(resp, ev)
		}
		resp.Flush()
	} else {
		fmt.Fprintf(resp, "event: error\ndata: {\"message\":\"event id no longer retained\"}\n\n")
		resp.Flush()
	}

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	live := buffer.Live()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-live:
			writeSSEEvent(resp, ev)
			resp.Flush()
		case <-ticker.C:
			fmt.Fprintf(resp, ": heartbeat\n\n")
			resp.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev session.Event) {
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Kind, ev.Payload)
}

// handleDelete implements DELETE /mcp: explicit session termination.
func (s *Server) handleDelete(c echo.Context) error {
	sessionID := c.Request().Header.Get(SessionHeader)
	if sessionID == "" {
		return c.NoContent(http.StatusBadRequest)
	}
	s.Sessions.Delete(sessionID)
	return c.NoContent(http.StatusNoContent)
}

func logErr(log *logging.Logger, c echo.Context, msg string, err error) {
	if log == nil {
		return
	}
	log.Error(c.Request().Context(), msg, zap.Error(err))
}
