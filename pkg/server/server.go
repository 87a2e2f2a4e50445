// Package server provides a library-embeddable MCP server: a thin
// wrapper over internal/http that takes a pkg/config.Config, wires a
// protocol runtime with the tools, prompts, resources, logging and tasks
// server capabilities enabled, and exposes that
// runtime so callers can register their own tool/prompt/resource
// handlers before starting.
package server

import (
	"context"
	"fmt"
	"net/http"

	internalhttp "github.com/coremcp/coremcp/internal/http"
	"github.com/coremcp/coremcp/internal/logging"
	"github.com/coremcp/coremcp/internal/protocol"
	"github.com/coremcp/coremcp/internal/schema"
	"github.com/coremcp/coremcp/internal/session"
	"github.com/coremcp/coremcp/pkg/config"
	"github.com/labstack/echo/v4"
)

// Server is an embeddable MCP server built from a pkg/config.Config.
type Server struct {
	config  *config.Config
	runtime *protocol.Runtime
	inner   *internalhttp.Server
}

// NewServer builds a Server from cfg. The returned server's Runtime
// accepts tools, prompts, resources, logging and tasks out of the box;
// register handlers on it via Runtime().RegisterRequestHandler before
// calling Start.
//
// Example:
//
//	cfg := config.New(config.WithPort(8080))
//	srv, err := server.NewServer(cfg)
//	srv.Runtime().RegisterRequestHandler("tools/call", "ToolsCallRequest", myToolHandler)
//	if err := srv.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		cfg = config.New()
	}
	full := cfg.ToInternal()

	log, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	validator := schema.NewValidator()
	gate := &protocol.CapabilityGate{Strict: false}
	caps := &protocol.CapabilitySet{
		ServerTools:     true,
		ServerPrompts:   true,
		ServerResources: true,
		ServerLogging:   true,
		ServerTasks:     true,
	}
	runtime := protocol.NewRuntime(validator, gate, caps)

	sessions := session.NewManager(full.Session.MaxSessions, full.Session.IdleTimeout, full.Session.EventBufferCapacity)

	httpCfg := &internalhttp.Config{
		Host:            full.Server.BindHost,
		Port:            full.Server.Port,
		EnableLegacySSE: full.Transport.EnableLegacySSE,
		EnableWebSocket: full.Transport.EnableWebSocket,
		AllowedOrigins:  full.Transport.AllowedOrigins,
	}
	inner, err := internalhttp.NewServer(runtime, sessions, log, log.Underlying(), httpCfg)
	if err != nil {
		return nil, fmt.Errorf("build http server: %w", err)
	}

	return &Server{config: cfg, runtime: runtime, inner: inner}, nil
}

// Runtime returns the protocol runtime backing this server, so callers
// can register tool/prompt/resource/sampling handlers before Start.
func (s *Server) Runtime() *protocol.Runtime {
	return s.runtime
}

// Echo returns the underlying Echo instance for registering additional
// routes beyond the mounted MCP transports.
func (s *Server) Echo() *echo.Echo {
	return s.inner.Echo()
}

// Start starts the HTTP server and blocks until ctx is cancelled, then
// performs a graceful shutdown bounded by the configured shutdown
// timeout.
//
// Returns http.ErrServerClosed on graceful shutdown, or any other
// error encountered during startup or shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.inner.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.inner.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}

		return http.ErrServerClosed
	}
}
