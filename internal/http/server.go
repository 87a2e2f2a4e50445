// Package http hosts the MCP transports (Streamable HTTP, legacy SSE,
// WebSocket) behind a single Echo instance, plus health and metrics
// endpoints.
package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coremcp/coremcp/internal/logging"
	"github.com/coremcp/coremcp/internal/protocol"
	"github.com/coremcp/coremcp/internal/session"
	"github.com/coremcp/coremcp/internal/transport/legacysse"
	"github.com/coremcp/coremcp/internal/transport/streamablehttp"
	"github.com/coremcp/coremcp/internal/transport/websocket"
	"github.com/coremcp/coremcp/pkg/auth"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string

	// EnableLegacySSE/EnableWebSocket mount the optional transports
	// alongside the always-on Streamable HTTP transport.
	EnableLegacySSE bool
	EnableWebSocket bool

	// AllowedOrigins restricts the Origin header accepted by the
	// Streamable HTTP and WebSocket transports. Empty disables the
	// check.
	AllowedOrigins []string

	// Auth, when non-nil, gates every mounted transport behind a bearer
	// token
	Auth *auth.GateConfig
}

// Server hosts the MCP transports behind a single Echo instance.
type Server struct {
	echo    *echo.Echo
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// NewServer wires runtime and sessions into the Streamable HTTP
// transport (always mounted) plus the legacy SSE and WebSocket
// transports (mounted when Config enables them), behind shared
// recovery/request-ID/metrics middleware and an optional bearer-auth
// gate.
func NewServer(runtime *protocol.Runtime, sessions *session.Manager, log *logging.Logger, zapLogger *zap.Logger, cfg *Config) (*Server, error) {
	if runtime == nil {
		return nil, fmt.Errorf("runtime cannot be nil")
	}
	if sessions == nil {
		return nil, fmt.Errorf("sessions cannot be nil")
	}
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{Host: "0.0.0.0", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	httpMetrics := NewHTTPMetrics(zapLogger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(httpMetrics.MetricsMiddleware())

	if cfg.Auth != nil {
		e.Use(auth.BearerAuthMiddleware(*cfg.Auth))
	}

	s := &Server{
		echo:    e,
		logger:  zapLogger,
		config:  cfg,
		metrics: httpMetrics,
	}

	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	streamableSrv := streamablehttp.NewServer(runtime, sessions, log)
	streamableSrv.AllowedOrigins = cfg.AllowedOrigins
	streamableSrv.Register(s.echo.Group(""))

	if cfg.EnableLegacySSE {
		legacysse.NewServer(runtime, sessions, "/sse").Register(s.echo.Group(""))
	}

	if cfg.EnableWebSocket {
		wsSrv := websocket.NewServer(runtime, sessions, log)
		if len(cfg.AllowedOrigins) > 0 {
			allowed := make(map[string]bool, len(cfg.AllowedOrigins))
			for _, o := range cfg.AllowedOrigins {
				allowed[o] = true
			}
			wsSrv.SetCheckOrigin(func(r *http.Request) bool {
				return allowed[r.Header.Get("Origin")]
			})
		}
		s.echo.Any("/ws", echo.WrapHandler(wsSrv))
	}

	return s, nil
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: s.config.Version})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance for registering additional
// routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
