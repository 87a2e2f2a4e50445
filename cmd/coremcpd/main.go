// Coremcpd is an MCP runtime daemon: it negotiates protocol versions,
// enforces capability and auth gates, and serves tools/prompts/
// resources/sampling/elicitation over Streamable HTTP, with legacy SSE
// and WebSocket transports available behind configuration.
//
// Configuration is loaded from environment variables or a config file.
// See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	coremcpd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9090 TRANSPORT_ENABLE_LEGACY_SSE=true coremcpd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/coremcp/coremcp/internal/config"
	"github.com/coremcp/coremcp/internal/http"
	"github.com/coremcp/coremcp/internal/logging"
	"github.com/coremcp/coremcp/internal/mcpserver"
	"github.com/coremcp/coremcp/internal/protocol"
	"github.com/coremcp/coremcp/internal/schema"
	"github.com/coremcp/coremcp/internal/session"
	"github.com/coremcp/coremcp/internal/task"
	"github.com/coremcp/coremcp/internal/telemetry"
	"github.com/coremcp/coremcp/pkg/auth"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  coremcpd           Start the coremcpd daemon\n")
			fmt.Fprintf(os.Stderr, "  coremcpd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("coremcpd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the coremcpd server and blocks until context is cancelled.
//
// This function:
//  1. Loads and validates configuration
//  2. Initializes telemetry and the structured logger
//  3. Builds the protocol runtime, session manager, and task store
//  4. Wires the canonical MCP method set onto the runtime
//  5. Mounts the HTTP transports and starts serving
//  6. Performs graceful shutdown on context cancellation
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile("")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := initTelemetry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := logging.NewLogger(logging.NewDefaultConfig(), tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "Starting coremcpd",
		zap.Int("port", cfg.Server.Port),
		zap.String("service", cfg.Observability.ServiceName),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	validator := schema.NewValidator()
	gate := &protocol.CapabilityGate{Strict: cfg.Production.Enabled}
	caps := &protocol.CapabilitySet{
		ServerTools:     true,
		ServerPrompts:   true,
		ServerResources: true,
		ServerLogging:   true,
		ServerTasks:     true,
	}
	runtime := protocol.NewRuntime(validator, gate, caps)

	sessions := session.NewManager(cfg.Session.MaxSessions, cfg.Session.IdleTimeout, cfg.Session.EventBufferCapacity)
	defer sessions.Close()

	tasks := task.NewMemoryStore(cfg.Session.IdleTimeout, nil)
	notifier := &mcpserver.SessionNotifier{Sessions: sessions}

	mcpserver.NewServer(runtime, sessions, tasks, validator, mcpserver.ServerInfo{
		Name:    cfg.Observability.ServiceName,
		Version: version,
	}, notifier)

	httpCfg := &http.Config{
		Host:            cfg.Server.BindHost,
		Port:            cfg.Server.Port,
		Version:         version,
		EnableLegacySSE: cfg.Transport.EnableLegacySSE,
		EnableWebSocket: cfg.Transport.EnableWebSocket,
		AllowedOrigins:  cfg.Transport.AllowedOrigins,
		Auth:            authGate(cfg),
	}

	srv, err := http.NewServer(runtime, sessions, logger, logger.Underlying(), httpCfg)
	if err != nil {
		return fmt.Errorf("failed to build http server: %w", err)
	}

	logger.Info(ctx, "Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("mcp_endpoint", "/mcp"),
		zap.Bool("legacy_sse", cfg.Transport.EnableLegacySSE),
		zap.Bool("websocket", cfg.Transport.EnableWebSocket))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// initTelemetry builds the OpenTelemetry providers from cfg.Observability.
func initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Observability.EnableTelemetry
	telCfg.ServiceName = cfg.Observability.ServiceName
	if cfg.Observability.OTLPEndpoint != "" {
		telCfg.Endpoint = cfg.Observability.OTLPEndpoint
	}
	telCfg.Insecure = cfg.Observability.OTLPInsecure
	telCfg.Protocol = cfg.Observability.OTLPProtocol
	telCfg.TLSSkipVerify = cfg.Observability.OTLPTLSSkipVerify
	return telemetry.New(ctx, telCfg)
}

// authGate builds the bearer-auth gate from cfg.Auth, or nil when auth
// is disabled (every transport is then open). Token verification prefers
// OAuth introspection when an introspection endpoint is configured, and
// otherwise checks only that a non-empty bearer token was presented.
func authGate(cfg *config.Config) *auth.GateConfig {
	if !cfg.Auth.Enabled {
		return nil
	}

	var verifier auth.OAuthTokenVerifier
	if cfg.Auth.IntrospectionURL != "" {
		verifier = auth.NewIntrospectionVerifier(cfg.Auth.IntrospectionURL, cfg.Auth.TokenURL, cfg.Auth.ClientID, cfg.Auth.ClientSecret.Value())
	} else {
		verifier = auth.NewStaticVerifier(cfg.Auth.RequiredScopes...)
	}

	return &auth.GateConfig{
		Verifier:            verifier,
		RequiredScopes:      cfg.Auth.RequiredScopes,
		ResourceMetadataURL: cfg.Auth.ResourceMetadataURL,
	}
}
