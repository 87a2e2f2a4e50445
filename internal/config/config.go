// Package config provides configuration loading for the MCP runtime.
//
// Configuration is loaded from a YAML or TOML file, then overridden by
// environment variables, with sensible defaults for everything else.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete runtime configuration.
type Config struct {
	Production    ProductionConfig
	Server        ServerConfig
	Observability ObservabilityConfig
	Session       SessionConfig
	Transport     TransportConfig
	Auth          AuthConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds the HTTP daemon's listen and shutdown configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	BindHost        string        `koanf:"bind_host"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// TLSCertFile/TLSKeyFile are checked for path traversal and must both
	// be set when Production.RequireTLS is true. The HTTP server does not
	// load them; it always serves plain HTTP.
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry   bool   `koanf:"enable_telemetry"`
	ServiceName       string `koanf:"service_name"`
	OTLPEndpoint      string `koanf:"otlp_endpoint"`        // OTLP endpoint (default: localhost:4317)
	OTLPProtocol      string `koanf:"otlp_protocol"`        // "grpc" or "http/protobuf" (default: grpc)
	OTLPInsecure      bool   `koanf:"otlp_insecure"`        // Use insecure connection (default: false)
	OTLPTLSSkipVerify bool   `koanf:"otlp_tls_skip_verify"` // Skip TLS verification for internal CAs
}

// SessionConfig controls internal/session.Manager's lifecycle limits,
//
type SessionConfig struct {
	// IdleTimeout expires a session with no activity for this long.
	// Zero disables idle expiry.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// MaxSessions caps concurrently open sessions. Zero means unlimited.
	MaxSessions int `koanf:"max_sessions"`

	// EventBufferCapacity bounds each session's EventBuffer ring size.
	EventBufferCapacity int `koanf:"event_buffer_capacity"`
}

// TransportConfig controls protocol version negotiation and which
// transports/origins are enabled,
type TransportConfig struct {
	// SupportedProtocolVersions lists protocol versions, newest first.
	// Validate checks DefaultNegotiatedVersion against it. The initialize
	// handler in internal/mcpserver negotiates from its own
	// SupportedProtocolVersions list and does not read this one.
	SupportedProtocolVersions []string `koanf:"supported_protocol_versions"`

	// DefaultNegotiatedVersion must be one of SupportedProtocolVersions.
	// internal/mcpserver does not read it: a requested version it does
	// not support is answered with that package's newest version.
	DefaultNegotiatedVersion string `koanf:"default_negotiated_version"`

	// AllowedOrigins restricts the Origin header accepted by the HTTP
	// transports, guarding against DNS-rebinding attacks. Empty means
	// unrestricted (same-process/dev use only).
	AllowedOrigins []string `koanf:"allowed_origins"`

	// EnableLegacySSE mounts the pre-2025-03-26 GET /sse + POST /sse/message
	// transport alongside Streamable HTTP.
	EnableLegacySSE bool `koanf:"enable_legacy_sse"`

	// EnableWebSocket mounts the WebSocket transport.
	EnableWebSocket bool `koanf:"enable_websocket"`
}

// AuthConfig controls the bearer-token gate
type AuthConfig struct {
	// Enabled turns on BearerAuthMiddleware for the HTTP transports.
	Enabled bool `koanf:"enabled"`

	// RequiredScopes must all be present on a verified token.
	RequiredScopes []string `koanf:"required_scopes"`

	// ResourceMetadataURL is advertised in WWW-Authenticate challenges.
	ResourceMetadataURL string `koanf:"resource_metadata_url"`

	// IntrospectionURL, TokenURL, ClientID, ClientSecret configure
	// pkg/auth.IntrospectionVerifier. Leave IntrospectionURL empty to
	// use pkg/auth.StaticVerifier instead (dev/test only).
	IntrospectionURL string `koanf:"introspection_url"`
	TokenURL         string `koanf:"token_url"`
	ClientID         string `koanf:"client_id"`
	ClientSecret     Secret `koanf:"client_secret"`
}

// RateLimitConfig holds token-bucket rate-limit settings. They are
// defaulted and validated here; no HTTP transport installs a limiter
// from them.
type RateLimitConfig struct {
	Enabled           bool    `koanf:"enabled"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// Load loads configuration from environment variables with defaults.
//
// Quick Start - commonly configured env vars:
//
//   - SERVER_PORT: HTTP server port (default: 8080)
//   - SESSION_IDLE_TIMEOUT: session idle expiry (default: 30m)
//   - SESSION_MAX_SESSIONS: session cap (default: 1000)
//   - TRANSPORT_ENABLE_LEGACY_SSE: mount the legacy SSE transport (default: false)
//   - TRANSPORT_ENABLE_WEBSOCKET: mount the WebSocket transport (default: true)
//   - AUTH_ENABLED: require a bearer token on every HTTP request (default: false)
//   - MCP_PRODUCTION_MODE: enable production safety checks (default: false)
func Load() *Config {
	cfg := &Config{
		Production: ProductionConfig{
			Enabled:               getEnvBool("MCP_PRODUCTION_MODE", false),
			LocalModeAcknowledged: getEnvBool("MCP_LOCAL_MODE", false),
			RequireAuthentication: getEnvBool("MCP_REQUIRE_AUTH", false),
			RequireTLS:            getEnvBool("MCP_REQUIRE_TLS", false),
			AllowNoIsolation:      getEnvBool("MCP_ALLOW_NO_ISOLATION", false),
		},
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8080),
			BindHost:        getEnvString("SERVER_BIND_HOST", "0.0.0.0"),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TLSCertFile:     getEnvString("SERVER_TLS_CERT_FILE", ""),
			TLSKeyFile:      getEnvString("SERVER_TLS_KEY_FILE", ""),
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: getEnvBool("OTEL_ENABLE", false),
			ServiceName:     getEnvString("OTEL_SERVICE_NAME", "coremcpd"),
		},
		Session: SessionConfig{
			IdleTimeout:         getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			MaxSessions:         getEnvInt("SESSION_MAX_SESSIONS", 1000),
			EventBufferCapacity: getEnvInt("SESSION_EVENT_BUFFER_CAPACITY", 256),
		},
		Transport: TransportConfig{
			SupportedProtocolVersions: getEnvStringSlice("TRANSPORT_SUPPORTED_PROTOCOL_VERSIONS",
				[]string{"2025-11-25", "2025-06-18", "2025-03-26"}),
			DefaultNegotiatedVersion: getEnvString("TRANSPORT_DEFAULT_NEGOTIATED_VERSION", "2025-03-26"),
			AllowedOrigins:           getEnvStringSlice("TRANSPORT_ALLOWED_ORIGINS", nil),
			EnableLegacySSE:          getEnvBool("TRANSPORT_ENABLE_LEGACY_SSE", false),
			EnableWebSocket:          getEnvBool("TRANSPORT_ENABLE_WEBSOCKET", true),
		},
		Auth: AuthConfig{
			Enabled:              getEnvBool("AUTH_ENABLED", false),
			RequiredScopes:       getEnvStringSlice("AUTH_REQUIRED_SCOPES", nil),
			ResourceMetadataURL:  getEnvString("AUTH_RESOURCE_METADATA_URL", ""),
			IntrospectionURL:     getEnvString("AUTH_INTROSPECTION_URL", ""),
			TokenURL:             getEnvString("AUTH_TOKEN_URL", ""),
			ClientID:             getEnvString("AUTH_CLIENT_ID", ""),
			ClientSecret:         Secret(getEnvString("AUTH_CLIENT_SECRET", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("RATELIMIT_ENABLED", true),
			RequestsPerSecond: getEnvFloat("RATELIMIT_REQUESTS_PER_SECOND", 50),
			Burst:             getEnvInt("RATELIMIT_BURST", 100),
		},
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Server.BindHost != "" {
		if err := validateHostname(c.Server.BindHost); err != nil {
			return fmt.Errorf("invalid server bind_host: %w", err)
		}
	}

	if c.Server.TLSCertFile != "" {
		if err := validatePath(c.Server.TLSCertFile); err != nil {
			return fmt.Errorf("invalid server tls_cert_file: %w", err)
		}
	}
	if c.Server.TLSKeyFile != "" {
		if err := validatePath(c.Server.TLSKeyFile); err != nil {
			return fmt.Errorf("invalid server tls_key_file: %w", err)
		}
	}

	if c.Production.Enabled && c.Production.RequireTLS {
		if c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "" {
			return errors.New("SECURITY: production mode requires TLS but tls_cert_file/tls_key_file are not set")
		}
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	if c.Session.MaxSessions < 0 {
		return errors.New("session max_sessions must be non-negative")
	}
	if c.Session.EventBufferCapacity < 0 {
		return errors.New("session event_buffer_capacity must be non-negative")
	}

	if len(c.Transport.SupportedProtocolVersions) == 0 {
		return errors.New("transport supported_protocol_versions must not be empty")
	}
	if !containsString(c.Transport.SupportedProtocolVersions, c.Transport.DefaultNegotiatedVersion) {
		return fmt.Errorf("transport default_negotiated_version %q is not among supported_protocol_versions",
			c.Transport.DefaultNegotiatedVersion)
	}
	for _, origin := range c.Transport.AllowedOrigins {
		if err := validateURL(origin); err != nil {
			return fmt.Errorf("invalid transport allowed_origins entry %q: %w", origin, err)
		}
	}

	if c.Auth.Enabled && c.Auth.IntrospectionURL != "" {
		if err := validateURL(c.Auth.IntrospectionURL); err != nil {
			return fmt.Errorf("invalid auth introspection_url: %w", err)
		}
		if err := validateURL(c.Auth.TokenURL); err != nil {
			return fmt.Errorf("invalid auth token_url: %w", err)
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return errors.New("ratelimit requests_per_second must be positive when enabled")
	}

	if err := c.Production.Validate(); err != nil {
		return fmt.Errorf("production config validation failed: %w", err)
	}

	return nil
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := make([]string, 0)
		for _, part := range splitAndTrim(value, ",") {
			if part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		result = append(result, trimmed)
	}
	return result
}

// ProductionConfig holds production deployment configuration.
type ProductionConfig struct {
	// Enabled indicates whether production mode is active.
	// Set via MCP_PRODUCTION_MODE=1 environment variable.
	Enabled bool `koanf:"enabled"`

	// LocalModeAcknowledged allows development features in production mode.
	// Set via MCP_LOCAL_MODE=1 environment variable.
	// Use only for local development/testing.
	LocalModeAcknowledged bool `koanf:"local_mode_acknowledged"`

	// RequireAuthentication enforces the bearer-token gate in production.
	RequireAuthentication bool `koanf:"require_authentication"`

	// AuthenticationConfigured indicates if auth is properly set up.
	AuthenticationConfigured bool `koanf:"authentication_configured"`

	// RequireTLS makes Config.Validate reject a production config whose
	// Server.TLSCertFile or Server.TLSKeyFile is empty.
	RequireTLS bool `koanf:"require_tls"`

	// AllowNoIsolation permits running without session isolation
	// (testing only). Always false in production mode.
	AllowNoIsolation bool `koanf:"allow_no_isolation"`
}

// IsProduction returns true if running in production mode.
func (c *ProductionConfig) IsProduction() bool {
	return c.Enabled
}

// IsLocal returns true if local mode is acknowledged.
func (c *ProductionConfig) IsLocal() bool {
	return c.LocalModeAcknowledged
}

// Validate checks production configuration for security issues.
func (c *ProductionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.AllowNoIsolation {
		return fmt.Errorf("SECURITY: NoIsolation mode cannot be enabled in production")
	}

	if c.RequireAuthentication && !c.AuthenticationConfigured {
		return fmt.Errorf("SECURITY: RequireAuthentication enabled but authentication not configured")
	}

	return nil
}

// validateHostname checks if a hostname is safe (no command injection attempts).
// Uses positive validation with net.ParseIP for IP addresses and regexp for hostnames.
func validateHostname(host string) error {
	if host == "" {
		return nil
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format: %s", host)
	}

	invalidChars := []string{";", "\n", "\r", "$", "`", "|", "&", "<", ">", "(", ")"}
	for _, char := range invalidChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("invalid hostname: contains forbidden character %q", char)
		}
	}
	return nil
}

// validatePath checks if a path is safe (no path traversal).
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}

	if filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		origDepth := strings.Count(path, string(filepath.Separator))
		cleanDepth := strings.Count(clean, string(filepath.Separator))

		if cleanDepth < origDepth-1 {
			return fmt.Errorf("path traversal detected: %s (resolves to %s)", path, clean)
		}
	}

	return nil
}

// validateURL checks if a URL uses allowed schemes (http/https only).
func validateURL(urlStr string) error {
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return fmt.Errorf("URL must use http:// or https:// scheme, got: %s", urlStr)
	}
	return nil
}
