// Package config is the public, importable configuration surface for
// embedding the MCP runtime as a library. internal/config carries the
// full daemon configuration (env parsing, file loading, production
// safety gates); this package exposes a small functional-options
// builder over it for callers outside this module.
package config

import (
	"time"

	internalconfig "github.com/coremcp/coremcp/internal/config"
)

// Config is the subset of runtime configuration a library caller can
// set directly, without going through environment variables or a
// config file.
type Config struct {
	Port                 int
	ShutdownTimeout       time.Duration
	SessionIdleTimeout    time.Duration
	MaxSessions           int
	EventBufferCapacity   int
	SupportedVersions     []string
	DefaultVersion        string
	AllowedOrigins        []string
	EnableLegacySSE       bool
	EnableWebSocket       bool
	AuthEnabled           bool
	AuthRequiredScopes    []string
}

// Option configures a Config.
type Option func(*Config)

// WithPort sets the HTTP listen port.
func WithPort(port int) Option {
	return func(c *Config) { c.Port = port }
}

// WithSessionLimits sets session idle timeout, max session count, and
// per-session event buffer capacity.
func WithSessionLimits(idleTimeout time.Duration, maxSessions, eventBufferCapacity int) Option {
	return func(c *Config) {
		c.SessionIdleTimeout = idleTimeout
		c.MaxSessions = maxSessions
		c.EventBufferCapacity = eventBufferCapacity
	}
}

// WithProtocolVersions sets the supported protocol versions and the
// default negotiated version carried into internal/config's
// TransportConfig. The initialize handler in internal/mcpserver reads
// neither; it answers an unknown version with its own newest one.
func WithProtocolVersions(supported []string, defaultVersion string) Option {
	return func(c *Config) {
		c.SupportedVersions = supported
		c.DefaultVersion = defaultVersion
	}
}

// WithAllowedOrigins restricts which Origin header values the HTTP
// transports accept.
func WithAllowedOrigins(origins ...string) Option {
	return func(c *Config) { c.AllowedOrigins = origins }
}

// WithTransports toggles the optional legacy SSE and WebSocket
// transports. Streamable HTTP is always mounted.
func WithTransports(legacySSE, webSocket bool) Option {
	return func(c *Config) {
		c.EnableLegacySSE = legacySSE
		c.EnableWebSocket = webSocket
	}
}

// WithAuth enables the bearer-token gate and sets the scopes it
// requires. Callers still need to supply a pkg/auth.OAuthTokenVerifier
// when wiring the gate; this only toggles it on and names the scopes.
func WithAuth(requiredScopes ...string) Option {
	return func(c *Config) {
		c.AuthEnabled = true
		c.AuthRequiredScopes = requiredScopes
	}
}

// New builds a Config from defaults plus the given options.
func New(opts ...Option) *Config {
	c := &Config{
		Port:                8080,
		ShutdownTimeout:     10 * time.Second,
		SessionIdleTimeout:  30 * time.Minute,
		MaxSessions:         1000,
		EventBufferCapacity: 256,
		SupportedVersions:   []string{"2025-11-25", "2025-06-18", "2025-03-26"},
		DefaultVersion:      "2025-03-26",
		EnableWebSocket:     true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToInternal converts a library Config into the full daemon
// internal/config.Config, filling in observability/production defaults
// via internal/config.Load() for every field this package doesn't
// expose.
func (c *Config) ToInternal() *internalconfig.Config {
	full := internalconfig.Load()
	full.Server.Port = c.Port
	full.Server.ShutdownTimeout = c.ShutdownTimeout
	full.Session.IdleTimeout = c.SessionIdleTimeout
	full.Session.MaxSessions = c.MaxSessions
	full.Session.EventBufferCapacity = c.EventBufferCapacity
	full.Transport.SupportedProtocolVersions = c.SupportedVersions
	full.Transport.DefaultNegotiatedVersion = c.DefaultVersion
	full.Transport.AllowedOrigins = c.AllowedOrigins
	full.Transport.EnableLegacySSE = c.EnableLegacySSE
	full.Transport.EnableWebSocket = c.EnableWebSocket
	full.Auth.Enabled = c.AuthEnabled
	full.Auth.RequiredScopes = c.AuthRequiredScopes
	return full
}

// Validate validates the configuration by converting it and running
// the full daemon validator against it.
func (c *Config) Validate() error {
	return c.ToInternal().Validate()
}
