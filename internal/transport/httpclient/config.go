// Package httpclient holds the client-side configuration and
// reconnection state machine shared by the Streamable HTTP and legacy
// SSE transports: where to dial, how long to wait on a request, and
// how to back off when the connection drops. Plain exported struct
// fields set via a constructor with defaults, matching this repo's
// koanf-tagged config idiom rather than a builder chain.
package httpclient

import (
	"strings"
	"time"
)

// Config is the client-side configuration for dialing an MCP server
// over Streamable HTTP or legacy SSE.
type Config struct {
	// BaseURL is the server's origin, e.g. "http://localhost:8080".
	BaseURL string `koanf:"base_url"`

	// EndpointPath is the MCP request path, default "/mcp".
	EndpointPath string `koanf:"endpoint_path"`

	// RequestTimeout bounds a single POST round trip.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// SSETimeout bounds an open GET stream; zero means no timeout.
	SSETimeout time.Duration `koanf:"sse_timeout"`

	// CustomHeaders are added to every outgoing request.
	CustomHeaders map[string]string `koanf:"custom_headers"`

	// AutoReconnect enables the Reconnect state machine on stream drop.
	AutoReconnect bool `koanf:"auto_reconnect"`

	// Reconnect controls backoff behavior when AutoReconnect is set.
	Reconnect ReconnectOptions `koanf:"reconnect"`
}

// NewConfig returns a Config for baseURL with the defaults:
// "/mcp" endpoint, 30s request timeout, no SSE timeout, auto-reconnect
// on with the default backoff schedule.
func NewConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		EndpointPath:   "/mcp",
		RequestTimeout: 30 * time.Second,
		CustomHeaders:  make(map[string]string),
		AutoReconnect:  true,
		Reconnect:      DefaultReconnectOptions(),
	}
}

// EndpointURL joins BaseURL and EndpointPath into the full request URL.
func (c Config) EndpointURL() string {
	base := strings.TrimRight(c.BaseURL, "/")
	path := c.EndpointPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
