package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c := New()
	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, 10*time.Second, c.ShutdownTimeout)
	assert.Equal(t, 30*time.Minute, c.SessionIdleTimeout)
	assert.True(t, c.EnableWebSocket)
	assert.False(t, c.EnableLegacySSE)
	assert.False(t, c.AuthEnabled)
}

func TestWithPort(t *testing.T) {
	c := New(WithPort(9999))
	assert.Equal(t, 9999, c.Port)
}

func TestWithSessionLimits(t *testing.T) {
	c := New(WithSessionLimits(time.Hour, 50, 64))
	assert.Equal(t, time.Hour, c.SessionIdleTimeout)
	assert.Equal(t, 50, c.MaxSessions)
	assert.Equal(t, 64, c.EventBufferCapacity)
}

func TestWithProtocolVersions(t *testing.T) {
	c := New(WithProtocolVersions([]string{"2025-06-18"}, "2025-06-18"))
	assert.Equal(t, []string{"2025-06-18"}, c.SupportedVersions)
	assert.Equal(t, "2025-06-18", c.DefaultVersion)
}

func TestWithTransports(t *testing.T) {
	c := New(WithTransports(true, false))
	assert.True(t, c.EnableLegacySSE)
	assert.False(t, c.EnableWebSocket)
}

func TestWithAuth(t *testing.T) {
	c := New(WithAuth("tools:call", "prompts:get"))
	assert.True(t, c.AuthEnabled)
	assert.Equal(t, []string{"tools:call", "prompts:get"}, c.AuthRequiredScopes)
}

func TestToInternalCarriesOverrides(t *testing.T) {
	c := New(WithPort(9191), WithAuth("admin"))
	full := c.ToInternal()
	assert.Equal(t, 9191, full.Server.Port)
	assert.True(t, full.Auth.Enabled)
	assert.Equal(t, []string{"admin"}, full.Auth.RequiredScopes)
}

func TestValidateRejectsBadPort(t *testing.T) {
	c := New(WithPort(0))
	require.Error(t, c.Validate())
}

func TestValidateAcceptsDefaults(t *testing.T) {
	c := New()
	require.NoError(t, c.Validate())
}
