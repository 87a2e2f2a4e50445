package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(authHeader string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestBearerAuthMiddlewareSuccess(t *testing.T) {
	c, rec := newTestContext("Bearer good-token")
	cfg := GateConfig{Verifier: NewStaticVerifier("tools:call")}

	var captured AuthInfo
	handler := func(c echo.Context) error {
		info, ok := ExtractAuthInfo(c)
		require.True(t, ok)
		captured = info
		return c.String(http.StatusOK, "ok")
	}

	h := BearerAuthMiddleware(cfg)(handler)
	require.NoError(t, h(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, captured.Subject)
	assert.True(t, captured.HasScope("tools:call"))
}

func TestBearerAuthMiddlewareMissingHeader(t *testing.T) {
	c, rec := newTestContext("")
	cfg := GateConfig{Verifier: NewStaticVerifier()}

	h := BearerAuthMiddleware(cfg)(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	require.NoError(t, h(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
}

func TestBearerAuthMiddlewareMalformedHeader(t *testing.T) {
	c, rec := newTestContext("Basic dXNlcjpwYXNz")
	cfg := GateConfig{Verifier: NewStaticVerifier()}

	h := BearerAuthMiddleware(cfg)(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	require.NoError(t, h(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuthMiddlewareInsufficientScope(t *testing.T) {
	c, rec := newTestContext("Bearer good-token")
	cfg := GateConfig{
		Verifier:       NewStaticVerifier("tools:call"),
		RequiredScopes: []string{"admin"},
	}

	h := BearerAuthMiddleware(cfg)(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	require.NoError(t, h(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="insufficient_scope"`)
}

func TestBearerAuthMiddlewareResourceMetadataOnChallenge(t *testing.T) {
	c, rec := newTestContext("")
	cfg := GateConfig{
		Verifier:            NewStaticVerifier(),
		ResourceMetadataURL: "https://example.com/.well-known/oauth-protected-resource",
	}

	h := BearerAuthMiddleware(cfg)(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	require.NoError(t, h(c))
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "resource_metadata=")
}

type rejectingVerifier struct{}

func (rejectingVerifier) VerifyAccessToken(context.Context, string) (AuthInfo, error) {
	return AuthInfo{}, ErrInvalidToken
}

func TestBearerAuthMiddlewareVerifierRejects(t *testing.T) {
	c, rec := newTestContext("Bearer whatever")
	cfg := GateConfig{Verifier: rejectingVerifier{}}

	h := BearerAuthMiddleware(cfg)(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	require.NoError(t, h(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
