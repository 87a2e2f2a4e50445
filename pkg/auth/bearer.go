// Package auth implements the bearer-token gate: an echo.MiddlewareFunc
// that extracts the Authorization header, hands the token to a
// caller-supplied OAuthTokenVerifier, and enforces scope/expiration
// before allowing the request through. The gate never talks to an
// authorization server itself, since verification is delegated to the
// OAuthTokenVerifier; it only checks whatever token arrives.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// contextKey avoids collisions with other packages' echo.Context keys.
type contextKey string

// authInfoKey is where the verified AuthInfo is stored for downstream
// handlers once a request passes the gate.
const authInfoKey contextKey = "mcp_auth_info"

// AuthInfo is the result of a successful token verification.
type AuthInfo struct {
	Subject   string
	Scopes    []string
	ExpiresAt *time.Time
}

// HasScope reports whether scope is present among the token's granted
// scopes.
func (a AuthInfo) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Expired reports whether the token's ExpiresAt, if set, is in the past.
func (a AuthInfo) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// ErrInvalidToken is returned by an OAuthTokenVerifier when the token is
// malformed, unknown, or otherwise rejected outright.
var ErrInvalidToken = errors.New("auth: invalid token")

// OAuthTokenVerifier is the collaborator contract: given a
// bearer token, return the AuthInfo it grants or ErrInvalidToken (or any
// other error, treated the same way) if it does not verify.
type OAuthTokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (AuthInfo, error)
}

// GateConfig configures the bearer-token middleware.
type GateConfig struct {
	Verifier OAuthTokenVerifier

	// RequiredScopes, if non-empty, must all be present on the verified
	// token for the request to proceed.
	RequiredScopes []string

	// ResourceMetadataURL is advertised in the WWW-Authenticate header
	// per RFC 9728, pointing clients at the protected resource metadata
	// document.
	ResourceMetadataURL string
}

// ExtractAuthInfo returns the AuthInfo the gate stored on c, if any.
func ExtractAuthInfo(c echo.Context) (AuthInfo, bool) {
	info, ok := c.Get(string(authInfoKey)).(AuthInfo)
	return info, ok
}

// BearerAuthMiddleware builds the RFC 6750 bearer-token gate: it reads
// the Authorization header, verifies the token via cfg.Verifier,
// rejects expired tokens or tokens missing a required scope, and on any
// failure responds 401 with a WWW-Authenticate challenge and a JSON
// error body.
func BearerAuthMiddleware(cfg GateConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := extractBearerToken(c.Request().Header.Get("Authorization"))
			if !ok {
				return unauthorized(c, cfg, "invalid_token", "missing or malformed Authorization header")
			}

			info, err := cfg.Verifier.VerifyAccessToken(c.Request().Context(), token)
			if err != nil {
				return unauthorized(c, cfg, "invalid_token", "token verification failed")
			}

			if info.Expired(time.Now()) {
				return unauthorized(c, cfg, "invalid_token", "token expired")
			}

			for _, scope := range cfg.RequiredScopes {
				if !info.HasScope(scope) {
					return unauthorized(c, cfg, "insufficient_scope", fmt.Sprintf("missing required scope %q", scope))
				}
			}

			c.Set(string(authInfoKey), info)
			return next(c)
		}
	}
}

func extractBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(c echo.Context, cfg GateConfig, code, detail string) error {
	challenge := fmt.Sprintf(`Bearer error=%q`, code)
	if cfg.ResourceMetadataURL != "" {
		challenge += fmt.Sprintf(`, resource_metadata=%q`, cfg.ResourceMetadataURL)
	}
	c.Response().Header().Set("WWW-Authenticate", challenge)

	return c.JSON(http.StatusUnauthorized, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": "authentication failed",
			"data": map[string]interface{}{
				"details": detail,
			},
		},
	})
}
