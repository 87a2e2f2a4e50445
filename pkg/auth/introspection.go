package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// introspectionResponse is the RFC 7662 token introspection response
// shape, trimmed to the fields AuthInfo needs.
type introspectionResponse struct {
	Active    bool   `json:"active"`
	Subject   string `json:"sub"`
	Scope     string `json:"scope"`
	ExpiresAt int64  `json:"exp"`
}

// IntrospectionVerifier implements OAuthTokenVerifier against an RFC
// 7662 token introspection endpoint, authenticating itself to that
// endpoint via OAuth2 client-credentials. It only acts as a client of
// the authorization server; it never implements one.
type IntrospectionVerifier struct {
	IntrospectionURL string
	httpClient       *http.Client
}

// NewIntrospectionVerifier builds a verifier that authenticates to
// introspectionURL using clientID/clientSecret via the OAuth2
// client-credentials grant against tokenURL.
func NewIntrospectionVerifier(introspectionURL, tokenURL, clientID, clientSecret string) *IntrospectionVerifier {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return &IntrospectionVerifier{
		IntrospectionURL: introspectionURL,
		httpClient:       cfg.Client(context.Background()),
	}
}

// VerifyAccessToken implements OAuthTokenVerifier by POSTing the token
// to the introspection endpoint and translating an active=true response
// into AuthInfo.
func (v *IntrospectionVerifier) VerifyAccessToken(ctx context.Context, token string) (AuthInfo, error) {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.IntrospectionURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return AuthInfo{}, fmt.Errorf("auth: build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return AuthInfo{}, fmt.Errorf("auth: introspection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return AuthInfo{}, fmt.Errorf("auth: introspection endpoint returned %d", resp.StatusCode)
	}

	var ir introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return AuthInfo{}, fmt.Errorf("auth: decode introspection response: %w", err)
	}
	if !ir.Active {
		return AuthInfo{}, ErrInvalidToken
	}

	info := AuthInfo{Subject: ir.Subject}
	if ir.Scope != "" {
		info.Scopes = splitScope(ir.Scope)
	}
	if ir.ExpiresAt > 0 {
		t := time.Unix(ir.ExpiresAt, 0)
		info.ExpiresAt = &t
	}
	return info, nil
}

func splitScope(scope string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(scope); i++ {
		if i == len(scope) || scope[i] == ' ' {
			if i > start {
				out = append(out, scope[start:i])
			}
			start = i + 1
		}
	}
	return out
}
