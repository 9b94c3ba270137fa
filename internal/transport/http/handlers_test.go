// Copyright 2026 The TrustBridge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustbridge/trustbridge/internal/provider"
)

func createMinimalHandler(t *testing.T) *Handler {
	t.Helper()
	return &Handler{
		providers: provider.NewRegistry(),
		sessionConfig: SessionConfig{
			CookieName:     "trustbridge_session",
			CookiePath:     "/",
			CookieHTTPOnly: true,
			CookieSameSite: http.SameSiteLaxMode,
			MaxAge:         86400,
		},
	}
}

// newDiscoveryOnlyProvider discovers a provider against a stub issuer
// publishing nothing but its discovery document. Enough for the
// redirect leg; token and key endpoints are never contacted.
func newDiscoveryOnlyProvider(t *testing.T) *provider.Provider {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"issuer": %q,
			"authorization_endpoint": %q,
			"token_endpoint": %q,
			"jwks_uri": %q
		}`, srv.URL, srv.URL+"/authorize", srv.URL+"/token", srv.URL+"/keys")
	})

	p, err := provider.New(context.Background(), provider.Config{
		Name:        "corp",
		IssuerURL:   srv.URL,
		ClientID:    "client-id",
		RedirectURL: "https://broker.example.com/callback/corp",
	})
	require.NoError(t, err)
	return p
}

// =============================================================================
// BROKER HTTP SURFACE TESTS
// Category: Transport - Routing & Handler Behavior
// Type: Unit Test (UT)
// =============================================================================

// TestPurpose: Validates that the health endpoint is reachable through
// the assembled router and chain.
// Scope: Unit Test
// Expected: Returns HTTP 200 with a healthy status body.
func TestRouter_Health_ReturnsHealthy(t *testing.T) {
	h := createMinimalHandler(t)
	router := NewRouter(h, ChainConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

// TestPurpose: Validates that login against an unconfigured provider is
// rejected instead of redirecting anywhere.
// Scope: Unit Test
// Security: No open-redirect via arbitrary provider names
// Expected: Returns HTTP 404 Not Found.
func TestLogin_UnknownProvider_ReturnsNotFound(t *testing.T) {
	h := createMinimalHandler(t)
	router := NewRouter(h, ChainConfig{})

	req := httptest.NewRequest(http.MethodGet, "/login/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "unknown provider")
}

// TestPurpose: Validates that the login leg completes without metric
// instruments wired: the redirect and flow cookies must not depend on
// the observability stack being configured.
// Scope: Unit Test
// Expected: HTTP 302 to the authorization endpoint with three flow cookies.
func TestLogin_WithoutInstruments_RedirectsUpstream(t *testing.T) {
	h := createMinimalHandler(t)
	h.providers = provider.NewRegistry(newDiscoveryOnlyProvider(t))
	router := NewRouter(h, ChainConfig{})

	req := httptest.NewRequest(http.MethodGet, "/login/corp", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/authorize")
	assert.Len(t, w.Result().Cookies(), 3)
}

// TestPurpose: Validates that the callback leg rejects unconfigured
// providers before touching any flow state.
// Scope: Unit Test
// Expected: Returns HTTP 404 Not Found.
func TestCallback_UnknownProvider_ReturnsNotFound(t *testing.T) {
	h := createMinimalHandler(t)
	router := NewRouter(h, ChainConfig{})

	req := httptest.NewRequest(http.MethodGet, "/callback/nonexistent?code=abc&state=xyz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestPurpose: Validates that authenticated API routes reject requests
// without a session cookie.
// Scope: Unit Test
// Security: Session authentication boundary
// Expected: Returns HTTP 401 Unauthorized; inner handler never runs.
func TestAuthMiddleware_NoCookie_ReturnsUnauthorized(t *testing.T) {
	h := createMinimalHandler(t)

	reached := false
	protected := h.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, reached, "unauthenticated request must not reach the handler")
}

// TestPurpose: Validates the PKCE S256 challenge derivation against the
// RFC 7636 appendix B reference vector.
// Scope: Unit Test
// Security: Code interception protection depends on correct derivation
// Expected: Exact challenge string from the RFC.
func TestPKCEChallenge_RFCReferenceVector(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	got := pkceChallenge(verifier)

	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", got)
}

// TestPurpose: Validates that generated flow tokens are URL-safe and do
// not repeat across calls.
// Scope: Unit Test
// Security: State and nonce values must be unpredictable
// Expected: Distinct values without URL-hostile characters.
func TestRandomToken_UniqueAndURLSafe(t *testing.T) {
	a, err := randomToken()
	require.NoError(t, err)
	b, err := randomToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	for _, tok := range []string{a, b} {
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.NotContains(t, tok, "=")
	}
}

// TestPurpose: Validates that flow cookies are HttpOnly and that the
// clearing helper expires all three of them.
// Scope: Unit Test
// Security: State, nonce and verifier must be invisible to scripts
// Expected: Cookies set with HttpOnly; cleared with negative MaxAge.
func TestFlowCookies_SetHTTPOnlyAndCleared(t *testing.T) {
	h := createMinimalHandler(t)

	w := httptest.NewRecorder()
	h.setFlowCookie(w, stateCookie, "state-value")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, stateCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, flowCookieAge, cookies[0].MaxAge)

	w = httptest.NewRecorder()
	h.clearFlowCookies(w)

	cleared := w.Result().Cookies()
	require.Len(t, cleared, 3)
	names := make([]string, 0, 3)
	for _, c := range cleared {
		names = append(names, c.Name)
		assert.Negative(t, c.MaxAge)
	}
	assert.ElementsMatch(t, []string{stateCookie, nonceCookie, verifierCookie}, names)
}

// TestPurpose: Validates that the session cookie carries the configured
// security attributes.
// Scope: Unit Test
// Expected: Name, path, HttpOnly and SameSite match the configuration.
func TestSessionCookie_CarriesConfiguredAttributes(t *testing.T) {
	h := createMinimalHandler(t)

	w := httptest.NewRecorder()
	h.setSessionCookie(w, "session-id-value")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "trustbridge_session", c.Name)
	assert.Equal(t, "session-id-value", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

// TestPurpose: Validates proxy-aware client IP extraction ordering.
// Scope: Unit Test
// Expected: X-Forwarded-For wins over X-Real-IP, which wins over
// RemoteAddr.
func TestGetIPAddress_HeaderPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.True(t, strings.HasPrefix(getIPAddress(req), "10.0.0.1"))

	req.Header.Set("X-Real-IP", "203.0.113.7")
	assert.Equal(t, "203.0.113.7", getIPAddress(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	assert.Equal(t, "198.51.100.9", getIPAddress(req))
}
