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
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trustbridge/trustbridge/internal/audit"
	"github.com/trustbridge/trustbridge/internal/identity"
	"github.com/trustbridge/trustbridge/internal/observability/logger"
	"github.com/trustbridge/trustbridge/internal/observability/metrics"
	"github.com/trustbridge/trustbridge/internal/provider"
	"github.com/trustbridge/trustbridge/internal/reconcile"
	"github.com/trustbridge/trustbridge/internal/session"
)

// OAuth2 flow cookies. Short-lived, scoped to the callback leg only.
const (
	stateCookie    = "tb_oauth_state"
	nonceCookie    = "tb_oauth_nonce"
	verifierCookie = "tb_pkce_verifier"
	flowCookieAge  = 600 // seconds
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	providers       *provider.Registry
	reconciler      *reconcile.Service
	identityService *identity.Service
	sessionService  *session.Service
	auditLogger     audit.Logger
	instruments     *metrics.Instruments
	sessionConfig   SessionConfig
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
	MaxAge         int
}

// NewHandler creates a new HTTP handler. Instruments may be nil; login
// and reconciliation counters then go unrecorded.
func NewHandler(
	providers *provider.Registry,
	reconciler *reconcile.Service,
	identityService *identity.Service,
	sessionService *session.Service,
	auditLogger audit.Logger,
	instruments *metrics.Instruments,
	sessionConfig SessionConfig,
) *Handler {
	return &Handler{
		providers:       providers,
		reconciler:      reconciler,
		identityService: identityService,
		sessionService:  sessionService,
		auditLogger:     auditLogger,
		instruments:     instruments,
		sessionConfig:   sessionConfig,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, chainCfg ChainConfig) *chi.Mux {
	r := chi.NewRouter()

	for _, mw := range SecurityChain(chainCfg) {
		r.Use(mw)
	}

	// Health check
	r.Get("/health", h.HealthCheck)

	// Browser-facing login legs
	r.Get("/login/{provider}", h.Login)
	r.Get("/callback/{provider}", h.Callback)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/providers", h.ListProviders)

		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Get("/auth/me", h.GetCurrentUser)
			r.Post("/auth/logout", h.Logout)
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "trustbridge",
	})
}

// ListProviders returns the names of the configured upstream providers
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"providers": h.providers.Names(),
	})
}

// Login starts the authorization code flow against the named upstream.
// State, nonce and the PKCE verifier travel in short-lived cookies so
// the callback leg can bind the response to this browser.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")

	p, err := h.providers.Get(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown provider")
		return
	}

	state, err := randomToken()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to start login")
		return
	}
	nonce, err := randomToken()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to start login")
		return
	}
	verifier, err := randomToken()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to start login")
		return
	}

	h.setFlowCookie(w, stateCookie, state)
	h.setFlowCookie(w, nonceCookie, nonce)
	h.setFlowCookie(w, verifierCookie, verifier)

	if h.instruments != nil {
		h.instruments.LoginsStarted.Add(r.Context(), 1,
			metric.WithAttributes(attribute.String("provider", name)))
	}

	http.Redirect(w, r, p.AuthCodeURL(state, nonce, pkceChallenge(verifier)), http.StatusFound)
}

// Callback finishes the authorization code flow: it redeems the code,
// reconciles the upstream claim sets into one user view, resolves the
// local account and opens a session.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	ctx := r.Context()

	p, err := h.providers.Get(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown provider")
		return
	}

	state := h.flowCookie(r, stateCookie)
	nonce := h.flowCookie(r, nonceCookie)
	verifier := h.flowCookie(r, verifierCookie)
	h.clearFlowCookies(w)

	if errCode := r.URL.Query().Get("error"); errCode != "" {
		h.auditLoginFailed(ctx, r, name, "upstream_error: "+errCode)
		respondError(w, http.StatusBadGateway, "upstream authorization failed")
		return
	}

	if state == "" || r.URL.Query().Get("state") != state {
		h.auditLoginFailed(ctx, r, name, "state_mismatch")
		respondError(w, http.StatusBadRequest, "state mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	token, tokenClaims, err := p.Exchange(ctx, code, verifier, nonce)
	if err != nil {
		slog.ErrorContext(ctx, "authcode exchange failed",
			logger.Provider(name),
			logger.Error(err),
		)
		h.auditLoginFailed(ctx, r, name, "exchange_failed")
		respondError(w, http.StatusBadGateway, "token exchange failed")
		return
	}

	ru, err := h.reconciler.Reconcile(ctx, reconcile.Request{
		Registration: p.Registration(),
		TokenClaims:  tokenClaims,
		AccessToken:  token.AccessToken,
	})
	if err != nil {
		logAttrs := []any{logger.Provider(name), logger.Error(err)}
		var rerr *reconcile.Error
		if errors.As(err, &rerr) {
			logAttrs = append(logAttrs, logger.ErrorType(string(rerr.Kind)))
			if h.instruments != nil {
				h.instruments.ReconcileFailures.Add(ctx, 1,
					metric.WithAttributes(
						attribute.String("provider", name),
						attribute.String("kind", string(rerr.Kind)),
					))
			}
			h.auditLogger.Log(ctx, audit.Event{
				Type:      audit.TypeReconcileFailed,
				Provider:  name,
				Resource:  "claims",
				IPAddress: getIPAddress(r),
				UserAgent: r.UserAgent(),
				Metadata: map[string]any{
					audit.AttrReason: string(rerr.Kind),
					audit.AttrClaim:  rerr.Claim,
				},
			})
		}
		slog.ErrorContext(ctx, "claim reconciliation failed", logAttrs...)
		respondError(w, http.StatusUnauthorized, "identity could not be established")
		return
	}

	user, err := h.identityService.ResolveOrProvision(ctx, name, ru)
	if err != nil {
		slog.ErrorContext(ctx, "account resolution failed",
			logger.Provider(name),
			logger.Subject(ru.Subject),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "failed to resolve account")
		return
	}

	sess, err := h.sessionService.Create(ctx, user.ID, name, getIPAddress(r), r.UserAgent())
	if err != nil {
		slog.ErrorContext(ctx, "failed to create session",
			logger.UserID(user.ID),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setSessionCookie(w, sess.ID)

	if h.instruments != nil {
		h.instruments.LoginsCompleted.Add(ctx, 1,
			metric.WithAttributes(attribute.String("provider", name)))
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// GetCurrentUser returns the current authenticated user identity
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	user, err := h.identityService.GetUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":        user.ID,
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"display_name":   user.DisplayName,
		"profile": map[string]string{
			"given_name":  user.Profile.GivenName,
			"family_name": user.Profile.FamilyName,
			"picture":     user.Profile.Picture,
			"locale":      user.Profile.Locale,
		},
	})
}

// Logout destroys the current session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := GetSessionID(r.Context())

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLogout,
		ActorID:   GetUserID(r.Context()),
		Resource:  "session",
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{audit.AttrSessionID: sessionID},
	})

	if err := h.sessionService.Destroy(r.Context(), sessionID); err != nil {
		slog.ErrorContext(r.Context(), "failed to destroy session",
			logger.SessionID(sessionID),
			logger.Error(err),
		)
	}

	h.clearSessionCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out successfully",
	})
}

func (h *Handler) auditLoginFailed(ctx context.Context, r *http.Request, providerName, reason string) {
	h.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeLoginFailed,
		Provider:  providerName,
		Resource:  "session",
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{audit.AttrReason: reason},
	})
}

// Helper functions
func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    sessionID,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   h.sessionConfig.MaxAge,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *Handler) setFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   flowCookieAge,
	})
}

func (h *Handler) flowCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *Handler) clearFlowCookies(w http.ResponseWriter) {
	for _, name := range []string{stateCookie, nonceCookie, verifierCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:   name,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
	}
}

// randomToken returns a fresh URL-safe random value for state, nonce
// and PKCE verifiers.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// pkceChallenge derives the S256 code challenge from a verifier.
func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
