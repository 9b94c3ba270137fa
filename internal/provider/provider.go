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

// Package provider abstracts upstream OIDC provider interactions:
// discovery, authorization redirects, authcode exchange with ID token
// verification, and UserInfo retrieval.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/trustbridge/trustbridge/internal/claims"
	"github.com/trustbridge/trustbridge/internal/observability/logger"
	"github.com/trustbridge/trustbridge/internal/registration"
)

const (
	discoveryMaxRetries     = 5
	discoveryBaseRetryDelay = 500 * time.Millisecond
	discoveryMaxRetryDelay  = 30 * time.Second
)

// Domain errors
var (
	ErrMissingIDToken = errors.New("token response carries no id_token")
	ErrNonceMismatch  = errors.New("id token nonce does not match the expected nonce")
)

// Config holds the settings for one upstream provider.
type Config struct {
	Name              string
	IssuerURL         string
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	Scopes            []string
	SubjectClaim      string
	UsernameAttribute string
}

// Provider wraps one discovered upstream OIDC provider.
type Provider struct {
	name     string
	upstream *gooidc.Provider
	verifier *gooidc.IDTokenVerifier
	oauth    *oauth2.Config
	cfg      Config
}

// New discovers the upstream provider configuration and builds the
// verifier and OAuth2 client for it. Discovery is retried with
// exponential backoff; the context bounds the whole attempt.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	var upstream *gooidc.Provider
	var err error

	for attempt := 0; attempt < discoveryMaxRetries; attempt++ {
		upstream, err = gooidc.NewProvider(ctx, cfg.IssuerURL)
		if err == nil {
			break
		}

		delay := discoveryBackoff(attempt)
		slog.WarnContext(ctx, "oidc discovery failed, retrying",
			logger.Provider(cfg.Name),
			logger.Error(err),
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_delay", delay),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("oidc discovery cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %q failed after %d attempts: %w",
			cfg.Name, discoveryMaxRetries, err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}

	return &Provider{
		name:     cfg.Name,
		upstream: upstream,
		verifier: upstream.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     upstream.Endpoint(),
			Scopes:       scopes,
		},
		cfg: cfg,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return p.name
}

// Registration builds the broker-side registration for this provider.
// The UserInfo endpoint comes from discovery; registrations for
// providers without one skip enrichment.
func (p *Provider) Registration() *registration.Registration {
	return &registration.Registration{
		ID:                p.name,
		Provider:          p.name,
		ClientID:          p.oauth.ClientID,
		Scopes:            p.oauth.Scopes,
		UserInfoEndpoint:  p.upstream.UserInfoEndpoint(),
		SubjectClaim:      p.cfg.SubjectClaim,
		UsernameAttribute: p.cfg.UsernameAttribute,
	}
}

// AuthCodeURL builds the upstream authorization URL with state, nonce
// and a PKCE S256 challenge.
func (p *Provider) AuthCodeURL(state, nonce, codeChallenge string) string {
	return p.oauth.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange redeems an authorization code, verifies the returned ID
// token (signature, issuer, audience, expiry, and nonce when expected)
// and returns the oauth2 token alongside the verified token claim set.
func (p *Provider) Exchange(ctx context.Context, code, codeVerifier, expectedNonce string) (*oauth2.Token, claims.Set, error) {
	token, err := p.oauth.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("authcode exchange with %q failed: %w", p.name, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, nil, ErrMissingIDToken
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, nil, fmt.Errorf("id token verification failed: %w", err)
	}

	if expectedNonce != "" && idToken.Nonce != expectedNonce {
		return nil, nil, ErrNonceMismatch
	}

	var tokenClaims claims.Set
	if err := idToken.Claims(&tokenClaims); err != nil {
		return nil, nil, fmt.Errorf("extracting id token claims: %w", err)
	}

	return token, tokenClaims, nil
}

// UserInfo fetches the UserInfo claim set with the given bearer access
// token. A nil, nil return means the provider publishes no UserInfo
// endpoint or returned an empty document.
func (p *Provider) UserInfo(ctx context.Context, accessToken string) (claims.Set, error) {
	if p.upstream.UserInfoEndpoint() == "" {
		return nil, nil
	}

	info, err := p.upstream.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		return nil, fmt.Errorf("userinfo fetch from %q failed: %w", p.name, err)
	}

	var profile claims.Set
	if err := info.Claims(&profile); err != nil {
		return nil, fmt.Errorf("extracting userinfo claims: %w", err)
	}
	if len(profile) == 0 {
		return nil, nil
	}
	return profile, nil
}

// discoveryBackoff calculates exponential backoff delay with a maximum cap.
func discoveryBackoff(attempt int) time.Duration {
	delay := discoveryBaseRetryDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > discoveryMaxRetryDelay {
		delay = discoveryMaxRetryDelay
	}
	return delay
}
