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

// Package reconcile merges the claim set of a verified upstream ID token
// with claims fetched from the provider's UserInfo endpoint into a single
// reconciled user record.
package reconcile

import (
	"context"
	"errors"

	"github.com/trustbridge/trustbridge/internal/claims"
	"github.com/trustbridge/trustbridge/internal/registration"
)

// Request carries one reconciliation call: the registration the login
// belongs to, the claim set of the already-verified ID token, and the
// upstream access token the profile fetch presents as a bearer credential.
type Request struct {
	Registration *registration.Registration
	TokenClaims  claims.Set
	AccessToken  string

	// Roles are granted roles carried through to the reconciled user
	// unchanged.
	Roles []string
}

// ProfileFetcher fetches UserInfo claims for a request. A nil, nil
// return is the legitimate "no result" outcome and is not an error.
type ProfileFetcher interface {
	Fetch(ctx context.Context, req Request) (claims.Set, error)
}

// ConverterFactory resolves the claim type converter table for a
// registration. Implementations must be safe for concurrent use.
type ConverterFactory interface {
	Resolve(reg *registration.Registration) claims.Converters
}

// ConverterFactoryFunc adapts a function to the ConverterFactory interface.
type ConverterFactoryFunc func(reg *registration.Registration) claims.Converters

// Resolve calls f.
func (f ConverterFactoryFunc) Resolve(reg *registration.Registration) claims.Converters {
	return f(reg)
}

// Service reconciles token and profile claims. A Service holds no
// per-call state; concurrent Reconcile calls need no coordination.
type Service struct {
	fetcher          ProfileFetcher
	converterFactory ConverterFactory
}

// Option configures a Service.
type Option func(*Service)

// WithProfileFetcher sets the UserInfo fetch capability. Without it
// every reconciliation proceeds with token claims only.
func WithProfileFetcher(f ProfileFetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

// WithConverterFactory overrides the built-in claim type converter
// table with a per-registration table.
func WithConverterFactory(f ConverterFactory) Option {
	return func(s *Service) { s.converterFactory = f }
}

// NewService creates a reconciliation service.
func NewService(opts ...Option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconcile runs one reconciliation: require a token subject, fetch the
// profile (at most once, skipped when no fetcher is configured or the
// registration has no UserInfo endpoint), validate subject consistency,
// merge, coerce claim types, and select the display name.
//
// Reconciliation failures are returned as *Error. Errors raised by the
// fetch itself, including context cancellation, propagate unwrapped.
func (s *Service) Reconcile(ctx context.Context, req Request) (*User, error) {
	subject := req.TokenClaims.Subject()
	if subject == "" {
		return nil, NewError(KindSubjectMissing, claims.Subject,
			"id token carries no subject claim")
	}

	profile, err := s.fetchProfile(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(profile) > 0 {
		subjectClaim := req.Registration.SubjectClaimOrDefault()
		profileSubject, ok := profile[subjectClaim]
		if !ok {
			return nil, NewError(KindSubjectMissing, subjectClaim,
				"userinfo response carries no subject claim")
		}
		// Subject comparison is strict string equality; a non-string
		// value cannot attribute the profile and counts as missing.
		ps, ok := profileSubject.(string)
		if !ok {
			return nil, NewError(KindSubjectMissing, subjectClaim,
				"userinfo subject claim is not a string")
		}
		if ps != subject {
			return nil, NewError(KindSubjectMismatch, subjectClaim,
				"userinfo subject does not match id token subject")
		}
	}

	merged := claims.Merge(req.TokenClaims, profile)
	// The token subject was validated upstream; it stays authoritative.
	merged[claims.Subject] = subject

	merged, err = s.convert(req.Registration, merged)
	if err != nil {
		return nil, err
	}

	nameAttribute := req.Registration.UsernameAttributeOrDefault()
	if !merged.Has(nameAttribute) {
		return nil, NewError(KindDisplayAttributeMissing, nameAttribute,
			"display attribute absent from merged claims")
	}

	return &User{
		Subject:       subject,
		NameAttribute: nameAttribute,
		Name:          merged.String(nameAttribute),
		Claims:        merged,
		Profile:       profile,
		Roles:         req.Roles,
	}, nil
}

// fetchProfile invokes the profile fetch exactly once, or not at all
// when enrichment is not configured for this registration.
func (s *Service) fetchProfile(ctx context.Context, req Request) (claims.Set, error) {
	if s.fetcher == nil || req.Registration.UserInfoEndpoint == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fetcher.Fetch(ctx, req)
}

// convert resolves the converter table (custom factory at most once per
// call, default table otherwise) and applies it to the merged claims.
func (s *Service) convert(reg *registration.Registration, merged claims.Set) (claims.Set, error) {
	table := claims.DefaultConverters()
	if s.converterFactory != nil {
		table = s.converterFactory.Resolve(reg)
	}

	converted, err := claims.NewTypeConverter(table).Convert(merged)
	if err != nil {
		var convErr *claims.ConversionError
		if errors.As(err, &convErr) {
			return nil, NewError(KindConversionFailure, convErr.Claim, convErr.Reason)
		}
		return nil, err
	}
	return converted, nil
}
