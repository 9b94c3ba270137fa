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

// Package registration describes the upstream client registrations the
// broker acts on behalf of. A registration is the caller-identity
// descriptor carried through reconciliation: converter factories and
// attribute selection are keyed by it.
package registration

import (
	"errors"

	"github.com/trustbridge/trustbridge/internal/claims"
)

// ErrInvalid reports a registration missing fields every flow needs.
var ErrInvalid = errors.New("registration is incomplete")

// Registration holds the broker-side registration for one upstream
// OIDC provider.
type Registration struct {
	// ID is the stable registration identifier (usually the provider name).
	ID string

	// Provider is the upstream provider name in the provider registry.
	Provider string

	// ClientID is the client identifier issued by the upstream provider.
	ClientID string

	// Scopes requested during the authorization redirect.
	Scopes []string

	// UserInfoEndpoint is the upstream UserInfo URL. Empty means the
	// provider publishes no UserInfo endpoint and enrichment is skipped.
	UserInfoEndpoint string

	// SubjectClaim names the claim carrying the subject in UserInfo
	// responses. Defaults to "sub".
	SubjectClaim string

	// UsernameAttribute names the merged claim selected as the user's
	// display name. Defaults to the subject claim.
	UsernameAttribute string
}

// SubjectClaimOrDefault returns the configured subject claim key,
// falling back to "sub".
func (r *Registration) SubjectClaimOrDefault() string {
	if r.SubjectClaim != "" {
		return r.SubjectClaim
	}
	return claims.Subject
}

// UsernameAttributeOrDefault returns the configured username attribute,
// falling back to "sub".
func (r *Registration) UsernameAttributeOrDefault() string {
	if r.UsernameAttribute != "" {
		return r.UsernameAttribute
	}
	return claims.Subject
}

// Validate checks the registration has the fields every flow needs.
func (r *Registration) Validate() error {
	if r.ID == "" || r.Provider == "" || r.ClientID == "" {
		return ErrInvalid
	}
	return nil
}
