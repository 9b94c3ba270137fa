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

package reconcile

import "github.com/trustbridge/trustbridge/internal/claims"

// User is the reconciled user record: the merged, validated and
// type-coerced claim view of one upstream login. It is constructed
// fresh per reconciliation and never shared.
type User struct {
	// Subject is the validated stable subject identifier.
	Subject string

	// NameAttribute is the claim key the display name was selected from.
	NameAttribute string

	// Name is the display name value of NameAttribute in Claims.
	Name string

	// Claims is the merged claim set: token claims overlaid with profile
	// claims (profile wins, subject excepted), after type coercion.
	Claims claims.Set

	// Profile holds the claims fetched from the UserInfo endpoint, nil
	// when enrichment was skipped or yielded nothing.
	Profile claims.Set

	// Roles are the granted roles passed through from the request; the
	// reconciler never computes them.
	Roles []string
}

// GetClaim returns the named merged claim value.
func (u *User) GetClaim(name string) any {
	return u.Claims[name]
}

// HasProfile reports whether UserInfo enrichment contributed claims.
func (u *User) HasProfile() bool {
	return u.Profile != nil
}
