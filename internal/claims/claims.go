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

// Package claims models OIDC claim sets and per-claim type coercion.
package claims

import "fmt"

// Well-known claim names (OIDC Core Section 5.1)
const (
	Subject             = "sub"
	Email               = "email"
	EmailVerified       = "email_verified"
	PhoneNumberVerified = "phone_number_verified"
	UpdatedAt           = "updated_at"
	Name                = "name"
	GivenName           = "given_name"
	FamilyName          = "family_name"
	Picture             = "picture"
	Locale              = "locale"
)

// Set is a claim set: claim name to dynamically-typed value as decoded
// from JSON (string, float64, bool, or nested slices/maps thereof).
type Set map[string]any

// Subject returns the subject claim as a string, or "" when absent
// or not a string.
func (s Set) Subject() string {
	return s.String(Subject)
}

// String returns the named claim rendered as a string, or "" when absent.
func (s Set) String(name string) string {
	v, ok := s[name]
	if !ok {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", v)
}

// Has reports whether the named claim is present.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Clone returns a shallow copy of the claim set.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns a new claim set with base claims overlaid by overlay
// claims. Overlay values win on key collision. Neither input is modified.
func Merge(base, overlay Set) Set {
	out := make(Set, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
