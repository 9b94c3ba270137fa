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

import "fmt"

// Kind distinguishes the reconciliation failure classes. All of them
// are fatal to the single call; none is retryable.
type Kind string

const (
	// KindSubjectMissing: the profile fetch succeeded but the profile
	// carries no subject claim.
	KindSubjectMissing Kind = "subject_missing"

	// KindSubjectMismatch: the profile subject disagrees with the token
	// subject.
	KindSubjectMismatch Kind = "subject_mismatch"

	// KindDisplayAttributeMissing: the chosen display attribute is
	// absent from the merged claim set.
	KindDisplayAttributeMissing Kind = "display_attribute_missing"

	// KindConversionFailure: a registered claim converter rejected its
	// input value.
	KindConversionFailure Kind = "conversion_failure"
)

// Error is a reconciliation failure. Fetch transport errors are never
// wrapped in it; they propagate to the caller as-is.
type Error struct {
	Kind   Kind
	Claim  string
	Reason string
}

func (e *Error) Error() string {
	if e.Claim != "" {
		return fmt.Sprintf("reconcile: %s (claim %q): %s", e.Kind, e.Claim, e.Reason)
	}
	return fmt.Sprintf("reconcile: %s: %s", e.Kind, e.Reason)
}

// NewError creates a reconciliation failure of the given kind.
func NewError(kind Kind, claim, reason string) *Error {
	return &Error{Kind: kind, Claim: claim, Reason: reason}
}
