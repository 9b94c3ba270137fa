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

package reconcile_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trustbridge/trustbridge/internal/claims"
	"github.com/trustbridge/trustbridge/internal/reconcile"
	"github.com/trustbridge/trustbridge/internal/registration"
)

// stubFetcher is an in-memory ProfileFetcher returning a fixed outcome.
type stubFetcher struct {
	profile claims.Set
	err     error
	calls   int
}

func (f *stubFetcher) Fetch(ctx context.Context, req reconcile.Request) (claims.Set, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

// recordingFactory captures the registration it was resolved with.
type recordingFactory struct {
	table claims.Converters
	got   []*registration.Registration
}

func (f *recordingFactory) Resolve(reg *registration.Registration) claims.Converters {
	f.got = append(f.got, reg)
	return f.table
}

func testRegistration() *registration.Registration {
	return &registration.Registration{
		ID:               "upstream",
		Provider:         "upstream",
		ClientID:         "client-id",
		Scopes:           []string{"openid", "profile"},
		UserInfoEndpoint: "https://idp.example.com/userinfo",
	}
}

func tokenClaims() claims.Set {
	return claims.Set{claims.Subject: "sub123"}
}

// TestPurpose: Verifies that a registration without a UserInfo endpoint skips
// enrichment entirely: no fetch happens and the output claims equal the token claims.
// Scope: Unit Test
// Expected: no profile on the reconciled user, fetcher never invoked.
func TestReconcile_NoUserInfoEndpoint_ProfileNotFetched(t *testing.T) {
	fetcher := &stubFetcher{profile: claims.Set{claims.Subject: "sub123"}}
	svc := reconcile.NewService(reconcile.WithProfileFetcher(fetcher))

	reg := testRegistration()
	reg.UserInfoEndpoint = ""

	user, err := svc.Reconcile(context.Background(), reconcile.Request{
		Registration: reg,
		TokenClaims:  tokenClaims(),
	})
	require.NoError(t, err)

	assert.False(t, user.HasProfile())
	assert.Equal(t, 0, fetcher.calls)
	assert.Equal(t, tokenClaims(), user.Claims)
	assert.Equal(t, "sub123", user.Subject)
}

// TestPurpose: Verifies that an empty fetch outcome (nil claims, nil error) is a
// legitimate "no result", shaped identically to a skipped fetch.
// Scope: Unit Test
// Expected: reconciliation succeeds with token claims only.
func TestReconcile_EmptyProfile_TreatedAsAbsent(t *testing.T) {
	fetcher := &stubFetcher{}
	svc := reconcile.NewService(reconcile.WithProfileFetcher(fetcher))

	user, err := svc.Reconcile(context.Background(), reconcile.Request{
		Registration: testRegistration(),
		TokenClaims:  tokenClaims(),
	})
	require.NoError(t, err)

	assert.False(t, user.HasProfile())
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, tokenClaims(), user.Claims)
}

// TestPurpose: Verifies that token claims without a subject fail reconciliation
// before any fetch: a subjectless identity must never produce a user, and the
// output must never gain a synthetic empty subject claim.
// Scope: Unit Test
// Security: Identity Consistency (upstream verification does not require sub)
// Expected: typed failure with kind subject_missing, fetcher never invoked.
func TestReconcile_TokenSubjectAbsent_Fails(t *testing.T) {
	fetcher := &stubFetcher{profile: claims.Set{claims.Subject: ""}}
	svc := reconcile.NewService(reconcile.WithProfileFetcher(fetcher))

	user, err := svc.Reconcile(context.Background(), reconcile.Request{
		Registration: testRegistration(),
		TokenClaims:  claims.Set{"email": "alice@example.com"},
	})

	assert.Nil(t, user)
	var rerr *reconcile.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, reconcile.KindSubjectMissing, rerr.Kind)
	assert.Equal(t, claims.Subject, rerr.Claim)
	assert.Equal(t, 0, fetcher.calls)
}

// TestPurpose: Verifies that a non-string UserInfo subject counts as missing
// rather than silently comparing equal to an empty string.
// Scope: Unit Test
// Security: Identity Consistency (prevents unattributed profile merges)
// Expected: typed failure with kind subject_missing.
func TestReconcile_ProfileSubjectNotString_Fails(t *testing.T) {
	fetcher := &stubFetcher{profile: claims.Set{
		claims.Subject: float64(42),
		"user":         "rob",
	}}
	svc := reconcile.NewService(reconcile.WithProfileFetcher(fetcher))

	_, err := svc.Reconcile(context.Background(), reconcile.Request{
		Registration: testRegistration(),
		TokenClaims:  tokenClaims(),
	})

	var rerr *reconcile.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, reconcile.KindSubjectMissing, rerr.Kind)
	assert.Equal(t, claims.Subject, rerr.Claim)
}

// TestPurpose: Verifies that a UserInfo response without a subject claim fails
// reconciliation: an unattributable profile must never be merged.
// Scope: Unit Test
// Security: Identity Consistency (prevents claim injection from unverified profiles)
// Expected: typed failure with kind subject_missing.
func TestReconcile_ProfileSubjectAbsent_Fails(t *testing.T) {
	fetcher := &stubFetcher{profile: claims.Set{"user": "rob"}}
	svc := reconcile.NewService(reconcile.WithProfileFetcher(fetcher))

	_, err := svc.Reconcile(context.Background(), reconcile.Request{
		Registration: testRegistration(),
		TokenClaims:  tokenClaims(),
	})

	var rerr *reconcile.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, reconcile.KindSubjectMissing, rerr.Kind)
	assert.Equal(t, claims.Subject, rerr.Claim)
}

// TestPurpose: Verifies that a UserInfo subject differing from the ID token
// subject fails reconciliation.
// Scope: Unit Test
// Security: Identity Consistency (prevents account substitution via UserInfo)
// Expected: typed failure with kind subject_mismatch.
func TestReconcile_ProfileSubjectMismatch_Fails(t *testing.T) {
	fetcher := &stubFetcher{profile: claims.Set{
		claims.Subject: "not-equal",
		"user":         "rob",
	}}
	svc := reconcile.NewService(reconcile.WithProfileFetcher(fetcher))

	_, err := svc.Reconcile(context.Background(), reconcile.Request{
		Registration: testRegistration(),
		TokenClaims:  tokenClaims(),
	})

	var rerr *reconcile.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, reconcile.KindSubjectMismatch, rerr.Kind)
}

// TestPurpose: Verifies the happy path: a matching profile is merged over the
// token claims and the configured username attribute becomes the display name.
// Scope: Unit Test
// Expected: name "rob", merged claims contain both sub and user.
func TestReconcile_MatchingProfile_MergedAndNamed(t *testing.T) {
	fetcher := &stubFetcher{profile: claims.Set{
		claims.Subject: "sub123",
		"user":         "rob",
	}}
	svc := reconcile.NewService(reconcile.WithProfileFetcher(fetcher))

	reg := testRegistration()
	reg.UsernameAttribute = "user"

	user, err := svc.Reconcile(context.Background(), reconcile.Request{
		Registration: reg,
		TokenClaims:  tokenClaims(),
		Roles:        []string{"role_user"},
	})
	require.NoError(t, err)

	assert.True(t, user.HasProfile())
	assert.Equal(t, "rob", user.Name)
	assert.Equal(t, "user", user.NameAttribute)
	assert.Equal(t, "sub123", user.Claims.Subject())
	assert.Equal(t, "rob", user.Claims["user"])
	assert.Equal(t, []string{"role_user"}, user.Roles)
}

func TestReconcile_DisplayAttributeMissing_Fails(t *testing.T) {
	svc := reconcile.NewService()

	reg := testRegistration()
	reg.UserInfoEndpoint = ""
	reg.UsernameAttribute = "nickname"

	_, err := svc.Reconcile(context.Background(), reconcile.Request{
		Registration: reg,
		TokenClaims:  tokenClaims(),
	})

	var rerr *reconcile.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, reconcile.KindDisplayAttributeMissing, rerr.Kind)
	assert.Equal(t, "nickname", rerr.Claim)
}

// TestPurpose: Verifies a configured converter factory is resolved exactly once
// per call, with the exact registration instance of the request, and that its
// table replaces the defaults.
// Scope: Unit Test
// Expected: factory sees the same *Registration pointer; custom converter applied.
func TestReconcile_CustomConverterFactory_Applied(t *testing.T) {
	fetcher := &stubFetcher{profile: claims.Set{
		claims.Subject: "sub123",
		"user":         "rob",
	}}
	factory := &recordingFactory{table: claims.Converters{
		"user": func(v any) (any, error) {
			return strings.ToUpper(v.(string)), nil
		},
	}}
	svc := reconcile.NewService(
		reconcile.WithProfileFetcher(fetcher),
		reconcile.WithConverterFactory(factory),
	)

	reg := testRegistration()
	reg.UsernameAttribute = "user"

	user, err := svc.Reconcile(context.Background(), reconcile.Request{
		Registration: reg,
		TokenClaims:  tokenClaims(),
	})
	require.NoError(t, err)

	require.Len(t, factory.got, 1)
	assert.Same(t, reg, factory.got[0])
	assert.Equal(t, "ROB", user.Name)
}

// TestPurpose: Verifies a converter rejection surfaces as a typed conversion
// failure naming the offending claim, with no partial user returned.
// Scope: Unit Test
// Expected: kind conversion_failure, claim email_verified.
func TestReconcile_ConverterRejection_FailsWithClaim(t *testing.T) {
	fetcher := &stubFetcher{profile: claims.Set{
		claims.Subject:       "sub123",
		claims.EmailVerified: float64(42),
	}}
	svc := reconcile.NewService(reconcile.WithProfileFetcher(fetcher))

	user, err := svc.Reconcile(context.Background(), reconcile.Request{
		Registration: testRegistration(),
		TokenClaims:  tokenClaims(),
	})

	assert.Nil(t, user)
	var rerr *reconcile.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, reconcile.KindConversionFailure, rerr.Kind)
	assert.Equal(t, claims.EmailVerified, rerr.Claim)
}

// TestPurpose: Verifies transport errors from the profile fetch propagate to the
// caller unwrapped: the reconciler has no local recovery for them.
// Scope: Unit Test
// Expected: the exact fetch error, not a reconcile.Error.
func TestReconcile_FetchError_PropagatedAsIs(t *testing.T) {
	fetchErr := errors.New("userinfo endpoint unreachable")
	fetcher := &stubFetcher{err: fetchErr}
	svc := reconcile.NewService(reconcile.WithProfileFetcher(fetcher))

	_, err := svc.Reconcile(context.Background(), reconcile.Request{
		Registration: testRegistration(),
		TokenClaims:  tokenClaims(),
	})

	assert.ErrorIs(t, err, fetchErr)
	var rerr *reconcile.Error
	assert.False(t, errors.As(err, &rerr))
	assert.Equal(t, 1, fetcher.calls)
}

// TestPurpose: Verifies external cancellation fails the call promptly without
// invoking the fetch.
// Scope: Unit Test
// Expected: context.Canceled, fetcher never invoked.
func TestReconcile_CancelledContext_FailsPromptly(t *testing.T) {
	fetcher := &stubFetcher{}
	svc := reconcile.NewService(reconcile.WithProfileFetcher(fetcher))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Reconcile(ctx, reconcile.Request{
		Registration: testRegistration(),
		TokenClaims:  tokenClaims(),
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fetcher.calls)
}

// TestPurpose: Verifies reconciliation is deterministic: reconciling the same
// inputs twice yields structurally equal users.
// Scope: Unit Test
// Expected: both results deeply equal.
func TestReconcile_SameInputs_Idempotent(t *testing.T) {
	fetcher := &stubFetcher{profile: claims.Set{
		claims.Subject: "sub123",
		"user":         "rob",
	}}
	svc := reconcile.NewService(reconcile.WithProfileFetcher(fetcher))

	req := reconcile.Request{
		Registration: testRegistration(),
		TokenClaims:  tokenClaims(),
	}

	first, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, fetcher.calls, "fetch must run exactly once per call")
}
