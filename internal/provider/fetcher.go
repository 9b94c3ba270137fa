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

package provider

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trustbridge/trustbridge/internal/claims"
	"github.com/trustbridge/trustbridge/internal/observability/metrics"
	"github.com/trustbridge/trustbridge/internal/reconcile"
)

// UserInfoFetcher adapts the provider registry to the reconciler's
// profile fetch capability.
type UserInfoFetcher struct {
	registry    *Registry
	instruments *metrics.Instruments
}

// NewUserInfoFetcher creates a UserInfo-backed profile fetcher.
// Instruments may be nil; fetch latency then goes unrecorded.
func NewUserInfoFetcher(registry *Registry, instruments *metrics.Instruments) *UserInfoFetcher {
	return &UserInfoFetcher{registry: registry, instruments: instruments}
}

var _ reconcile.ProfileFetcher = (*UserInfoFetcher)(nil)

// Fetch retrieves UserInfo claims for the request's registration using
// the request's upstream access token.
func (f *UserInfoFetcher) Fetch(ctx context.Context, req reconcile.Request) (claims.Set, error) {
	p, err := f.registry.Get(req.Registration.Provider)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	profile, err := p.UserInfo(ctx, req.AccessToken)
	if f.instruments != nil {
		f.instruments.UserInfoLatency.Record(ctx,
			float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("provider", p.Name())))
	}
	return profile, err
}
