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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps the OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{meter: otel.Meter("noop")}, nil
	}
	return &Meter{meter: otel.Meter(serviceName)}, nil
}

// Broker instruments. Names are stable; dashboards key on them.
type Instruments struct {
	LoginsStarted     metric.Int64Counter
	LoginsCompleted   metric.Int64Counter
	ReconcileFailures metric.Int64Counter
	UserInfoLatency   metric.Float64Histogram
}

// NewInstruments creates the broker's metric instruments.
func (m *Meter) NewInstruments() (*Instruments, error) {
	started, err := m.meter.Int64Counter("trustbridge.logins.started",
		metric.WithDescription("Upstream login flows started"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	completed, err := m.meter.Int64Counter("trustbridge.logins.completed",
		metric.WithDescription("Upstream login flows completed successfully"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	failures, err := m.meter.Int64Counter("trustbridge.reconcile.failures",
		metric.WithDescription("Claim reconciliation failures by kind"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	latency, err := m.meter.Float64Histogram("trustbridge.userinfo.latency",
		metric.WithDescription("UserInfo fetch latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}

	return &Instruments{
		LoginsStarted:     started,
		LoginsCompleted:   completed,
		ReconcileFailures: failures,
		UserInfoLatency:   latency,
	}, nil
}
