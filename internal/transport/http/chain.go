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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultRequestTimeout = 60 * time.Second

// ChainConfig controls the middleware chain placed in front of every
// route. A zero value yields a working chain with sane defaults.
type ChainConfig struct {
	// RateLimiter throttles per client IP. Nil disables throttling.
	RateLimiter *RateLimiter

	// TracingEnabled inserts otelhttp span creation into the chain.
	TracingEnabled bool

	// RequestTimeout bounds in-flight requests. Zero means the default.
	RequestTimeout time.Duration
}

// SecurityChain builds the ordered middleware chain from configuration.
// Order matters: request IDs come first so every later stage can log
// them, throttling runs before any real work, and the recoverer sits
// inside tracing so panics still close their spans.
func SecurityChain(cfg ChainConfig) []func(http.Handler) http.Handler {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	chain := []func(http.Handler) http.Handler{
		middleware.RequestID,
	}

	if cfg.RateLimiter != nil {
		chain = append(chain, RateLimitMiddleware(cfg.RateLimiter))
	}

	if cfg.TracingEnabled {
		chain = append(chain, func(handler http.Handler) http.Handler {
			return otelhttp.NewHandler(handler, "http_request",
				otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
					return r.Method + " " + r.URL.Path
				}),
			)
		})
	}

	chain = append(chain,
		LoggingMiddleware(),
		middleware.Recoverer,
		middleware.Timeout(timeout),
	)

	return chain
}
