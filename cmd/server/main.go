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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trustbridge/trustbridge/internal/audit"
	"github.com/trustbridge/trustbridge/internal/config"
	"github.com/trustbridge/trustbridge/internal/identity"
	"github.com/trustbridge/trustbridge/internal/observability/logger"
	"github.com/trustbridge/trustbridge/internal/observability/metrics"
	"github.com/trustbridge/trustbridge/internal/observability/tracing"
	"github.com/trustbridge/trustbridge/internal/provider"
	"github.com/trustbridge/trustbridge/internal/reconcile"
	"github.com/trustbridge/trustbridge/internal/session"
	"github.com/trustbridge/trustbridge/internal/store/postgres"
	transportHTTP "github.com/trustbridge/trustbridge/internal/transport/http"
)

const discoveryTimeout = 2 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting trustbridge identity broker")

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter and instruments
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}
	instruments, err := meter.NewInstruments()
	if err != nil {
		slog.Error("failed to create instruments", logger.Error(err))
		os.Exit(1)
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	linkRepo := postgres.NewLinkRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)

	// Discover upstream providers
	discoveryCtx, cancelDiscovery := context.WithTimeout(ctx, discoveryTimeout)
	defer cancelDiscovery()

	providers := make([]*provider.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := provider.New(discoveryCtx, provider.Config{
			Name:              pc.Name,
			IssuerURL:         pc.IssuerURL,
			ClientID:          pc.ClientID,
			ClientSecret:      pc.ClientSecret,
			RedirectURL:       pc.RedirectURL,
			Scopes:            pc.Scopes,
			SubjectClaim:      pc.SubjectClaim,
			UsernameAttribute: pc.UsernameAttribute,
		})
		if err != nil {
			slog.Error("failed to configure upstream provider",
				logger.Provider(pc.Name),
				logger.Issuer(pc.IssuerURL),
				logger.Error(err),
			)
			os.Exit(1)
		}
		slog.Info("upstream provider ready", logger.Provider(pc.Name))
		providers = append(providers, p)
	}
	registry := provider.NewRegistry(providers...)

	// Initialize services
	auditLogger := audit.NewSlogLogger()
	reconciler := reconcile.NewService(
		reconcile.WithProfileFetcher(provider.NewUserInfoFetcher(registry, instruments)),
	)
	identityService := identity.NewService(userRepo, linkRepo, auditLogger)
	sessionService := session.NewService(sessionRepo, cfg.Session.Lifetime, cfg.Session.IdleTimeout)

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Configure SameSite mode
	sameSite := http.SameSiteLaxMode
	switch cfg.Session.CookieSameSite {
	case "Strict":
		sameSite = http.SameSiteStrictMode
	case "None":
		sameSite = http.SameSiteNoneMode
	}

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		registry,
		reconciler,
		identityService,
		sessionService,
		auditLogger,
		instruments,
		transportHTTP.SessionConfig{
			CookieName:     cfg.Session.CookieName,
			CookieDomain:   cfg.Session.CookieDomain,
			CookiePath:     cfg.Session.CookiePath,
			CookieSecure:   cfg.Session.CookieSecure,
			CookieHTTPOnly: cfg.Session.CookieHTTPOnly,
			CookieSameSite: sameSite,
			MaxAge:         int(cfg.Session.Lifetime.Seconds()),
		},
	)

	// Create router
	router := transportHTTP.NewRouter(handler, transportHTTP.ChainConfig{
		RateLimiter:    rateLimiter,
		TracingEnabled: cfg.Observability.OTELEnabled,
		RequestTimeout: cfg.Server.WriteTimeout * 4,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start session cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := sessionService.CleanupExpired(ctx); err != nil {
				slog.ErrorContext(ctx, "failed to cleanup expired sessions", logger.Error(err))
			}
		}
	}()

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}
