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

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trustbridge/trustbridge/internal/audit"
	"github.com/trustbridge/trustbridge/internal/claims"
	"github.com/trustbridge/trustbridge/internal/id"
	"github.com/trustbridge/trustbridge/internal/reconcile"
)

// Service resolves reconciled upstream users to local accounts
type Service struct {
	users       UserRepository
	links       LinkRepository
	auditLogger audit.Logger
}

// NewService creates a new identity service
func NewService(users UserRepository, links LinkRepository, auditLogger audit.Logger) *Service {
	return &Service{
		users:       users,
		links:       links,
		auditLogger: auditLogger,
	}
}

// ResolveOrProvision maps a reconciled upstream user onto a local
// account via its (provider, subject) link. First login provisions the
// account and the link; later logins refresh the mirrored attributes.
func (s *Service) ResolveOrProvision(ctx context.Context, providerName string, ru *reconcile.User) (*User, error) {
	link, err := s.links.Get(providerName, ru.Subject)
	switch {
	case err == nil:
		return s.refresh(ctx, link, ru)
	case errors.Is(err, ErrLinkNotFound):
		return s.provision(ctx, providerName, ru)
	default:
		return nil, fmt.Errorf("failed to look up identity link: %w", err)
	}
}

// GetUser retrieves a local user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *Service) refresh(ctx context.Context, link *Link, ru *reconcile.User) (*User, error) {
	user, err := s.users.GetByID(link.UserID)
	if err != nil {
		// Dangling link: the user row is gone but the link survived.
		return nil, fmt.Errorf("link for subject points at missing user %s: %w", link.UserID, err)
	}

	applyClaims(user, ru)
	user.UpdatedAt = time.Now()
	if err := s.users.Update(user); err != nil {
		return nil, fmt.Errorf("failed to refresh user attributes: %w", err)
	}

	now := time.Now()
	if err := s.users.TouchLogin(user.ID, now); err == nil {
		user.LastLoginAt = &now
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		ActorID:  user.ID,
		Provider: link.Provider,
		Resource: "account",
	})

	return user, nil
}

func (s *Service) provision(ctx context.Context, providerName string, ru *reconcile.User) (*User, error) {
	now := time.Now()
	user := &User{
		ID:        id.NewUUIDv7(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyClaims(user, ru)

	if err := s.users.Create(user); err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	if err := s.links.Create(&Link{
		Provider:  providerName,
		Subject:   ru.Subject,
		UserID:    user.ID,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("failed to link identity: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserProvisioned,
		ActorID:  user.ID,
		Provider: providerName,
		Resource: "account",
		Metadata: map[string]any{audit.AttrSubject: ru.Subject},
	})
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeIdentityLinked,
		ActorID:  user.ID,
		Provider: providerName,
		Resource: "link",
		Metadata: map[string]any{audit.AttrSubject: ru.Subject},
	})

	return user, nil
}

// applyClaims mirrors the reconciled claim view onto the local account.
func applyClaims(user *User, ru *reconcile.User) {
	user.DisplayName = ru.Name
	if email := ru.Claims.String(claims.Email); email != "" {
		user.Email = email
	}
	if verified, ok := ru.GetClaim(claims.EmailVerified).(bool); ok {
		user.EmailVerified = verified
	}
	if v := ru.Claims.String(claims.GivenName); v != "" {
		user.Profile.GivenName = v
	}
	if v := ru.Claims.String(claims.FamilyName); v != "" {
		user.Profile.FamilyName = v
	}
	if v := ru.Claims.String(claims.Picture); v != "" {
		user.Profile.Picture = v
	}
	if v := ru.Claims.String(claims.Locale); v != "" {
		user.Profile.Locale = v
	}
}
