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

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/trustbridge/trustbridge/internal/id"
)

// Service provides session lifecycle management
type Service struct {
	repo        Repository
	lifetime    time.Duration
	idleTimeout time.Duration
}

// NewService creates a new session service
func NewService(repo Repository, lifetime, idleTimeout time.Duration) *Service {
	return &Service{
		repo:        repo,
		lifetime:    lifetime,
		idleTimeout: idleTimeout,
	}
}

// Create starts a session for a user logged in via the named provider
func (s *Service) Create(ctx context.Context, userID, provider, ipAddress, userAgent string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:         id.NewUUIDv7(),
		UserID:     userID,
		Provider:   provider,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		ExpiresAt:  now.Add(s.lifetime),
		CreatedAt:  now,
		LastSeenAt: now,
	}

	if err := s.repo.Create(sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

// Get retrieves a valid session. Expired or idle sessions are removed
// and reported as expired.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	if sess.IsExpired() || sess.IsIdle(s.idleTimeout) {
		_ = s.repo.Delete(sessionID)
		return nil, ErrSessionExpired
	}

	return sess, nil
}

// Refresh updates the session's last seen time
func (s *Service) Refresh(ctx context.Context, sessionID string) error {
	sess, err := s.repo.Get(sessionID)
	if err != nil {
		return ErrSessionNotFound
	}

	sess.LastSeenAt = time.Now()
	return s.repo.Update(sess)
}

// Destroy removes a session
func (s *Service) Destroy(ctx context.Context, sessionID string) error {
	return s.repo.Delete(sessionID)
}

// DestroyAll removes every session of a user
func (s *Service) DestroyAll(ctx context.Context, userID string) error {
	return s.repo.DeleteByUserID(userID)
}

// CleanupExpired removes expired sessions
func (s *Service) CleanupExpired(ctx context.Context) error {
	return s.repo.DeleteExpired()
}
