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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	sessions map[string]*Session
	deletes  int
}

func newMockRepository() *mockRepository {
	return &mockRepository{sessions: make(map[string]*Session)}
}

func (m *mockRepository) Create(sess *Session) error {
	m.sessions[sess.ID] = sess
	return nil
}

func (m *mockRepository) Get(sessionID string) (*Session, error) {
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *sess
	return &copied, nil
}

func (m *mockRepository) Update(sess *Session) error {
	if _, ok := m.sessions[sess.ID]; !ok {
		return ErrSessionNotFound
	}
	m.sessions[sess.ID] = sess
	return nil
}

func (m *mockRepository) Delete(sessionID string) error {
	delete(m.sessions, sessionID)
	m.deletes++
	return nil
}

func (m *mockRepository) DeleteByUserID(userID string) error {
	for id, sess := range m.sessions {
		if sess.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *mockRepository) DeleteExpired() error {
	for id, sess := range m.sessions {
		if sess.IsExpired() {
			delete(m.sessions, id)
		}
	}
	return nil
}

// =============================================================================
// SESSION LIFECYCLE TESTS
// Category: Session - Creation, Expiry & Teardown
// Type: Unit Test (UT)
// =============================================================================

// TestPurpose: Validates session creation with configured lifetime.
// Scope: Unit Test
// Expected: Opaque ID, correct expiry window, session retrievable.
func TestCreate_StoresSessionWithLifetime(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, time.Hour, 30*time.Minute)

	sess, err := svc.Create(context.Background(), "user-1", "corp", "203.0.113.7", "test-agent")
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, "corp", sess.Provider)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, 5*time.Second)

	got, err := svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

// TestPurpose: Validates that expired sessions are purged on access and
// reported as expired, not missing.
// Scope: Unit Test
// Security: Expired sessions must never authenticate requests
// Expected: ErrSessionExpired and the row removed.
func TestGet_Expired_PurgedAndRejected(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, time.Hour, 30*time.Minute)

	repo.sessions["expired"] = &Session{
		ID:         "expired",
		UserID:     "user-1",
		ExpiresAt:  time.Now().Add(-time.Minute),
		LastSeenAt: time.Now(),
	}

	_, err := svc.Get(context.Background(), "expired")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.NotContains(t, repo.sessions, "expired")
}

// TestPurpose: Validates the idle timeout: a session seen too long ago
// is rejected even before its absolute expiry.
// Scope: Unit Test
// Expected: ErrSessionExpired.
func TestGet_Idle_Rejected(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, 24*time.Hour, 30*time.Minute)

	repo.sessions["idle"] = &Session{
		ID:         "idle",
		UserID:     "user-1",
		ExpiresAt:  time.Now().Add(23 * time.Hour),
		LastSeenAt: time.Now().Add(-time.Hour),
	}

	_, err := svc.Get(context.Background(), "idle")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

// TestPurpose: Validates that Refresh slides the idle window forward.
// Scope: Unit Test
// Expected: LastSeenAt is advanced in the store.
func TestRefresh_AdvancesLastSeen(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, time.Hour, 30*time.Minute)

	sess, err := svc.Create(context.Background(), "user-1", "corp", "", "")
	require.NoError(t, err)

	stale := time.Now().Add(-20 * time.Minute)
	repo.sessions[sess.ID].LastSeenAt = stale

	require.NoError(t, svc.Refresh(context.Background(), sess.ID))
	assert.True(t, repo.sessions[sess.ID].LastSeenAt.After(stale))
}

// TestPurpose: Validates single-session and all-session teardown.
// Scope: Unit Test
// Expected: Destroy removes one session; DestroyAll removes every
// session of the user and nobody else's.
func TestDestroy_And_DestroyAll(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, time.Hour, 30*time.Minute)

	a, err := svc.Create(context.Background(), "user-1", "corp", "", "")
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "user-1", "google", "", "")
	require.NoError(t, err)
	other, err := svc.Create(context.Background(), "user-2", "corp", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Destroy(context.Background(), a.ID))
	assert.NotContains(t, repo.sessions, a.ID)

	require.NoError(t, svc.DestroyAll(context.Background(), "user-1"))
	assert.Len(t, repo.sessions, 1)
	assert.Contains(t, repo.sessions, other.ID)
}

// TestPurpose: Validates the background cleanup entry point.
// Scope: Unit Test
// Expected: Only expired sessions are removed.
func TestCleanupExpired_RemovesOnlyExpired(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, time.Hour, 30*time.Minute)

	live, err := svc.Create(context.Background(), "user-1", "corp", "", "")
	require.NoError(t, err)
	repo.sessions["dead"] = &Session{
		ID:        "dead",
		ExpiresAt: time.Now().Add(-time.Minute),
	}

	require.NoError(t, svc.CleanupExpired(context.Background()))
	assert.Contains(t, repo.sessions, live.ID)
	assert.NotContains(t, repo.sessions, "dead")
}
