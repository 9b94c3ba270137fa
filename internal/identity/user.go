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
	"errors"
	"time"
)

// Domain errors
var (
	ErrUserNotFound = errors.New("user not found")
	ErrLinkNotFound = errors.New("identity link not found")
	ErrLinkConflict = errors.New("identity link already bound to another user")
)

// User represents a local account in the broker. Local accounts carry
// no credentials; authentication always happens upstream.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	DisplayName   string
	Profile       Profile
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLoginAt   *time.Time
}

// Profile represents user profile attributes mirrored from upstream claims
type Profile struct {
	GivenName  string
	FamilyName string
	Picture    string
	Locale     string
}

// Link binds an upstream (provider, subject) pair to a local user. The
// pair is unique: one upstream identity maps to exactly one account.
type Link struct {
	Provider  string
	Subject   string
	UserID    string
	CreatedAt time.Time
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create creates a new local user
	Create(user *User) error

	// GetByID retrieves a user by ID
	GetByID(id string) (*User, error)

	// Update updates user attributes
	Update(user *User) error

	// TouchLogin records a successful login timestamp
	TouchLogin(userID string, at time.Time) error
}

// LinkRepository defines the interface for identity link persistence
type LinkRepository interface {
	// Create creates a new identity link
	Create(link *Link) error

	// Get retrieves the link for an upstream (provider, subject) pair
	Get(provider, subject string) (*Link, error)

	// DeleteByUserID removes all links of a user
	DeleteByUserID(userID string) error
}
