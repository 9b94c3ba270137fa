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

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/trustbridge/trustbridge/internal/identity"
)

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new local user
func (r *UserRepository) Create(user *identity.User) error {
	ctx := context.Background()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, email_verified, display_name,
			given_name, family_name, picture, locale,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		user.ID, user.Email, user.EmailVerified, user.DisplayName,
		user.Profile.GivenName, user.Profile.FamilyName, user.Profile.Picture, user.Profile.Locale,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(id string) (*identity.User, error) {
	ctx := context.Background()

	var user identity.User
	var lastLogin sql.NullTime

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, email, email_verified, display_name,
			given_name, family_name, picture, locale,
			created_at, updated_at, last_login_at
		FROM users
		WHERE id = $1
	`, id).Scan(
		&user.ID, &user.Email, &user.EmailVerified, &user.DisplayName,
		&user.Profile.GivenName, &user.Profile.FamilyName, &user.Profile.Picture, &user.Profile.Locale,
		&user.CreatedAt, &user.UpdatedAt, &lastLogin,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}

	return &user, nil
}

// Update updates user attributes
func (r *UserRepository) Update(user *identity.User) error {
	ctx := context.Background()
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users SET
			email = $2, email_verified = $3, display_name = $4,
			given_name = $5, family_name = $6, picture = $7, locale = $8,
			updated_at = $9
		WHERE id = $1
	`,
		user.ID, user.Email, user.EmailVerified, user.DisplayName,
		user.Profile.GivenName, user.Profile.FamilyName, user.Profile.Picture, user.Profile.Locale,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// TouchLogin records a successful login timestamp
func (r *UserRepository) TouchLogin(userID string, at time.Time) error {
	ctx := context.Background()
	tag, err := r.db.pool.Exec(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}
