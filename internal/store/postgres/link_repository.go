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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/trustbridge/trustbridge/internal/identity"
)

// LinkRepository implements identity.LinkRepository
type LinkRepository struct {
	db *DB
}

// NewLinkRepository creates a new identity link repository
func NewLinkRepository(db *DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Create creates a new identity link
func (r *LinkRepository) Create(link *identity.Link) error {
	ctx := context.Background()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO identity_links (provider, subject, user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, link.Provider, link.Subject, link.UserID, link.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return identity.ErrLinkConflict
		}
		return fmt.Errorf("failed to insert identity link: %w", err)
	}
	return nil
}

// Get retrieves the link for an upstream (provider, subject) pair
func (r *LinkRepository) Get(provider, subject string) (*identity.Link, error) {
	ctx := context.Background()

	var link identity.Link
	err := r.db.pool.QueryRow(ctx, `
		SELECT provider, subject, user_id, created_at
		FROM identity_links
		WHERE provider = $1 AND subject = $2
	`, provider, subject).Scan(
		&link.Provider, &link.Subject, &link.UserID, &link.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get identity link: %w", err)
	}

	return &link, nil
}

// DeleteByUserID removes all links of a user
func (r *LinkRepository) DeleteByUserID(userID string) error {
	ctx := context.Background()
	_, err := r.db.pool.Exec(ctx,
		`DELETE FROM identity_links WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete identity links: %w", err)
	}
	return nil
}
