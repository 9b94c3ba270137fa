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

// Package id generates identifiers for entities and sessions.
package id

import "github.com/google/uuid"

// NewUUIDv7 returns a time-ordered UUID. Version 7 keeps index
// locality in postgres for append-heavy tables.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
