// Copyright 2025 The Flowsmith Authors
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

// Package cache provides an opportunistic key-value cache with TTL.
// It is a best-effort collaborator: callers treat every failure as a miss
// and fall through to the authoritative source. It must never be relied on
// as a source of truth.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or its entry has expired.
var ErrMiss = errors.New("cache miss")

// Cache is a key-value store with per-entry TTL.
type Cache interface {
	// Get retrieves the value for key. Returns ErrMiss if absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithTTL stores value under key with the given time-to-live.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Noop is a Cache that stores nothing. Every read is a miss.
type Noop struct{}

// Get always returns ErrMiss.
func (Noop) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrMiss
}

// SetWithTTL discards the value.
func (Noop) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
