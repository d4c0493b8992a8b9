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

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileCache stores entries as files under a base directory, one file per
// key, with the expiry embedded in the entry. Keys are hashed so arbitrary
// strings are safe as filenames.
type FileCache struct {
	basePath string
}

type fileEntry struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
	Value     []byte    `json:"value"`
}

// NewFileCache creates a file-backed cache rooted at basePath, creating the
// directory if needed.
func NewFileCache(basePath string) (*FileCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileCache{basePath: basePath}, nil
}

// Get retrieves the value for key. Returns ErrMiss if absent, expired, or
// unreadable; an expired entry is removed on the way out.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, error) {
	path := c.entryPath(key)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrMiss
	}

	var entry fileEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// Corrupt entry: drop it rather than serve garbage.
		os.Remove(path)
		return nil, ErrMiss
	}

	if time.Now().After(entry.ExpiresAt) {
		os.Remove(path)
		return nil, ErrMiss
	}

	return entry.Value, nil
}

// SetWithTTL stores value under key, replacing any previous entry. The
// write goes through a temp file and rename so readers never observe a
// partial entry.
func (c *FileCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := fileEntry{
		Key:       key,
		ExpiresAt: time.Now().Add(ttl),
		Value:     value,
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	path := c.entryPath(key)
	tmp, err := os.CreateTemp(c.basePath, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %w", err)
	}

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close cache temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

func (c *FileCache) entryPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.basePath, hex.EncodeToString(sum[:16])+".json")
}
