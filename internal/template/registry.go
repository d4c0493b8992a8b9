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

package template

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flowsmith/flowsmith/internal/cache"
	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
)

// snapshotKey is the cache key for the serialized all-templates snapshot.
const snapshotKey = "templates:all"

// debounceDelay coalesces bursts of filesystem events into one reload.
const debounceDelay = 250 * time.Millisecond

// StoreSource lists templates persisted in the workflow store. Store-held
// templates override disk templates with the same ID.
type StoreSource interface {
	ListTemplates(ctx context.Context) ([]*Template, error)
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Dir is the directory scanned for *.json template files. Empty
	// disables the disk source.
	Dir string

	// Store is the persistent template source. Nil disables it.
	Store StoreSource

	// Cache holds the serialized snapshot. Nil disables caching.
	Cache cache.Cache

	// TTL bounds the snapshot's cache lifetime.
	TTL time.Duration

	Logger *slog.Logger
}

// Registry is the authoritative in-memory view of all known templates,
// assembled from the disk directory and the store, with a best-effort
// serialized snapshot kept in the cache.
type Registry struct {
	dir    string
	store  StoreSource
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]*Template

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry builds a registry and performs the initial load.
func NewRegistry(ctx context.Context, cfg RegistryConfig) (*Registry, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := cfg.Cache
	if c == nil {
		c = cache.Noop{}
	}

	r := &Registry{
		dir:       cfg.Dir,
		store:     cfg.Store,
		cache:     c,
		ttl:       cfg.TTL,
		logger:    logger.With("component", "template-registry"),
		templates: make(map[string]*Template),
		done:      make(chan struct{}),
	}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rescans the disk directory and the store and replaces the
// in-memory set. Malformed disk files are skipped with a warning rather
// than failing the whole load. The cached snapshot is invalidated by
// rewriting it.
func (r *Registry) Reload(ctx context.Context) error {
	merged := make(map[string]*Template)

	if r.dir != "" {
		entries, err := os.ReadDir(r.dir)
		if err != nil {
			return fmt.Errorf("reading template directory %s: %w", r.dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			path := filepath.Join(r.dir, entry.Name())
			raw, err := os.ReadFile(path)
			if err != nil {
				r.logger.Warn("skipping unreadable template file", "path", path, "error", err)
				continue
			}
			t, err := ParseTemplate(raw)
			if err != nil {
				r.logger.Warn("skipping malformed template file", "path", path, "error", err)
				continue
			}
			merged[t.ID] = t
		}
	}

	if r.store != nil {
		stored, err := r.store.ListTemplates(ctx)
		if err != nil {
			return fmt.Errorf("loading templates from store: %w", err)
		}
		for _, t := range stored {
			if err := t.Validate(); err != nil {
				r.logger.Warn("skipping invalid stored template", "template_id", t.ID, "error", err)
				continue
			}
			merged[t.ID] = t
		}
	}

	r.mu.Lock()
	r.templates = merged
	r.mu.Unlock()

	r.logger.Info("templates loaded", "count", len(merged))
	r.writeSnapshot(ctx)
	return nil
}

// All returns every known template sorted by ID. It first consults the
// cached snapshot; any cache failure falls back to the in-memory set.
func (r *Registry) All(ctx context.Context) []*Template {
	if raw, err := r.cache.Get(ctx, snapshotKey); err == nil {
		var templates []*Template
		if err := json.Unmarshal(raw, &templates); err == nil {
			return templates
		}
		r.logger.Warn("discarding undecodable template snapshot")
	}

	templates := r.list()
	r.writeSnapshot(ctx)
	return templates
}

// Get returns the template with the given ID.
func (r *Registry) Get(id string) (*Template, error) {
	r.mu.RLock()
	t, ok := r.templates[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &flowerrors.NotFoundError{Resource: "template", ID: id}
	}
	return t, nil
}

// Watch starts a filesystem watcher on the template directory and reloads
// on changes. It is a no-op when no directory is configured.
func (r *Registry) Watch(ctx context.Context) error {
	if r.dir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating template watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching template directory %s: %w", r.dir, err)
	}
	r.watcher = watcher

	go r.watchLoop(ctx)
	return nil
}

func (r *Registry) watchLoop(ctx context.Context) {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				pending = timer.C
			} else {
				timer.Reset(debounceDelay)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("template watcher error", "error", err)
		case <-pending:
			timer = nil
			pending = nil
			if err := r.Reload(ctx); err != nil {
				r.logger.Error("template reload failed", "error", err)
			}
		}
	}
}

// Close stops the watcher if one is running.
func (r *Registry) Close() error {
	close(r.done)
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

func (r *Registry) list() []*Template {
	r.mu.RLock()
	templates := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		templates = append(templates, t)
	}
	r.mu.RUnlock()

	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates
}

// writeSnapshot refreshes the cached snapshot. Failures are logged and
// otherwise ignored; the cache is never authoritative.
func (r *Registry) writeSnapshot(ctx context.Context) {
	templates := r.list()
	raw, err := json.Marshal(templates)
	if err != nil {
		r.logger.Warn("encoding template snapshot failed", "error", err)
		return
	}
	if err := r.cache.SetWithTTL(ctx, snapshotKey, raw, r.ttl); err != nil {
		r.logger.Warn("caching template snapshot failed", "error", err)
	}
}
