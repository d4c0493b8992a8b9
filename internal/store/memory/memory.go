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

// Package memory provides an in-memory store for tests and ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowsmith/flowsmith/internal/store"
	"github.com/flowsmith/flowsmith/internal/template"
	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
)

var _ store.Store = (*Store)(nil)

// Store is a mutex-guarded in-memory store.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]store.Workflow
	templates map[string]*template.Template
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		workflows: make(map[string]store.Workflow),
		templates: make(map[string]*template.Template),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// CreateWorkflow inserts a new workflow record.
func (s *Store) CreateWorkflow(_ context.Context, w *store.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[w.ID]; exists {
		return &flowerrors.StoreError{Op: "create workflow", Cause: fmt.Errorf("duplicate id %s", w.ID)}
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	s.workflows[w.ID] = *w
	return nil
}

// GetWorkflow retrieves a workflow by local ID.
func (s *Store) GetWorkflow(_ context.Context, id string) (*store.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workflows[id]
	if !ok {
		return nil, &flowerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	copied := w
	return &copied, nil
}

// ListWorkflows returns workflows for an owner, newest first.
func (s *Store) ListWorkflows(_ context.Context, ownerID string) ([]*store.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var workflows []*store.Workflow
	for _, w := range s.workflows {
		if ownerID != "" && w.OwnerID != ownerID {
			continue
		}
		copied := w
		workflows = append(workflows, &copied)
	}
	sort.Slice(workflows, func(i, j int) bool {
		if !workflows[i].CreatedAt.Equal(workflows[j].CreatedAt) {
			return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
		}
		return workflows[i].ID < workflows[j].ID
	})
	return workflows, nil
}

// UpdateWorkflow overwrites an existing record.
func (s *Store) UpdateWorkflow(_ context.Context, w *store.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.workflows[w.ID]
	if !ok {
		return &flowerrors.NotFoundError{Resource: "workflow", ID: w.ID}
	}
	w.CreatedAt = existing.CreatedAt
	w.UpdatedAt = time.Now().UTC()
	s.workflows[w.ID] = *w
	return nil
}

// DeleteWorkflow removes a record by local ID.
func (s *Store) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return &flowerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	delete(s.workflows, id)
	return nil
}

// PutTemplate inserts or replaces a stored template.
func (s *Store) PutTemplate(_ context.Context, t *template.Template) error {
	if err := t.Validate(); err != nil {
		return &flowerrors.StoreError{Op: "put template", Cause: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
	return nil
}

// ListTemplates returns all stored templates sorted by ID.
func (s *Store) ListTemplates(_ context.Context) ([]*template.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	templates := make([]*template.Template, 0, len(s.templates))
	for _, t := range s.templates {
		templates = append(templates, t)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

// DeleteTemplate removes a stored template by ID.
func (s *Store) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return &flowerrors.NotFoundError{Resource: "template", ID: id}
	}
	delete(s.templates, id)
	return nil
}
