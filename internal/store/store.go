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

// Package store defines the persistence interfaces for workflows and
// templates, with SQLite and in-memory implementations in subpackages.
package store

import (
	"context"
	"time"

	"github.com/flowsmith/flowsmith/internal/template"
	"github.com/flowsmith/flowsmith/pkg/document"
)

// Status is a workflow's local lifecycle state.
type Status string

const (
	// StatusActive means the remote workflow is activated and its trigger
	// is live.
	StatusActive Status = "active"

	// StatusPaused means the remote workflow exists but is deactivated.
	StatusPaused Status = "paused"
)

// Workflow is the local record of a compiled workflow instance. RemoteID
// is the engine's identifier; ID is ours and never changes.
type Workflow struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	TemplateID string `json:"template_id"`
	RemoteID   string `json:"remote_id"`
	Name       string `json:"name"`
	Status     Status `json:"status"`
	WebhookURL string `json:"webhook_url,omitempty"`

	// Configuration is the validated, default-filled input set the
	// workflow was compiled with.
	Configuration document.Value `json:"configuration"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowStore persists workflow records.
type WorkflowStore interface {
	// CreateWorkflow inserts a new record and stamps CreatedAt/UpdatedAt.
	CreateWorkflow(ctx context.Context, w *Workflow) error

	// GetWorkflow returns the record with the given local ID.
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)

	// ListWorkflows returns records for an owner, newest first. An empty
	// owner ID returns all records.
	ListWorkflows(ctx context.Context, ownerID string) ([]*Workflow, error)

	// UpdateWorkflow overwrites the record with the given local ID.
	UpdateWorkflow(ctx context.Context, w *Workflow) error

	// DeleteWorkflow removes the record with the given local ID.
	DeleteWorkflow(ctx context.Context, id string) error
}

// TemplateStore persists templates alongside the disk-backed set. Stored
// templates override disk templates with the same ID at registry load.
type TemplateStore interface {
	PutTemplate(ctx context.Context, t *template.Template) error
	ListTemplates(ctx context.Context) ([]*template.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
}

// Store is the full persistence surface.
type Store interface {
	WorkflowStore
	TemplateStore

	Close() error
}
