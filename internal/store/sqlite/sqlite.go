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

// Package sqlite provides a SQLite store implementation for single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowsmith/flowsmith/internal/store"
	"github.com/flowsmith/flowsmith/internal/template"
	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
)

var _ store.Store = (*Store)(nil)

// Store is a SQLite-backed store.
type Store struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens the database, applies pragmas, and runs migrations.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, &flowerrors.StoreError{Op: "open", Cause: err}
	}

	// SQLite serializes writes, so keep a single connection.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &flowerrors.StoreError{Op: "ping", Cause: err}
	}

	s := &Store{db: db}
	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return &flowerrors.StoreError{Op: "pragma", Cause: fmt.Errorf("%s: %w", pragma, err)}
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			template_id TEXT NOT NULL,
			remote_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			webhook_url TEXT,
			configuration TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_owner ON workflows(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_remote ON workflows(remote_id)`,
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return &flowerrors.StoreError{Op: "migrate", Cause: err}
		}
	}
	return nil
}

// CreateWorkflow inserts a new workflow record.
func (s *Store) CreateWorkflow(ctx context.Context, w *store.Workflow) error {
	configJSON, err := json.Marshal(w.Configuration)
	if err != nil {
		return &flowerrors.StoreError{Op: "create workflow", Cause: fmt.Errorf("marshaling configuration: %w", err)}
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO workflows (id, owner_id, template_id, remote_id, name, status, webhook_url, configuration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		w.ID, w.OwnerID, w.TemplateID, w.RemoteID, w.Name, string(w.Status),
		nullString(w.WebhookURL), string(configJSON),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return &flowerrors.StoreError{Op: "create workflow", Cause: err}
	}

	w.CreatedAt = now
	w.UpdatedAt = now
	return nil
}

// GetWorkflow retrieves a workflow by local ID.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*store.Workflow, error) {
	query := `
		SELECT id, owner_id, template_id, remote_id, name, status, webhook_url, configuration, created_at, updated_at
		FROM workflows WHERE id = ?
	`
	w, err := scanWorkflow(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &flowerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	if err != nil {
		return nil, &flowerrors.StoreError{Op: "get workflow", Cause: err}
	}
	return w, nil
}

// ListWorkflows returns workflows for an owner, newest first. An empty
// owner ID returns every workflow.
func (s *Store) ListWorkflows(ctx context.Context, ownerID string) ([]*store.Workflow, error) {
	query := `
		SELECT id, owner_id, template_id, remote_id, name, status, webhook_url, configuration, created_at, updated_at
		FROM workflows
	`
	args := []any{}
	if ownerID != "" {
		query += " WHERE owner_id = ?"
		args = append(args, ownerID)
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &flowerrors.StoreError{Op: "list workflows", Cause: err}
	}
	defer rows.Close()

	var workflows []*store.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, &flowerrors.StoreError{Op: "list workflows", Cause: err}
		}
		workflows = append(workflows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, &flowerrors.StoreError{Op: "list workflows", Cause: err}
	}
	return workflows, nil
}

// UpdateWorkflow overwrites an existing record.
func (s *Store) UpdateWorkflow(ctx context.Context, w *store.Workflow) error {
	configJSON, err := json.Marshal(w.Configuration)
	if err != nil {
		return &flowerrors.StoreError{Op: "update workflow", Cause: fmt.Errorf("marshaling configuration: %w", err)}
	}

	now := time.Now().UTC()
	query := `
		UPDATE workflows
		SET owner_id = ?, template_id = ?, remote_id = ?, name = ?, status = ?, webhook_url = ?, configuration = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		w.OwnerID, w.TemplateID, w.RemoteID, w.Name, string(w.Status),
		nullString(w.WebhookURL), string(configJSON), now.Format(time.RFC3339), w.ID,
	)
	if err != nil {
		return &flowerrors.StoreError{Op: "update workflow", Cause: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &flowerrors.NotFoundError{Resource: "workflow", ID: w.ID}
	}

	w.UpdatedAt = now
	return nil
}

// DeleteWorkflow removes a record by local ID.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return &flowerrors.StoreError{Op: "delete workflow", Cause: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &flowerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	return nil
}

// PutTemplate inserts or replaces a stored template.
func (s *Store) PutTemplate(ctx context.Context, t *template.Template) error {
	if err := t.Validate(); err != nil {
		return &flowerrors.StoreError{Op: "put template", Cause: err}
	}
	body, err := json.Marshal(t)
	if err != nil {
		return &flowerrors.StoreError{Op: "put template", Cause: err}
	}

	query := `
		INSERT INTO templates (id, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, t.ID, string(body), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return &flowerrors.StoreError{Op: "put template", Cause: err}
	}
	return nil
}

// ListTemplates returns all stored templates.
func (s *Store) ListTemplates(ctx context.Context) ([]*template.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM templates ORDER BY id`)
	if err != nil {
		return nil, &flowerrors.StoreError{Op: "list templates", Cause: err}
	}
	defer rows.Close()

	var templates []*template.Template
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, &flowerrors.StoreError{Op: "list templates", Cause: err}
		}
		var t template.Template
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			return nil, &flowerrors.StoreError{Op: "list templates", Cause: err}
		}
		templates = append(templates, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, &flowerrors.StoreError{Op: "list templates", Cause: err}
	}
	return templates, nil
}

// DeleteTemplate removes a stored template by ID.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return &flowerrors.StoreError{Op: "delete template", Cause: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &flowerrors.NotFoundError{Resource: "template", ID: id}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (*store.Workflow, error) {
	var w store.Workflow
	var status, configJSON string
	var webhookURL sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&w.ID, &w.OwnerID, &w.TemplateID, &w.RemoteID, &w.Name, &status,
		&webhookURL, &configJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Status = store.Status(status)
	if webhookURL.Valid {
		w.WebhookURL = webhookURL.String
	}
	if err := json.Unmarshal([]byte(configJSON), &w.Configuration); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
