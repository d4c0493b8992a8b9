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

// Package builder is the workflow lifecycle manager. It orchestrates
// validate, substitute, inject, submit, activate, and persist, plus
// update, toggle, and delete with compensation between the local store
// and the remote engine.
package builder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flowsmith/flowsmith/internal/compile"
	"github.com/flowsmith/flowsmith/internal/engine"
	"github.com/flowsmith/flowsmith/internal/log"
	"github.com/flowsmith/flowsmith/internal/metrics"
	"github.com/flowsmith/flowsmith/internal/store"
	"github.com/flowsmith/flowsmith/internal/template"
	"github.com/flowsmith/flowsmith/pkg/document"
)

// TemplateSource resolves template IDs. Satisfied by *template.Registry.
type TemplateSource interface {
	Get(id string) (*template.Template, error)
}

// EngineClient is the subset of the engine client the lifecycle manager
// needs. Satisfied by *engine.Client.
type EngineClient interface {
	CreateDefinition(ctx context.Context, def document.Value) (*engine.RemoteWorkflow, error)
	UpdateDefinition(ctx context.Context, remoteID string, def document.Value) (*engine.RemoteWorkflow, error)
	Activate(ctx context.Context, remoteID string) error
	Deactivate(ctx context.Context, remoteID string) error
	Delete(ctx context.Context, remoteID string) error
	List(ctx context.Context, activeOnly bool) ([]*engine.RemoteWorkflow, error)
	TriggerViaWebhook(ctx context.Context, webhookPath string, payload document.Value) (document.Value, error)
	ListExecutions(ctx context.Context, remoteWorkflowID string) ([]*engine.Execution, error)
	WebhookURL(def document.Value) (string, error)
}

// Builder manages the lifecycle of instantiated workflows.
type Builder struct {
	templates TemplateSource
	compiler  *compile.Compiler
	engine    EngineClient
	store     store.WorkflowStore
	logger    *slog.Logger

	newID func() string
}

// New creates a Builder.
func New(templates TemplateSource, compiler *compile.Compiler, engineClient EngineClient, workflowStore store.WorkflowStore, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		templates: templates,
		compiler:  compiler,
		engine:    engineClient,
		store:     workflowStore,
		logger:    log.WithComponent(logger, "builder"),
		newID:     uuid.NewString,
	}
}

// CreateRequest instantiates a template for a user.
type CreateRequest struct {
	TemplateID string
	UserID     string
	Inputs     map[string]document.Value

	// Name overrides the generated instance name when non-empty.
	Name string
}

// Create compiles, submits, activates, and persists a new workflow.
// Validation failures surface before any network call. If persistence
// fails after the remote artifact exists, the remote artifact is deleted
// best-effort before the persistence error is returned.
func (b *Builder) Create(ctx context.Context, req CreateRequest) (*store.Workflow, error) {
	tmpl, err := b.templates.Get(req.TemplateID)
	if err != nil {
		return nil, err
	}

	res, err := b.compiler.Compile(ctx, compile.Request{
		Template:     tmpl,
		UserID:       req.UserID,
		Inputs:       req.Inputs,
		InstanceName: req.Name,
	})
	if err != nil {
		metrics.Compilations.WithLabelValues(req.TemplateID, "failure").Inc()
		b.logger.Warn("compilation failed",
			log.TemplateIDKey, req.TemplateID, log.OwnerIDKey, req.UserID, log.Error(err))
		return nil, err
	}
	metrics.Compilations.WithLabelValues(req.TemplateID, "success").Inc()

	remote, err := b.engine.CreateDefinition(ctx, res.Definition)
	if err != nil {
		b.logger.Error("remote create failed",
			log.TemplateIDKey, req.TemplateID, log.OwnerIDKey, req.UserID, log.Error(err))
		return nil, err
	}

	if err := b.engine.Activate(ctx, remote.ID); err != nil {
		b.logger.Error("remote activation failed",
			log.TemplateIDKey, req.TemplateID, log.OwnerIDKey, req.UserID, log.RemoteIDKey, remote.ID, log.Error(err))
		b.compensateRemote(ctx, remote.ID)
		return nil, err
	}

	// Not every template has a webhook trigger; schedule-driven
	// workflows legitimately have no externally callable URL.
	webhookURL, err := b.engine.WebhookURL(res.Definition)
	if err != nil {
		b.logger.Debug("no webhook URL for workflow",
			log.TemplateIDKey, req.TemplateID, log.RemoteIDKey, remote.ID, "reason", err)
		webhookURL = ""
	}

	w := &store.Workflow{
		ID:            b.newID(),
		OwnerID:       req.UserID,
		TemplateID:    req.TemplateID,
		RemoteID:      remote.ID,
		Name:          res.InstanceName,
		Status:        store.StatusActive,
		WebhookURL:    webhookURL,
		Configuration: document.Mapping(res.Configuration),
	}
	if err := b.store.CreateWorkflow(ctx, w); err != nil {
		b.logger.Error("persisting workflow failed, rolling back remote artifact",
			log.TemplateIDKey, req.TemplateID, log.OwnerIDKey, req.UserID, log.RemoteIDKey, remote.ID, log.Error(err))
		b.compensateRemote(ctx, remote.ID)
		return nil, err
	}

	metrics.WorkflowsActive.Inc()
	log.WithWorkflowContext(b.logger, w.ID, req.UserID).Info("workflow created",
		log.TemplateIDKey, req.TemplateID, log.RemoteIDKey, remote.ID)
	return w, nil
}

// compensateRemote deletes an orphaned remote artifact. Failure is logged
// and swallowed; the original error drives the caller's outcome.
func (b *Builder) compensateRemote(ctx context.Context, remoteID string) {
	if err := b.engine.Delete(ctx, remoteID); err != nil {
		b.logger.Warn("compensating remote delete failed, artifact orphaned",
			log.RemoteIDKey, remoteID, log.Error(err))
	}
}

// Update merges partial configuration updates into the stored
// configuration, re-validates against the template, recompiles, pushes to
// the remote engine, and commits locally only after the remote accepts.
func (b *Builder) Update(ctx context.Context, workflowID string, updates map[string]document.Value) (*store.Workflow, error) {
	w, err := b.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	tmpl, err := b.templates.Get(w.TemplateID)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]document.Value, len(w.Configuration.Map())+len(updates))
	for k, v := range w.Configuration.Map() {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}

	res, err := b.compiler.Compile(ctx, compile.Request{
		Template:     tmpl,
		UserID:       w.OwnerID,
		Inputs:       merged,
		InstanceName: w.Name,
	})
	if err != nil {
		b.logger.Warn("recompilation failed",
			log.WorkflowIDKey, workflowID, log.TemplateIDKey, w.TemplateID, log.Error(err))
		return nil, err
	}

	if _, err := b.engine.UpdateDefinition(ctx, w.RemoteID, res.Definition); err != nil {
		b.logger.Error("remote update failed",
			log.WorkflowIDKey, workflowID, log.RemoteIDKey, w.RemoteID, log.Error(err))
		return nil, err
	}

	w.Configuration = document.Mapping(res.Configuration)
	if err := b.store.UpdateWorkflow(ctx, w); err != nil {
		// Remote already carries the new definition; the next
		// reconciliation or update heals the divergence.
		b.logger.Error("local commit after remote update failed",
			log.WorkflowIDKey, workflowID, log.RemoteIDKey, w.RemoteID, log.Error(err))
		return nil, err
	}

	b.logger.Info("workflow updated", log.WorkflowIDKey, workflowID, log.RemoteIDKey, w.RemoteID)
	return w, nil
}

// Toggle flips the remote activation flag and mirrors it into the local
// status. A remote failure aborts without touching local state.
func (b *Builder) Toggle(ctx context.Context, workflowID string, active bool) (*store.Workflow, error) {
	w, err := b.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if active {
		err = b.engine.Activate(ctx, w.RemoteID)
	} else {
		err = b.engine.Deactivate(ctx, w.RemoteID)
	}
	if err != nil {
		b.logger.Error("remote toggle failed",
			log.WorkflowIDKey, workflowID, log.RemoteIDKey, w.RemoteID, "active", active, log.Error(err))
		return nil, err
	}

	previous := w.Status
	if active {
		w.Status = store.StatusActive
	} else {
		w.Status = store.StatusPaused
	}
	if err := b.store.UpdateWorkflow(ctx, w); err != nil {
		return nil, err
	}

	switch {
	case previous != store.StatusActive && w.Status == store.StatusActive:
		metrics.WorkflowsActive.Inc()
	case previous == store.StatusActive && w.Status != store.StatusActive:
		metrics.WorkflowsActive.Dec()
	}
	b.logger.Info("workflow toggled", log.WorkflowIDKey, workflowID, "active", active)
	return w, nil
}

// Delete removes a workflow. The remote deletion is best-effort; the
// local record is removed regardless of the remote outcome.
func (b *Builder) Delete(ctx context.Context, workflowID string) error {
	w, err := b.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	if err := b.engine.Delete(ctx, w.RemoteID); err != nil {
		b.logger.Warn("remote delete failed, removing local record anyway",
			log.WorkflowIDKey, workflowID, log.RemoteIDKey, w.RemoteID, log.Error(err))
	}

	if err := b.store.DeleteWorkflow(ctx, workflowID); err != nil {
		return err
	}
	if w.Status == store.StatusActive {
		metrics.WorkflowsActive.Dec()
	}
	b.logger.Info("workflow deleted", log.WorkflowIDKey, workflowID, log.RemoteIDKey, w.RemoteID)
	return nil
}

// Get returns the local record.
func (b *Builder) Get(ctx context.Context, workflowID string) (*store.Workflow, error) {
	return b.store.GetWorkflow(ctx, workflowID)
}

// List returns local records for an owner, or all records when the owner
// is empty.
func (b *Builder) List(ctx context.Context, ownerID string) ([]*store.Workflow, error) {
	return b.store.ListWorkflows(ctx, ownerID)
}

// Trigger invokes a workflow's webhook with the given payload.
func (b *Builder) Trigger(ctx context.Context, workflowID string, payload document.Value) (document.Value, error) {
	w, err := b.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return document.Value{}, err
	}
	if w.WebhookURL == "" {
		return document.Value{}, fmt.Errorf("workflow %s has no webhook trigger", workflowID)
	}
	// The subscription path is forced to {owner}/{name} at compile time.
	return b.engine.TriggerViaWebhook(ctx, w.OwnerID+"/"+w.Name, payload)
}

// Executions lists the remote execution history of a workflow.
func (b *Builder) Executions(ctx context.Context, workflowID string) ([]*engine.Execution, error) {
	w, err := b.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return b.engine.ListExecutions(ctx, w.RemoteID)
}

// ReconcileReport summarizes a diff between local records and the remote
// engine's listing.
type ReconcileReport struct {
	// Checked is the number of local records examined.
	Checked int

	// Orphaned lists local workflow IDs whose remote artifact is gone.
	Orphaned []string

	// Realigned lists local workflow IDs whose status was corrected to
	// match the remote activation flag.
	Realigned []string
}

// Reconcile diffs local records against the remote listing. Compensation
// during create is best-effort, so drift accumulates: remote artifacts
// may vanish out-of-band and activation flags may be flipped in the
// engine's own UI. Missing remotes are reported; status drift is healed
// by updating the local record.
func (b *Builder) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	locals, err := b.store.ListWorkflows(ctx, "")
	if err != nil {
		return nil, err
	}
	remotes, err := b.engine.List(ctx, false)
	if err != nil {
		return nil, err
	}

	remoteByID := make(map[string]*engine.RemoteWorkflow, len(remotes))
	for _, r := range remotes {
		remoteByID[r.ID] = r
	}

	report := &ReconcileReport{Checked: len(locals)}
	for _, w := range locals {
		remote, ok := remoteByID[w.RemoteID]
		if !ok {
			report.Orphaned = append(report.Orphaned, w.ID)
			b.logger.Warn("local record has no remote artifact",
				log.WorkflowIDKey, w.ID, log.RemoteIDKey, w.RemoteID)
			continue
		}

		wantStatus := store.StatusPaused
		if remote.Active {
			wantStatus = store.StatusActive
		}
		if w.Status == wantStatus {
			continue
		}
		w.Status = wantStatus
		if err := b.store.UpdateWorkflow(ctx, w); err != nil {
			b.logger.Error("realigning workflow status failed",
				log.WorkflowIDKey, w.ID, log.Error(err))
			continue
		}
		report.Realigned = append(report.Realigned, w.ID)
		b.logger.Info("workflow status realigned to remote",
			log.WorkflowIDKey, w.ID, "status", wantStatus)
	}

	if len(report.Orphaned) > 0 || len(report.Realigned) > 0 {
		b.logger.Info("reconciliation finished",
			"checked", report.Checked,
			"orphaned", len(report.Orphaned),
			"realigned", len(report.Realigned))
	}
	return report, nil
}
