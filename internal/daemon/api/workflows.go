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

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flowsmith/flowsmith/internal/builder"
	"github.com/flowsmith/flowsmith/internal/daemon/httputil"
	"github.com/flowsmith/flowsmith/internal/engine"
	"github.com/flowsmith/flowsmith/internal/store"
	"github.com/flowsmith/flowsmith/pkg/document"
)

// WorkflowService is the lifecycle surface the handler needs. Satisfied
// by *builder.Builder.
type WorkflowService interface {
	Create(ctx context.Context, req builder.CreateRequest) (*store.Workflow, error)
	Get(ctx context.Context, workflowID string) (*store.Workflow, error)
	List(ctx context.Context, ownerID string) ([]*store.Workflow, error)
	Update(ctx context.Context, workflowID string, updates map[string]document.Value) (*store.Workflow, error)
	Toggle(ctx context.Context, workflowID string, active bool) (*store.Workflow, error)
	Delete(ctx context.Context, workflowID string) error
	Trigger(ctx context.Context, workflowID string, payload document.Value) (document.Value, error)
	Executions(ctx context.Context, workflowID string) ([]*engine.Execution, error)
}

// WorkflowsHandler handles workflow API requests.
type WorkflowsHandler struct {
	service WorkflowService
}

// NewWorkflowsHandler creates a workflows handler.
func NewWorkflowsHandler(service WorkflowService) *WorkflowsHandler {
	return &WorkflowsHandler{service: service}
}

// RegisterRoutes registers workflow API routes on the router.
func (h *WorkflowsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/workflows", h.handleCreate)
	mux.HandleFunc("GET /v1/workflows", h.handleList)
	mux.HandleFunc("GET /v1/workflows/{id}", h.handleGet)
	mux.HandleFunc("PATCH /v1/workflows/{id}", h.handleUpdate)
	mux.HandleFunc("POST /v1/workflows/{id}/activate", h.handleToggle)
	mux.HandleFunc("DELETE /v1/workflows/{id}", h.handleDelete)
	mux.HandleFunc("POST /v1/workflows/{id}/trigger", h.handleTrigger)
	mux.HandleFunc("GET /v1/workflows/{id}/executions", h.handleExecutions)
}

// CreateWorkflowRequest is the request body for creating a workflow.
type CreateWorkflowRequest struct {
	TemplateID string         `json:"template_id"`
	UserID     string         `json:"user_id"`
	Name       string         `json:"name,omitempty"`
	Inputs     map[string]any `json:"inputs,omitempty"`
}

// handleCreate handles POST /v1/workflows.
func (h *WorkflowsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TemplateID == "" || req.UserID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "template_id and user_id are required")
		return
	}

	inputs, err := documentInputs(req.Inputs)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	workflow, err := h.service.Create(r.Context(), builder.CreateRequest{
		TemplateID: req.TemplateID,
		UserID:     req.UserID,
		Name:       req.Name,
		Inputs:     inputs,
	})
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, workflow)
}

// handleList handles GET /v1/workflows, optionally filtered by owner.
func (h *WorkflowsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.service.List(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"workflows": workflows})
}

// handleGet handles GET /v1/workflows/{id}.
func (h *WorkflowsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	workflow, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, workflow)
}

// UpdateWorkflowRequest is the request body for updating a workflow's
// configuration.
type UpdateWorkflowRequest struct {
	Inputs map[string]any `json:"inputs"`
}

// handleUpdate handles PATCH /v1/workflows/{id}.
func (h *WorkflowsHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Inputs) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "inputs must not be empty")
		return
	}

	updates, err := documentInputs(req.Inputs)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	workflow, err := h.service.Update(r.Context(), r.PathValue("id"), updates)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, workflow)
}

// ToggleWorkflowRequest is the request body for toggling activation.
type ToggleWorkflowRequest struct {
	Active *bool `json:"active"`
}

// handleToggle handles POST /v1/workflows/{id}/activate.
func (h *WorkflowsHandler) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Active == nil {
		httputil.WriteError(w, http.StatusBadRequest, "active is required")
		return
	}

	workflow, err := h.service.Toggle(r.Context(), r.PathValue("id"), *req.Active)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, workflow)
}

// handleDelete handles DELETE /v1/workflows/{id}.
func (h *WorkflowsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTrigger handles POST /v1/workflows/{id}/trigger. The body is an
// arbitrary JSON payload handed to the workflow's webhook.
func (h *WorkflowsHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		raw = json.RawMessage(`{}`)
	}
	payload, err := document.Parse(raw)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid trigger payload")
		return
	}

	result, err := h.service.Trigger(r.Context(), r.PathValue("id"), payload)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"result": result})
}

// handleExecutions handles GET /v1/workflows/{id}/executions.
func (h *WorkflowsHandler) handleExecutions(w http.ResponseWriter, r *http.Request) {
	executions, err := h.service.Executions(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(executions))
	for _, e := range executions {
		out = append(out, map[string]any{
			"id":          e.ID,
			"workflow_id": e.WorkflowID,
			"status":      e.Status,
			"finished":    e.Finished,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"executions": out})
}

// documentInputs converts a decoded JSON input map to document values.
func documentInputs(raw map[string]any) (map[string]document.Value, error) {
	inputs := make(map[string]document.Value, len(raw))
	for k, v := range raw {
		d, err := document.FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", k, err)
		}
		inputs[k] = d
	}
	return inputs, nil
}
