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
	"net/http"

	"github.com/flowsmith/flowsmith/internal/daemon/httputil"
	"github.com/flowsmith/flowsmith/internal/template"
)

// TemplateRegistry is the registry surface the handler needs. Satisfied
// by *template.Registry.
type TemplateRegistry interface {
	All(ctx context.Context) []*template.Template
	Get(id string) (*template.Template, error)
	Match(ctx context.Context, query string) []template.Match
}

// TemplatesHandler handles template API requests.
type TemplatesHandler struct {
	registry TemplateRegistry
}

// NewTemplatesHandler creates a templates handler.
func NewTemplatesHandler(registry TemplateRegistry) *TemplatesHandler {
	return &TemplatesHandler{registry: registry}
}

// RegisterRoutes registers template API routes on the router.
func (h *TemplatesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/templates", h.handleList)
	mux.HandleFunc("GET /v1/templates/{id}", h.handleGet)
	mux.HandleFunc("POST /v1/templates/match", h.handleMatch)
}

// handleList handles GET /v1/templates.
func (h *TemplatesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"templates": h.registry.All(r.Context()),
	})
}

// handleGet handles GET /v1/templates/{id}.
func (h *TemplatesHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

// MatchRequest is the request body for POST /v1/templates/match.
type MatchRequest struct {
	Query string `json:"query"`
}

// handleMatch handles POST /v1/templates/match.
func (h *TemplatesHandler) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		httputil.WriteError(w, http.StatusBadRequest, "query is required")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"matches": h.registry.Match(r.Context(), req.Query),
	})
}
