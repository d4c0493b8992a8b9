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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsmith/flowsmith/internal/builder"
	"github.com/flowsmith/flowsmith/internal/engine"
	"github.com/flowsmith/flowsmith/internal/store"
	"github.com/flowsmith/flowsmith/pkg/document"
	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
)

// fakeService simulates the lifecycle manager.
type fakeService struct {
	workflows map[string]*store.Workflow
	createErr error
	toggleErr error
}

func newFakeService() *fakeService {
	return &fakeService{workflows: map[string]*store.Workflow{}}
}

func (f *fakeService) Create(_ context.Context, req builder.CreateRequest) (*store.Workflow, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	w := &store.Workflow{
		ID:         "wf-1",
		OwnerID:    req.UserID,
		TemplateID: req.TemplateID,
		RemoteID:   "remote-1",
		Name:       "instance",
		Status:     store.StatusActive,
		CreatedAt:  time.Now(),
	}
	f.workflows[w.ID] = w
	return w, nil
}

func (f *fakeService) Get(_ context.Context, id string) (*store.Workflow, error) {
	w, ok := f.workflows[id]
	if !ok {
		return nil, &flowerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	return w, nil
}

func (f *fakeService) List(_ context.Context, ownerID string) ([]*store.Workflow, error) {
	var out []*store.Workflow
	for _, w := range f.workflows {
		if ownerID == "" || w.OwnerID == ownerID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeService) Update(_ context.Context, id string, _ map[string]document.Value) (*store.Workflow, error) {
	return f.Get(context.Background(), id)
}

func (f *fakeService) Toggle(_ context.Context, id string, active bool) (*store.Workflow, error) {
	if f.toggleErr != nil {
		return nil, f.toggleErr
	}
	w, err := f.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if active {
		w.Status = store.StatusActive
	} else {
		w.Status = store.StatusPaused
	}
	return w, nil
}

func (f *fakeService) Delete(_ context.Context, id string) error {
	if _, ok := f.workflows[id]; !ok {
		return &flowerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	delete(f.workflows, id)
	return nil
}

func (f *fakeService) Trigger(_ context.Context, id string, _ document.Value) (document.Value, error) {
	if _, err := f.Get(context.Background(), id); err != nil {
		return document.Value{}, err
	}
	return document.Mapping(map[string]document.Value{"queued": document.Bool(true)}), nil
}

func (f *fakeService) Executions(_ context.Context, id string) ([]*engine.Execution, error) {
	if _, err := f.Get(context.Background(), id); err != nil {
		return nil, err
	}
	return []*engine.Execution{{ID: "1", WorkflowID: "remote-1", Status: "success", Finished: true}}, nil
}

func newTestServer(svc *fakeService) *httptest.Server {
	router := NewRouter(RouterConfig{Version: "test"}, nil)
	NewWorkflowsHandler(svc).RegisterRoutes(router.Mux())
	return httptest.NewServer(router)
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func TestCreateWorkflowEndpoint(t *testing.T) {
	svc := newFakeService()
	srv := newTestServer(svc)
	defer srv.Close()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/workflows",
		`{"template_id": "api_poller", "user_id": "user-1", "inputs": {"api_key": "k1"}}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "wf-1", body["id"])
	assert.Equal(t, "active", body["status"])
}

func TestCreateWorkflowRejectsMissingFields(t *testing.T) {
	srv := newTestServer(newFakeService())
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/workflows", `{"user_id": "user-1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorTaxonomyMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &flowerrors.ValidationError{Field: "x", Message: "missing"}, http.StatusBadRequest},
		{"not found", &flowerrors.NotFoundError{Resource: "template", ID: "x"}, http.StatusNotFound},
		{"circuit open", &flowerrors.CircuitOpenError{RetryAfter: time.Minute}, http.StatusServiceUnavailable},
		{"engine", &flowerrors.EngineError{Operation: "create workflow", StatusCode: 500}, http.StatusBadGateway},
		{"compilation", &flowerrors.CompilationError{TemplateID: "t", Stage: "substitute"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.createErr = tt.err
			srv := newTestServer(svc)
			defer srv.Close()

			resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/workflows",
				`{"template_id": "t", "user_id": "u"}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestWorkflowLifecycleEndpoints(t *testing.T) {
	svc := newFakeService()
	srv := newTestServer(svc)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/workflows",
		`{"template_id": "api_poller", "user_id": "user-1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/workflows/wf-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "wf-1", body["id"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/workflows?owner=user-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["workflows"], 1)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/workflows/wf-1/activate", `{"active": false}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paused", body["status"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/workflows/wf-1/activate", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "active flag is mandatory")

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/workflows/wf-1/trigger", `{"event": "manual"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	assert.Equal(t, true, result["queued"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/workflows/wf-1/executions", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["executions"], 1)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/workflows/wf-1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/workflows/wf-1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndVersion(t *testing.T) {
	srv := newTestServer(newFakeService())
	defer srv.Close()

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/version", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "test", body["version"])
}
