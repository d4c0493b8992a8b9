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

package builder

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsmith/flowsmith/internal/compile"
	"github.com/flowsmith/flowsmith/internal/engine"
	"github.com/flowsmith/flowsmith/internal/store"
	"github.com/flowsmith/flowsmith/internal/store/memory"
	"github.com/flowsmith/flowsmith/internal/template"
	"github.com/flowsmith/flowsmith/pkg/document"
	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
)

const webhookType = "n8n-nodes-base.webhook"

// fakeEngine records calls and simulates the remote engine.
type fakeEngine struct {
	calls []string

	nextID     int
	failCreate error
	failUpdate error
	failToggle error
	failDelete error

	remotes map[string]*engine.RemoteWorkflow
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{remotes: map[string]*engine.RemoteWorkflow{}}
}

func (f *fakeEngine) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeEngine) networkCalls() int { return len(f.calls) }

func (f *fakeEngine) CreateDefinition(_ context.Context, def document.Value) (*engine.RemoteWorkflow, error) {
	f.record("create")
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	f.nextID++
	id := fmt.Sprintf("remote-%d", f.nextID)
	w := &engine.RemoteWorkflow{ID: id, Definition: def}
	f.remotes[id] = w
	return w, nil
}

func (f *fakeEngine) UpdateDefinition(_ context.Context, remoteID string, def document.Value) (*engine.RemoteWorkflow, error) {
	f.record("update")
	if f.failUpdate != nil {
		return nil, f.failUpdate
	}
	w, ok := f.remotes[remoteID]
	if !ok {
		return nil, &flowerrors.EngineError{Operation: "update workflow", StatusCode: 404, Fatal: true}
	}
	w.Definition = def
	return w, nil
}

func (f *fakeEngine) Activate(_ context.Context, remoteID string) error {
	f.record("activate")
	if f.failToggle != nil {
		return f.failToggle
	}
	if w, ok := f.remotes[remoteID]; ok {
		w.Active = true
	}
	return nil
}

func (f *fakeEngine) Deactivate(_ context.Context, remoteID string) error {
	f.record("deactivate")
	if f.failToggle != nil {
		return f.failToggle
	}
	if w, ok := f.remotes[remoteID]; ok {
		w.Active = false
	}
	return nil
}

func (f *fakeEngine) Delete(_ context.Context, remoteID string) error {
	f.record("delete")
	if f.failDelete != nil {
		return f.failDelete
	}
	delete(f.remotes, remoteID)
	return nil
}

func (f *fakeEngine) List(_ context.Context, _ bool) ([]*engine.RemoteWorkflow, error) {
	f.record("list")
	var out []*engine.RemoteWorkflow
	for _, w := range f.remotes {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeEngine) TriggerViaWebhook(_ context.Context, webhookPath string, _ document.Value) (document.Value, error) {
	f.record("trigger " + webhookPath)
	return document.Mapping(map[string]document.Value{"queued": document.Bool(true)}), nil
}

func (f *fakeEngine) ListExecutions(_ context.Context, remoteWorkflowID string) ([]*engine.Execution, error) {
	f.record("executions " + remoteWorkflowID)
	return []*engine.Execution{{ID: "1", WorkflowID: remoteWorkflowID, Status: "success"}}, nil
}

func (f *fakeEngine) WebhookURL(def document.Value) (string, error) {
	nodes, ok := def.Get("nodes")
	if !ok {
		return "", fmt.Errorf("no nodes")
	}
	for _, node := range nodes.Seq() {
		typ, _ := node.Get("type")
		if typ.Kind() == document.KindString && typ.Str() == webhookType {
			params, _ := node.Get("parameters")
			path, _ := params.Get("path")
			return "https://hooks.example.com/webhook/" + path.Str(), nil
		}
	}
	return "", fmt.Errorf("no webhook trigger")
}

type fixedTemplates map[string]*template.Template

func (f fixedTemplates) Get(id string) (*template.Template, error) {
	t, ok := f[id]
	if !ok {
		return nil, &flowerrors.NotFoundError{Resource: "template", ID: id}
	}
	return t, nil
}

func testTemplate(t *testing.T) *template.Template {
	t.Helper()
	tmpl, err := template.ParseTemplate([]byte(`{
		"id": "api_poller",
		"name": "API Poller",
		"required_inputs": [{"name": "api_key", "type": "string"}],
		"optional_inputs": [{"name": "interval", "type": "number", "default": 60}],
		"definition": {
			"name": "{{workflow_name}}",
			"nodes": [
				{"name": "Hook", "type": "n8n-nodes-base.webhook", "parameters": {"path": "{{webhook_path}}"}},
				{"name": "Fetch", "type": "n8n-nodes-base.httpRequest",
				 "parameters": {"headers": {"Authorization": "Bearer {{api_key}}"}}}
			]
		}
	}`))
	require.NoError(t, err)
	return tmpl
}

func newTestBuilder(t *testing.T) (*Builder, *fakeEngine, *memory.Store) {
	t.Helper()
	eng := newFakeEngine()
	st := memory.New()
	b := New(
		fixedTemplates{"api_poller": testTemplate(t)},
		compile.NewCompiler(webhookType),
		eng,
		st,
		nil,
	)
	return b, eng, st
}

func TestCreateEndToEnd(t *testing.T) {
	b, eng, st := newTestBuilder(t)

	w, err := b.Create(context.Background(), CreateRequest{
		TemplateID: "api_poller",
		UserID:     "user-1",
		Inputs:     map[string]document.Value{"api_key": document.String("k1")},
	})
	require.NoError(t, err)

	assert.Equal(t, store.StatusActive, w.Status)
	assert.Equal(t, "remote-1", w.RemoteID)
	assert.Equal(t, "user-1", w.OwnerID)
	assert.True(t, strings.HasPrefix(w.WebhookURL, "https://hooks.example.com/webhook/user-1/"))
	assert.True(t, w.Configuration.Map()["interval"].Equal(document.Number(60)), "defaults are filled")

	// api_key resolved throughout the submitted definition.
	remote := eng.remotes["remote-1"]
	require.NotNil(t, remote)
	nodes, _ := remote.Definition.Get("nodes")
	params, _ := nodes.Seq()[1].Get("parameters")
	headers, _ := params.Get("headers")
	auth, _ := headers.Get("Authorization")
	assert.Equal(t, document.String("Bearer k1"), auth)

	persisted, err := st.GetWorkflow(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, persisted.Status)

	assert.Equal(t, []string{"create", "activate"}, eng.calls)
}

func TestCreateFailsFastOnValidation(t *testing.T) {
	b, eng, st := newTestBuilder(t)

	_, err := b.Create(context.Background(), CreateRequest{
		TemplateID: "api_poller",
		UserID:     "user-1",
		Inputs:     map[string]document.Value{},
	})
	require.Error(t, err)
	assert.True(t, flowerrors.IsValidation(err))
	assert.Zero(t, eng.networkCalls(), "validation failure must not reach the network")

	all, err := st.ListWorkflows(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateUnknownTemplate(t *testing.T) {
	b, eng, _ := newTestBuilder(t)
	_, err := b.Create(context.Background(), CreateRequest{TemplateID: "nope", UserID: "u"})
	assert.True(t, flowerrors.IsNotFound(err))
	assert.Zero(t, eng.networkCalls())
}

func TestCreateCompensatesOnPersistFailure(t *testing.T) {
	b, eng, st := newTestBuilder(t)

	// Force the persistence step to collide with an existing record.
	b.newID = func() string { return "fixed-id" }
	require.NoError(t, st.CreateWorkflow(context.Background(), &store.Workflow{ID: "fixed-id", OwnerID: "user-1"}))

	_, err := b.Create(context.Background(), CreateRequest{
		TemplateID: "api_poller",
		UserID:     "user-1",
		Inputs:     map[string]document.Value{"api_key": document.String("k")},
	})
	require.Error(t, err)
	assert.Equal(t, []string{"create", "activate", "delete"}, eng.calls, "remote artifact is rolled back")
	assert.Empty(t, eng.remotes)
}

func TestCreateCompensatesOnActivateFailure(t *testing.T) {
	b, eng, st := newTestBuilder(t)
	eng.failToggle = &flowerrors.EngineError{Operation: "activate workflow", StatusCode: 500}

	_, err := b.Create(context.Background(), CreateRequest{
		TemplateID: "api_poller",
		UserID:     "user-1",
		Inputs:     map[string]document.Value{"api_key": document.String("k")},
	})
	require.Error(t, err)
	assert.Equal(t, []string{"create", "activate", "delete"}, eng.calls)

	all, err := st.ListWorkflows(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all, "nothing persisted when activation fails")
}

func createWorkflow(t *testing.T, b *Builder) *store.Workflow {
	t.Helper()
	w, err := b.Create(context.Background(), CreateRequest{
		TemplateID: "api_poller",
		UserID:     "user-1",
		Inputs:     map[string]document.Value{"api_key": document.String("k1")},
	})
	require.NoError(t, err)
	return w
}

func TestUpdateCommitsAfterRemoteSuccess(t *testing.T) {
	b, eng, st := newTestBuilder(t)
	w := createWorkflow(t, b)

	updated, err := b.Update(context.Background(), w.ID, map[string]document.Value{
		"api_key": document.String("k2"),
	})
	require.NoError(t, err)
	assert.True(t, updated.Configuration.Map()["api_key"].Equal(document.String("k2")))
	assert.True(t, updated.Configuration.Map()["interval"].Equal(document.Number(60)), "unchanged fields survive the merge")

	persisted, err := st.GetWorkflow(context.Background(), w.ID)
	require.NoError(t, err)
	assert.True(t, persisted.Configuration.Map()["api_key"].Equal(document.String("k2")))

	// Remote definition now carries the new key.
	nodes, _ := eng.remotes[w.RemoteID].Definition.Get("nodes")
	params, _ := nodes.Seq()[1].Get("parameters")
	headers, _ := params.Get("headers")
	auth, _ := headers.Get("Authorization")
	assert.Equal(t, document.String("Bearer k2"), auth)
}

func TestUpdateRemoteFailureLeavesLocalUntouched(t *testing.T) {
	b, eng, st := newTestBuilder(t)
	w := createWorkflow(t, b)
	eng.failUpdate = &flowerrors.EngineError{Operation: "update workflow", StatusCode: 500}

	_, err := b.Update(context.Background(), w.ID, map[string]document.Value{
		"api_key": document.String("k2"),
	})
	require.Error(t, err)

	persisted, err := st.GetWorkflow(context.Background(), w.ID)
	require.NoError(t, err)
	assert.True(t, persisted.Configuration.Map()["api_key"].Equal(document.String("k1")))
}

func TestUpdateRevalidatesMergedConfiguration(t *testing.T) {
	b, _, _ := newTestBuilder(t)
	w := createWorkflow(t, b)

	_, err := b.Update(context.Background(), w.ID, map[string]document.Value{
		"interval": document.String("not-a-number"),
	})
	require.Error(t, err)
	assert.True(t, flowerrors.IsValidation(err))
}

func TestToggle(t *testing.T) {
	b, eng, _ := newTestBuilder(t)
	w := createWorkflow(t, b)

	paused, err := b.Toggle(context.Background(), w.ID, false)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPaused, paused.Status)
	assert.False(t, eng.remotes[w.RemoteID].Active)

	active, err := b.Toggle(context.Background(), w.ID, true)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, active.Status)
	assert.True(t, eng.remotes[w.RemoteID].Active)
}

func TestToggleRemoteFailureAborts(t *testing.T) {
	b, eng, st := newTestBuilder(t)
	w := createWorkflow(t, b)
	eng.failToggle = &flowerrors.EngineError{Operation: "deactivate workflow", StatusCode: 500}

	_, err := b.Toggle(context.Background(), w.ID, false)
	require.Error(t, err)

	persisted, err := st.GetWorkflow(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, persisted.Status, "local status untouched on remote failure")
}

func TestDeleteIsLenient(t *testing.T) {
	b, eng, st := newTestBuilder(t)
	w := createWorkflow(t, b)
	eng.failDelete = &flowerrors.EngineError{Operation: "delete workflow", StatusCode: 500}

	require.NoError(t, b.Delete(context.Background(), w.ID))

	_, err := st.GetWorkflow(context.Background(), w.ID)
	assert.True(t, flowerrors.IsNotFound(err), "local record removed despite remote failure")
}

func TestDeleteUnknownWorkflow(t *testing.T) {
	b, _, _ := newTestBuilder(t)
	assert.True(t, flowerrors.IsNotFound(b.Delete(context.Background(), "missing")))
}

func TestTriggerUsesOwnerInstancePath(t *testing.T) {
	b, eng, _ := newTestBuilder(t)
	w := createWorkflow(t, b)

	res, err := b.Trigger(context.Background(), w.ID, document.Mapping(nil))
	require.NoError(t, err)
	queued, _ := res.Get("queued")
	assert.True(t, queued.BoolVal())
	assert.Equal(t, "trigger user-1/"+w.Name, eng.calls[len(eng.calls)-1])
}

func TestExecutions(t *testing.T) {
	b, _, _ := newTestBuilder(t)
	w := createWorkflow(t, b)

	execs, err := b.Executions(context.Background(), w.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, w.RemoteID, execs[0].WorkflowID)
}

func TestReconcile(t *testing.T) {
	b, eng, st := newTestBuilder(t)
	orphan := createWorkflow(t, b)
	drifted := createWorkflow(t, b)
	healthy := createWorkflow(t, b)

	// Remote artifact vanished out-of-band.
	delete(eng.remotes, orphan.RemoteID)
	// Activation flag flipped in the engine's own UI.
	eng.remotes[drifted.RemoteID].Active = false
	eng.remotes[healthy.RemoteID].Active = true

	report, err := b.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, []string{orphan.ID}, report.Orphaned)
	assert.Equal(t, []string{drifted.ID}, report.Realigned)

	realigned, err := st.GetWorkflow(context.Background(), drifted.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPaused, realigned.Status)

	untouched, err := st.GetWorkflow(context.Background(), healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, untouched.Status)
}
