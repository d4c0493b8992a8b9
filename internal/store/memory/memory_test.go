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

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsmith/flowsmith/internal/store"
	"github.com/flowsmith/flowsmith/internal/template"
	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
)

func TestWorkflowLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	w := &store.Workflow{
		ID:         "wf-1",
		OwnerID:    "user-1",
		TemplateID: "slack_alert",
		RemoteID:   "remote-1",
		Status:     store.StatusPaused,
	}
	require.NoError(t, s.CreateWorkflow(ctx, w))
	assert.Error(t, s.CreateWorkflow(ctx, w), "duplicate create must fail")

	got, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "remote-1", got.RemoteID)

	// Mutating the returned copy must not leak into the store.
	got.RemoteID = "mutated"
	again, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "remote-1", again.RemoteID)

	again.Status = store.StatusActive
	require.NoError(t, s.UpdateWorkflow(ctx, again))

	listed, err := s.ListWorkflows(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, store.StatusActive, listed[0].Status)

	require.NoError(t, s.DeleteWorkflow(ctx, "wf-1"))
	_, err = s.GetWorkflow(ctx, "wf-1")
	assert.True(t, flowerrors.IsNotFound(err))
}

func TestListFiltersByOwner(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateWorkflow(ctx, &store.Workflow{ID: "a", OwnerID: "user-1"}))
	require.NoError(t, s.CreateWorkflow(ctx, &store.Workflow{ID: "b", OwnerID: "user-2"}))

	mine, err := s.ListWorkflows(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "b", mine[0].ID)

	all, err := s.ListWorkflows(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTemplates(t *testing.T) {
	s := New()
	ctx := context.Background()

	tmpl := &template.Template{ID: "t1", Name: "One"}
	require.NoError(t, s.PutTemplate(ctx, tmpl))

	templates, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)

	require.NoError(t, s.DeleteTemplate(ctx, "t1"))
	assert.True(t, flowerrors.IsNotFound(s.DeleteTemplate(ctx, "t1")))
}
