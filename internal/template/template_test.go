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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTemplate(t *testing.T) {
	raw := []byte(`{
		"id": "email_digest",
		"name": "Email Digest",
		"category": "communication",
		"keywords": ["email", "digest"],
		"required_inputs": [
			{"name": "recipient", "type": "string"},
			{"name": "batch_size", "type": "number", "min": 1, "max": 100}
		],
		"optional_inputs": [
			{"name": "priority", "type": "select", "options": ["low", {"label": "High priority", "value": "high"}], "default": "low"}
		],
		"definition": {"nodes": [{"name": "Send", "parameters": {"to": "{{recipient}}"}}]}
	}`)

	tmpl, err := ParseTemplate(raw)
	require.NoError(t, err)
	assert.Equal(t, "email_digest", tmpl.ID)
	require.Len(t, tmpl.RequiredInputs, 2)
	require.NotNil(t, tmpl.RequiredInputs[1].Min)
	assert.Equal(t, 1.0, *tmpl.RequiredInputs[1].Min)

	require.Len(t, tmpl.OptionalInputs, 1)
	opts := tmpl.OptionalInputs[0].Options
	require.Len(t, opts, 2)
	assert.Equal(t, "", opts[0].Label)
	assert.Equal(t, "low", opts[0].Value)
	assert.Equal(t, "High priority", opts[1].Label)
	assert.Equal(t, "high", opts[1].Value)
}

func TestParseTemplateInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"missing id", `{"name": "x", "definition": {}}`},
		{"missing name", `{"id": "x", "definition": {}}`},
		{
			"duplicate field",
			`{"id": "x", "name": "x", "definition": {},
			  "required_inputs": [{"name": "a", "type": "string"}],
			  "optional_inputs": [{"name": "a", "type": "string"}]}`,
		},
		{
			"min above max",
			`{"id": "x", "name": "x", "definition": {},
			  "required_inputs": [{"name": "n", "type": "number", "min": 5, "max": 1}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestOptionRoundTrip(t *testing.T) {
	bare := Option{Value: "low"}
	raw, err := json.Marshal(bare)
	require.NoError(t, err)
	assert.JSONEq(t, `"low"`, string(raw))

	labeled := Option{Label: "High priority", Value: "high"}
	raw, err = json.Marshal(labeled)
	require.NoError(t, err)
	assert.JSONEq(t, `{"label": "High priority", "value": "high"}`, string(raw))

	var decoded Option
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, labeled, decoded)
}

func TestOptionNumericValue(t *testing.T) {
	var opt Option
	require.NoError(t, json.Unmarshal([]byte(`30`), &opt))
	assert.Equal(t, float64(30), opt.Value)
}

func TestFieldsOrder(t *testing.T) {
	tmpl := &Template{
		ID:   "t",
		Name: "t",
		RequiredInputs: []FieldSpec{
			{Name: "a", Type: FieldString},
		},
		OptionalInputs: []FieldSpec{
			{Name: "b", Type: FieldNumber},
		},
	}
	fields := tmpl.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].Name)
	assert.Equal(t, "b", fields[1].Name)
}
