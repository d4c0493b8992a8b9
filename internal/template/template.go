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

// Package template defines workflow templates and the registry that loads
// them from disk, the persistent store, and the snapshot cache.
package template

import (
	"encoding/json"
	"fmt"

	"github.com/flowsmith/flowsmith/pkg/document"
)

// FieldType identifies the declared type of a template input field.
type FieldType string

const (
	// FieldString is free-form text.
	FieldString FieldType = "string"
	// FieldNumber is a numeric input, optionally range-bounded.
	FieldNumber FieldType = "number"
	// FieldSelect is a closed enumeration over the field's options.
	FieldSelect FieldType = "select"
	// FieldBoolean is a true/false input.
	FieldBoolean FieldType = "boolean"
)

// Option is one choice of a closed enumeration. Template files may declare
// options either as bare values ("high") or labeled pairs
// ({"label": "High priority", "value": "high"}).
type Option struct {
	// Label is the human-facing text, empty for bare options.
	Label string

	// Value is the stored value compared against user input.
	Value any
}

// UnmarshalJSON accepts both the bare-value and labeled-pair forms.
func (o *Option) UnmarshalJSON(raw []byte) error {
	var labeled struct {
		Label string `json:"label"`
		Value any    `json:"value"`
	}
	if err := json.Unmarshal(raw, &labeled); err == nil && labeled.Value != nil {
		o.Label = labeled.Label
		o.Value = labeled.Value
		return nil
	}

	var bare any
	if err := json.Unmarshal(raw, &bare); err != nil {
		return fmt.Errorf("invalid option: %w", err)
	}
	o.Label = ""
	o.Value = bare
	return nil
}

// MarshalJSON emits the labeled form when a label is present, otherwise the
// bare value.
func (o Option) MarshalJSON() ([]byte, error) {
	if o.Label == "" {
		return json.Marshal(o.Value)
	}
	return json.Marshal(struct {
		Label string `json:"label"`
		Value any    `json:"value"`
	}{o.Label, o.Value})
}

// FieldSpec declares one required or optional template input.
type FieldSpec struct {
	Name    string    `json:"name"`
	Label   string    `json:"label,omitempty"`
	Type    FieldType `json:"type"`
	Default any       `json:"default,omitempty"`
	Min     *float64  `json:"min,omitempty"`
	Max     *float64  `json:"max,omitempty"`
	Options []Option  `json:"options,omitempty"`
}

// Template is an immutable automation blueprint. The definition document
// carries unresolved {{token}} placeholders resolved at compile time.
type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`

	RequiredInputs []FieldSpec `json:"required_inputs"`
	OptionalInputs []FieldSpec `json:"optional_inputs,omitempty"`

	Definition document.Value `json:"definition"`

	EstimatedCost     float64 `json:"estimated_cost,omitempty"`
	EstimatedDuration string  `json:"estimated_duration,omitempty"`
}

// Validate checks the template's structural invariants.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template id must not be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("template %s: name must not be empty", t.ID)
	}

	seen := make(map[string]bool, len(t.RequiredInputs)+len(t.OptionalInputs))
	for _, f := range t.RequiredInputs {
		if f.Name == "" {
			return fmt.Errorf("template %s: required input with empty name", t.ID)
		}
		if seen[f.Name] {
			return fmt.Errorf("template %s: duplicate input field %q", t.ID, f.Name)
		}
		seen[f.Name] = true
	}
	for _, f := range t.OptionalInputs {
		if f.Name == "" {
			return fmt.Errorf("template %s: optional input with empty name", t.ID)
		}
		if seen[f.Name] {
			return fmt.Errorf("template %s: duplicate input field %q", t.ID, f.Name)
		}
		seen[f.Name] = true
	}

	for _, f := range t.Fields() {
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("template %s: field %q has min > max", t.ID, f.Name)
		}
	}
	return nil
}

// Fields returns all declared inputs, required first.
func (t *Template) Fields() []FieldSpec {
	fields := make([]FieldSpec, 0, len(t.RequiredInputs)+len(t.OptionalInputs))
	fields = append(fields, t.RequiredInputs...)
	fields = append(fields, t.OptionalInputs...)
	return fields
}

// ParseTemplate decodes and validates a template JSON document.
func ParseTemplate(raw []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("invalid template JSON: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
