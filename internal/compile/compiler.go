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

package compile

import (
	"context"
	"fmt"
	"time"

	"github.com/flowsmith/flowsmith/internal/template"
	"github.com/flowsmith/flowsmith/pkg/document"
	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
)

// instanceTimeLayout stamps generated instance names.
const instanceTimeLayout = "20060102_150405"

// Compiler runs the validate → substitute → inject pipeline.
type Compiler struct {
	creds CredentialStore

	// triggerType is the engine node type whose subscription path gets
	// the forced {owner}/{instance} convention.
	triggerType string

	now func() time.Time
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithCredentialStore overrides the default derived-name credential store.
func WithCredentialStore(creds CredentialStore) Option {
	return func(c *Compiler) { c.creds = creds }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Compiler) { c.now = now }
}

// NewCompiler creates a compiler targeting the given webhook trigger node
// type.
func NewCompiler(triggerType string, opts ...Option) *Compiler {
	c := &Compiler{
		creds:       DerivedCredentials{},
		triggerType: triggerType,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request is one compilation job.
type Request struct {
	Template *template.Template
	UserID   string

	// Inputs is the caller-supplied input map, validated against the
	// template before substitution.
	Inputs map[string]document.Value

	// InstanceName overrides the generated instance name when non-empty.
	InstanceName string
}

// Result is a fully resolved compilation.
type Result struct {
	// Definition is the engine-definition document with placeholders
	// resolved, the trigger path forced, and credentials injected.
	Definition document.Value

	// Configuration is the validated, default-filled input map the
	// definition was compiled with.
	Configuration map[string]document.Value

	// InstanceName is the generated (or caller-supplied) workflow name.
	InstanceName string
}

// Compile validates the request's inputs and produces a submission-ready
// definition. Validation failures surface as *errors.ValidationError with
// no side effects; all other pipeline failures are wrapped in
// *errors.CompilationError naming the failed stage.
func (c *Compiler) Compile(ctx context.Context, req Request) (*Result, error) {
	if req.Template == nil {
		return nil, &flowerrors.CompilationError{Stage: "validate", Cause: fmt.Errorf("no template supplied")}
	}
	if req.UserID == "" {
		return nil, &flowerrors.ValidationError{Field: "user_id", Message: "owner identifier is required"}
	}

	configuration, err := ValidateInputs(req.Template, req.Inputs)
	if err != nil {
		return nil, err
	}

	name := req.InstanceName
	if name == "" {
		name = instanceName(req.Template.ID, req.UserID, c.now())
	}

	bindings := make(map[string]document.Value, len(configuration)+3)
	for k, v := range configuration {
		bindings[k] = v
	}
	bindings["user_id"] = document.String(req.UserID)
	bindings["workflow_name"] = document.String(name)
	bindings["timestamp"] = document.String(c.now().UTC().Format(time.RFC3339))

	definition, err := Resolve(req.Template.Definition, bindings)
	if err != nil {
		return nil, &flowerrors.CompilationError{TemplateID: req.Template.ID, Stage: "substitute", Cause: err}
	}

	definition = ForceTriggerPath(definition, c.triggerType, req.UserID+"/"+name)

	definition, err = InjectCredentials(ctx, definition, req.UserID, c.creds)
	if err != nil {
		return nil, &flowerrors.CompilationError{TemplateID: req.Template.ID, Stage: "inject", Cause: err}
	}

	return &Result{
		Definition:    definition,
		Configuration: configuration,
		InstanceName:  name,
	}, nil
}

// instanceName builds "{template}_{shortOwner}_{timestamp}", unique per
// owner per second.
func instanceName(templateID, userID string, now time.Time) string {
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s_%s", templateID, short, now.UTC().Format(instanceTimeLayout))
}
