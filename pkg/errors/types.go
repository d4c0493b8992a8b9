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

// Package errors defines the error taxonomy shared across the compiler,
// the remote engine client, and the lifecycle manager.
package errors

import (
	"fmt"
	"time"
)

// ValidationError represents user input validation failures.
// Use this for missing required fields, failed coercion, out-of-range
// values, or invalid enum choices. Raised before any network call and
// never retried.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// CompilationError wraps failures during substitution or credential
// injection that are not themselves validation errors, such as a
// malformed template definition.
type CompilationError struct {
	// TemplateID identifies the template being compiled
	TemplateID string

	// Stage is the pipeline stage that failed (e.g., "substitute", "inject")
	Stage string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *CompilationError) Error() string {
	return fmt.Sprintf("compilation of template %s failed at %s: %v", e.TemplateID, e.Stage, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CompilationError) Unwrap() error {
	return e.Cause
}

// EngineError represents a failed interaction with the remote automation
// engine: a non-2xx response or a network fault.
type EngineError struct {
	// Operation describes the engine call (e.g., "create workflow")
	Operation string

	// StatusCode is the HTTP status code, zero for network-level failures
	StatusCode int

	// Message carries the response body or network error text
	Message string

	// Fatal marks errors that must not be retried (401, 404, other 4xx).
	// Non-fatal errors have exhausted their retry budget.
	Fatal bool

	// Attempts is the number of attempts made before surfacing the error
	Attempts int

	// Cause is the underlying error, if any
	Cause error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("engine %s failed (status %d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("engine %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// CircuitOpenError is the fast-fail returned while the circuit breaker is
// open. It is distinct from EngineError so callers can treat "the engine is
// currently unavailable" differently from "this specific call failed".
type CircuitOpenError struct {
	// Since is when the breaker opened
	Since time.Time

	// RetryAfter is how long until the breaker allows a probe call
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open: engine unavailable, retry in %s", e.RetryAfter.Round(time.Second))
}

// NotFoundError represents a missing local resource, such as an unknown
// template or workflow id.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "template", "workflow")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// StoreError represents a local persistence failure. It is distinct from
// the engine and compilation errors so the lifecycle manager can trigger
// remote compensation when persistence fails after a successful create.
type StoreError struct {
	// Op is the store operation that failed (e.g., "create workflow")
	Op string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// ConfigError represents configuration problems.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "engine.base_url")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
