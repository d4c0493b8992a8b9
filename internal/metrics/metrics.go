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

// Package metrics defines Prometheus metrics for the engine client and
// the workflow lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EngineRequests counts remote engine calls by operation and outcome
	// (success, fatal, retryable, circuit_open).
	EngineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsmith_engine_requests_total",
			Help: "Remote engine calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// EngineRetries counts individual retry attempts (not first attempts).
	EngineRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowsmith_engine_retries_total",
			Help: "Retry attempts against the remote engine.",
		},
	)

	// EngineRequestDuration observes wall time of logical engine
	// operations, including retries.
	EngineRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowsmith_engine_request_duration_seconds",
			Help:    "Duration of logical engine operations including retries.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// BreakerOpen is 1 while the circuit breaker is open.
	BreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowsmith_engine_breaker_open",
			Help: "Whether the engine circuit breaker is currently open.",
		},
	)

	// Compilations counts workflow compilations by template and outcome.
	Compilations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsmith_compilations_total",
			Help: "Workflow compilations by template and outcome.",
		},
		[]string{"template_id", "outcome"},
	)

	// WorkflowsActive tracks the number of locally recorded workflows in
	// active status.
	WorkflowsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowsmith_workflows_active",
			Help: "Locally recorded workflows currently active.",
		},
	)
)
