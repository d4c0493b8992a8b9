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

// Package api provides the HTTP API for the daemon.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowsmith/flowsmith/internal/daemon/httputil"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	Version   string
	Commit    string
	BuildDate string
}

// EngineHealth probes the remote engine for the health endpoint.
type EngineHealth interface {
	HealthCheck(ctx context.Context) error
}

// Router wraps an http.ServeMux with request logging.
type Router struct {
	mux          *http.ServeMux
	config       RouterConfig
	engineHealth EngineHealth
	logger       *slog.Logger
}

// NewRouter creates a new HTTP router with the core endpoints.
func NewRouter(cfg RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:    http.NewServeMux(),
		config: cfg,
		logger: logger,
	}

	r.mux.HandleFunc("GET /v1/health", r.handleHealth)
	r.mux.HandleFunc("GET /v1/version", r.handleVersion)
	r.mux.Handle("GET /metrics", promhttp.Handler())
	r.mux.HandleFunc("GET /", r.handleRoot)

	return r
}

// SetEngineHealth wires the engine probe into the health endpoint.
func (r *Router) SetEngineHealth(h EngineHealth) {
	r.engineHealth = h
}

// Mux returns the underlying ServeMux for registering additional routes.
func (r *Router) Mux() *http.ServeMux {
	return r.mux
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	defer func() {
		r.logger.Info("request completed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}()
	r.mux.ServeHTTP(w, req)
}

// handleRoot handles GET / for basic connectivity.
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"name":    "flowsmithd",
		"version": r.config.Version,
	})
}

// handleHealth handles GET /v1/health. The daemon is healthy when it is
// serving; engine reachability is reported but does not fail the check,
// since the breaker already shields callers from a degraded engine.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	health := map[string]any{
		"status": "ok",
	}
	if r.engineHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		if err := r.engineHealth.HealthCheck(ctx); err != nil {
			health["engine"] = "unreachable"
		} else {
			health["engine"] = "ok"
		}
	}
	httputil.WriteJSON(w, http.StatusOK, health)
}

// handleVersion handles GET /v1/version.
func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"version":    r.config.Version,
		"commit":     r.config.Commit,
		"build_date": r.config.BuildDate,
	})
}

