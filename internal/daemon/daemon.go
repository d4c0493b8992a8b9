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

// Package daemon wires the registry, compiler, engine client, store, and
// HTTP API together and runs them as a long-lived process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowsmith/flowsmith/internal/builder"
	"github.com/flowsmith/flowsmith/internal/cache"
	"github.com/flowsmith/flowsmith/internal/compile"
	"github.com/flowsmith/flowsmith/internal/config"
	"github.com/flowsmith/flowsmith/internal/daemon/api"
	"github.com/flowsmith/flowsmith/internal/engine"
	"github.com/flowsmith/flowsmith/internal/log"
	"github.com/flowsmith/flowsmith/internal/store/sqlite"
	"github.com/flowsmith/flowsmith/internal/template"
)

// shutdownGrace bounds how long in-flight requests may run after a stop
// signal.
const shutdownGrace = 10 * time.Second

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// Daemon is the assembled flowsmith service.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *sqlite.Store
	registry *template.Registry
	engine   *engine.Client
	builder  *builder.Builder
	server   *http.Server
}

// New assembles a daemon from configuration.
func New(cfg *config.Config, info BuildInfo, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := sqlite.New(sqlite.Config{Path: cfg.Store.Path, WAL: cfg.Store.WAL})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var snapshotCache cache.Cache = cache.Noop{}
	if cfg.Cache.Enabled {
		fc, err := cache.NewFileCache(cfg.Cache.Dir)
		if err != nil {
			// The cache is best-effort by contract; a broken cache
			// directory must not keep the daemon down.
			logger.Warn("cache unavailable, continuing without it", "dir", cfg.Cache.Dir, "error", err)
		} else {
			snapshotCache = fc
		}
	}

	registry, err := template.NewRegistry(context.Background(), template.RegistryConfig{
		Dir:    cfg.Templates.Dir,
		Store:  st,
		Cache:  snapshotCache,
		TTL:    cfg.Cache.TTL,
		Logger: logger,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	engineClient, err := engine.New(engine.Config{
		BaseURL:          cfg.Engine.BaseURL,
		APIKey:           cfg.Engine.APIKey,
		APIKeyHeader:     cfg.Engine.APIKeyHeader,
		WebhookBaseURL:   cfg.Engine.WebhookBaseURL,
		TriggerNodeType:  cfg.Engine.TriggerNodeType,
		RequestTimeout:   cfg.Engine.RequestTimeout,
		MaxAttempts:      cfg.Engine.MaxAttempts,
		BreakerThreshold: cfg.Engine.BreakerThreshold,
		BreakerTimeout:   cfg.Engine.BreakerTimeout,
		RateLimit:        cfg.Engine.RateLimit,
		RateBurst:        cfg.Engine.RateBurst,
	}, engine.WithLogger(logger))
	if err != nil {
		registry.Close()
		st.Close()
		return nil, fmt.Errorf("building engine client: %w", err)
	}

	compiler := compile.NewCompiler(cfg.Engine.TriggerNodeType)
	b := builder.New(registry, compiler, engineClient, st, logger)

	router := api.NewRouter(api.RouterConfig{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.BuildDate,
	}, logger)
	router.SetEngineHealth(engineClient)
	api.NewTemplatesHandler(registry).RegisterRoutes(router.Mux())
	api.NewWorkflowsHandler(b).RegisterRoutes(router.Mux())

	return &Daemon{
		cfg:      cfg,
		logger:   log.WithComponent(logger, "daemon"),
		store:    st,
		registry: registry,
		engine:   engineClient,
		builder:  b,
		server: &http.Server{
			Addr:              cfg.Listen.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.store.Close()
	defer d.registry.Close()

	if d.cfg.Templates.Watch {
		if err := d.registry.Watch(ctx); err != nil {
			d.logger.Warn("template watch disabled", "error", err)
		}
	}
	if d.cfg.ReconcileInterval > 0 {
		go d.reconcileLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("listening", "addr", d.cfg.Listen.Addr)
		errCh <- d.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	d.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// reconcileLoop periodically diffs local records against the remote
// listing. Compensation during create is best-effort, so drift is
// expected to accumulate and must be surfaced somewhere.
func (d *Daemon) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.builder.Reconcile(ctx); err != nil {
				d.logger.Warn("reconciliation failed", "error", err)
			}
		}
	}
}
