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

// Package config provides flowsmith configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
)

// Config represents the complete flowsmith configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Templates TemplatesConfig `yaml:"templates"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Listen    ListenConfig    `yaml:"listen"`
	Log       LogConfig       `yaml:"log"`

	// ReconcileInterval is how often the daemon diffs local records against
	// the remote engine listing to surface orphaned artifacts.
	// Zero disables reconciliation. Default: 10m.
	ReconcileInterval time.Duration `yaml:"reconcile_interval,omitempty"`
}

// EngineConfig configures the remote automation engine connection and the
// fault-tolerance protocol around it.
type EngineConfig struct {
	// BaseURL is the engine REST API base (e.g., "http://localhost:5678/api/v1").
	// Environment: FLOWSMITH_ENGINE_URL
	BaseURL string `yaml:"base_url"`

	// APIKey is the static key sent with every engine call.
	// Environment: FLOWSMITH_ENGINE_API_KEY
	APIKey string `yaml:"api_key"`

	// APIKeyHeader is the header name carrying the key.
	// Default: X-N8N-API-KEY
	APIKeyHeader string `yaml:"api_key_header,omitempty"`

	// WebhookBaseURL is the externally reachable webhook base
	// (e.g., "http://localhost:5678/webhook").
	// Environment: FLOWSMITH_WEBHOOK_URL
	WebhookBaseURL string `yaml:"webhook_base_url"`

	// TriggerNodeType identifies webhook trigger nodes inside definitions.
	// Default: n8n-nodes-base.webhook
	TriggerNodeType string `yaml:"trigger_node_type,omitempty"`

	// RequestTimeout is the per-call timeout. Default: 30s.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`

	// MaxAttempts is the total attempt budget for retryable failures.
	// Default: 3.
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit breaker. Default: 5.
	BreakerThreshold int `yaml:"breaker_threshold,omitempty"`

	// BreakerTimeout is how long the breaker stays open before allowing a
	// probe call through. Default: 60s.
	BreakerTimeout time.Duration `yaml:"breaker_timeout,omitempty"`

	// RateLimit is the maximum sustained engine calls per second.
	// Zero disables client-side pacing.
	RateLimit float64 `yaml:"rate_limit,omitempty"`

	// RateBurst is the burst allowance when RateLimit is set. Default: 5.
	RateBurst int `yaml:"rate_burst,omitempty"`
}

// TemplatesConfig configures template loading.
type TemplatesConfig struct {
	// Dir is the directory scanned for template JSON files.
	// Environment: FLOWSMITH_TEMPLATES_DIR
	Dir string `yaml:"dir"`

	// Watch enables hot-reloading the directory on file changes.
	Watch bool `yaml:"watch"`
}

// StoreConfig configures local persistence.
type StoreConfig struct {
	// Path is the SQLite database file path.
	// Environment: FLOWSMITH_DB_PATH
	Path string `yaml:"path"`

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool `yaml:"wal"`
}

// CacheConfig configures the best-effort template snapshot cache.
type CacheConfig struct {
	// Enabled toggles the cache. Reads always fall through to the
	// authoritative sources when disabled or failing.
	Enabled bool `yaml:"enabled"`

	// Dir is the cache directory. Default: <user cache dir>/flowsmith.
	Dir string `yaml:"dir,omitempty"`

	// TTL is the snapshot time-to-live. Default: 1h.
	TTL time.Duration `yaml:"ttl,omitempty"`
}

// ListenConfig configures the daemon HTTP listener.
type ListenConfig struct {
	// Addr is the listen address. Default: 127.0.0.1:8714.
	// Environment: FLOWSMITH_LISTEN_ADDR
	Addr string `yaml:"addr,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (json, text).
	Format string `yaml:"format,omitempty"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}

	return &Config{
		Engine: EngineConfig{
			BaseURL:          "http://localhost:5678/api/v1",
			APIKeyHeader:     "X-N8N-API-KEY",
			WebhookBaseURL:   "http://localhost:5678/webhook",
			TriggerNodeType:  "n8n-nodes-base.webhook",
			RequestTimeout:   30 * time.Second,
			MaxAttempts:      3,
			BreakerThreshold: 5,
			BreakerTimeout:   60 * time.Second,
			RateBurst:        5,
		},
		Templates: TemplatesConfig{
			Dir: "templates",
		},
		Store: StoreConfig{
			Path: "flowsmith.db",
			WAL:  true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     filepath.Join(cacheDir, "flowsmith"),
			TTL:     time.Hour,
		},
		Listen: ListenConfig{
			Addr: "127.0.0.1:8714",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		ReconcileInterval: 10 * time.Minute,
	}
}

// Load reads configuration from the given YAML file (optional), then applies
// environment overrides and validates the result. An empty path skips the
// file and loads defaults + environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &flowerrors.ConfigError{Reason: fmt.Sprintf("reading %s", path), Cause: err}
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, &flowerrors.ConfigError{Reason: fmt.Sprintf("parsing %s", path), Cause: err}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("FLOWSMITH_ENGINE_URL"); v != "" {
		c.Engine.BaseURL = v
	}
	if v := os.Getenv("FLOWSMITH_ENGINE_API_KEY"); v != "" {
		c.Engine.APIKey = v
	}
	if v := os.Getenv("FLOWSMITH_WEBHOOK_URL"); v != "" {
		c.Engine.WebhookBaseURL = v
	}
	if v := os.Getenv("FLOWSMITH_TEMPLATES_DIR"); v != "" {
		c.Templates.Dir = v
	}
	if v := os.Getenv("FLOWSMITH_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("FLOWSMITH_LISTEN_ADDR"); v != "" {
		c.Listen.Addr = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Engine.BaseURL == "" {
		return &flowerrors.ConfigError{Key: "engine.base_url", Reason: "must not be empty"}
	}
	if _, err := url.Parse(c.Engine.BaseURL); err != nil {
		return &flowerrors.ConfigError{Key: "engine.base_url", Reason: "must be a valid URL", Cause: err}
	}
	if c.Engine.WebhookBaseURL == "" {
		return &flowerrors.ConfigError{Key: "engine.webhook_base_url", Reason: "must not be empty"}
	}
	if c.Engine.APIKeyHeader == "" {
		return &flowerrors.ConfigError{Key: "engine.api_key_header", Reason: "must not be empty"}
	}
	if c.Engine.RequestTimeout <= 0 {
		return &flowerrors.ConfigError{Key: "engine.request_timeout", Reason: "must be > 0"}
	}
	if c.Engine.MaxAttempts < 1 {
		return &flowerrors.ConfigError{Key: "engine.max_attempts", Reason: "must be at least 1"}
	}
	if c.Engine.BreakerThreshold < 1 {
		return &flowerrors.ConfigError{Key: "engine.breaker_threshold", Reason: "must be at least 1"}
	}
	if c.Engine.BreakerTimeout <= 0 {
		return &flowerrors.ConfigError{Key: "engine.breaker_timeout", Reason: "must be > 0"}
	}
	if c.Engine.RateLimit < 0 {
		return &flowerrors.ConfigError{Key: "engine.rate_limit", Reason: "must be >= 0"}
	}
	if c.Store.Path == "" {
		return &flowerrors.ConfigError{Key: "store.path", Reason: "must not be empty"}
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return &flowerrors.ConfigError{Key: "cache.ttl", Reason: "must be > 0 when the cache is enabled"}
	}
	if c.Listen.Addr == "" {
		return &flowerrors.ConfigError{Key: "listen.addr", Reason: "must not be empty"}
	}
	return nil
}
