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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "X-N8N-API-KEY", cfg.Engine.APIKeyHeader)
	assert.Equal(t, "n8n-nodes-base.webhook", cfg.Engine.TriggerNodeType)
	assert.Equal(t, 3, cfg.Engine.MaxAttempts)
	assert.Equal(t, 5, cfg.Engine.BreakerThreshold)
	assert.Equal(t, 60*time.Second, cfg.Engine.BreakerTimeout)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flowsmith.yaml")
	content := `
engine:
  base_url: https://engine.internal/api/v1
  api_key: secret-key
  webhook_base_url: https://engine.internal/webhook
  breaker_timeout: 30s
templates:
  dir: /etc/flowsmith/templates
store:
  path: /var/lib/flowsmith/flowsmith.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://engine.internal/api/v1", cfg.Engine.BaseURL)
	assert.Equal(t, "secret-key", cfg.Engine.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Engine.BreakerTimeout)
	assert.Equal(t, "/etc/flowsmith/templates", cfg.Templates.Dir)
	// Unset fields keep defaults.
	assert.Equal(t, 3, cfg.Engine.MaxAttempts)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var cerr *flowerrors.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FLOWSMITH_ENGINE_URL", "http://override:5678/api/v1")
	t.Setenv("FLOWSMITH_ENGINE_API_KEY", "env-key")
	t.Setenv("FLOWSMITH_DB_PATH", "/tmp/override.db")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://override:5678/api/v1", cfg.Engine.BaseURL)
	assert.Equal(t, "env-key", cfg.Engine.APIKey)
	assert.Equal(t, "/tmp/override.db", cfg.Store.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		keyHit string
	}{
		{"empty base url", func(c *Config) { c.Engine.BaseURL = "" }, "engine.base_url"},
		{"empty webhook base", func(c *Config) { c.Engine.WebhookBaseURL = "" }, "engine.webhook_base_url"},
		{"zero timeout", func(c *Config) { c.Engine.RequestTimeout = 0 }, "engine.request_timeout"},
		{"zero attempts", func(c *Config) { c.Engine.MaxAttempts = 0 }, "engine.max_attempts"},
		{"zero threshold", func(c *Config) { c.Engine.BreakerThreshold = 0 }, "engine.breaker_threshold"},
		{"negative rate limit", func(c *Config) { c.Engine.RateLimit = -1 }, "engine.rate_limit"},
		{"empty store path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"cache ttl zero", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"empty listen addr", func(c *Config) { c.Listen.Addr = "" }, "listen.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var cerr *flowerrors.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.keyHit, cerr.Key)
		})
	}
}
