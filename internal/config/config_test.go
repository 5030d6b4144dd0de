// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/glance/internal/storage"
)

var envVars = []string{
	"GLANCE_PROVIDER", "GLANCE_MODEL", "GLANCE_TEMPERATURE",
	"GLANCE_OPENAI_KEY", "OPENAI_API_KEY", "GLANCE_OPENAI_URL",
	"GLANCE_ANTHROPIC_KEY", "ANTHROPIC_API_KEY", "GLANCE_ANTHROPIC_URL",
	"GLANCE_ADDR", "GLANCE_STORE", "GLANCE_STORE_PATH",
}

// clearEnv blanks every variable ApplyEnvOverrides reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 2000, cfg.MaxTokens)
	assert.Equal(t, DefaultOpenAIModel, cfg.ModelFor("openai"))
	assert.Equal(t, DefaultAnthropicModel, cfg.ModelFor("anthropic"))
}

func TestLoadFromPathFormats(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	files := map[string]string{
		"config.toml": "provider = \"anthropic\"\nmodel = \"claude-x\"\n\n[anthropic]\napi_key = \"sk-ant-123456789\"\n",
		"config.yaml": "provider: anthropic\nmodel: claude-x\nanthropic:\n  api_key: sk-ant-123456789\n",
		"config.json": `{"provider":"anthropic","model":"claude-x","anthropic":{"api_key":"sk-ant-123456789"}}`,
	}

	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))

			cfg, err := LoadFromPath(path)
			require.NoError(t, err)
			assert.Equal(t, "anthropic", cfg.Provider)
			assert.Equal(t, "claude-x", cfg.ModelFor("anthropic"))
			assert.Equal(t, "sk-ant-123456789", cfg.Credential("anthropic"))
			// Unset sections come from defaults.
			assert.Equal(t, "https://api.anthropic.com/v1", cfg.Anthropic.BaseURL)
			assert.Equal(t, DefaultOpenAIModel, cfg.ModelFor("openai"))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
		})
	}
}

func TestLoadFromPathInvalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("provider = \"gemini\"\ntemperature = 5.0\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	assert.True(t, fields["provider"])
	assert.True(t, fields["temperature"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad url", func(c *Config) { c.OpenAI.BaseURL = "ftp://x" }, "openai.base_url"},
		{"bad tokens", func(c *Config) { c.MaxTokens = 0 }, "max_tokens"},
		{"bad store", func(c *Config) { c.Storage.Kind = "redis" }, "storage.kind"},
		{"missing path", func(c *Config) { c.Storage.Kind = "file"; c.Storage.Path = "" }, "storage.path"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"bad style", func(c *Config) { c.Output.Style = "neon" }, "output.style"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	mem := Default()
	mem.Storage = StorageConfig{Kind: "memory"}
	assert.NoError(t, mem.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GLANCE_PROVIDER", "Anthropic")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("GLANCE_ANTHROPIC_KEY", "sk-ant-env")
	t.Setenv("GLANCE_TEMPERATURE", "0.7")
	t.Setenv("GLANCE_STORE", "memory")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "sk-fallback", cfg.Credential("openai"))
	assert.Equal(t, "sk-ant-env", cfg.Credential("anthropic"))
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-9)
	assert.Equal(t, "memory", cfg.Storage.Kind)

	t.Setenv("GLANCE_OPENAI_KEY", "sk-primary")
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "sk-primary", cfg.Credential("openai"))
}

func TestModelForActiveProviderOnly(t *testing.T) {
	cfg := Default()
	cfg.Model = "gpt-4o"
	assert.Equal(t, "gpt-4o", cfg.ModelFor("openai"))
	assert.Equal(t, DefaultAnthropicModel, cfg.ModelFor("anthropic"))
	assert.Equal(t, "", cfg.ModelFor("gemini"))
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	for _, name := range []string{"config.toml", "config.yaml", "config.json"} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Provider = "anthropic"
			cfg.Anthropic.APIKey = "sk-ant-abcdefgh"
			cfg.Server.AllowedOrigins = []string{"chrome-extension://abc"}

			path := filepath.Join(dir, name)
			require.NoError(t, Save(cfg, path))

			loaded, err := LoadFromPath(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.Provider, loaded.Provider)
			assert.Equal(t, cfg.Anthropic.APIKey, loaded.Anthropic.APIKey)
			assert.Equal(t, cfg.Server.AllowedOrigins, loaded.Server.AllowedOrigins)
		})
	}
}

func TestStringRedactsKeys(t *testing.T) {
	cfg := Default()
	cfg.OpenAI.APIKey = "sk-secret-value-1234"
	out := cfg.String()
	assert.NotContains(t, out, "sk-secret-value")
	assert.Contains(t, out, "1234")
	// Original untouched.
	assert.Equal(t, "sk-secret-value-1234", cfg.OpenAI.APIKey)
}

func TestSettingsStoreRoundTrip(t *testing.T) {
	clearEnv(t)
	ctx := context.Background()
	store := storage.NewMemoryStore()

	_, ok, err := LoadSettings(ctx, store)
	require.NoError(t, err)
	assert.False(t, ok)

	temp := 0.5
	require.NoError(t, SaveSettings(ctx, store, Settings{
		Provider:    "anthropic",
		Model:       "claude-y",
		Credentials: map[string]string{"anthropic": "sk-ant-stored", "openai": ""},
		Temperature: &temp,
	}))

	cfg := Default()
	cfg.OpenAI.APIKey = "sk-file"
	require.NoError(t, cfg.MergeStored(ctx, store))

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-y", cfg.ModelFor("anthropic"))
	assert.Equal(t, "sk-ant-stored", cfg.Credential("anthropic"))
	assert.Equal(t, "sk-file", cfg.Credential("openai"), "empty stored credential must not clear the key")
	assert.InDelta(t, 0.5, cfg.Temperature, 1e-9)

	s := cfg.Settings()
	assert.Equal(t, "anthropic", s.Provider)
	assert.Equal(t, "sk-file", s.Credentials["openai"])
}

func TestMergeStoredEnvWins(t *testing.T) {
	clearEnv(t)
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, SaveSettings(ctx, store, Settings{Provider: "anthropic"}))

	t.Setenv("GLANCE_PROVIDER", "openai")
	cfg := Default()
	require.NoError(t, cfg.MergeStored(ctx, store))
	assert.Equal(t, "openai", cfg.Provider)
}

func TestWatcherReloads(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Save(Default(), path))

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(c *Config) { got <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	cfg := Default()
	cfg.Provider = "anthropic"
	require.NoError(t, Save(cfg, path))

	select {
	case c := <-got:
		assert.Equal(t, "anthropic", c.Provider)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestWatcherKeepsConfigOnBadReload(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Save(Default(), path))

	var calls atomic.Int32
	w, err := NewWatcher(path, 20*time.Millisecond, func(*Config) { calls.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("provider = [broken"), 0600))
	time.Sleep(300 * time.Millisecond)

	assert.Zero(t, calls.Load())
}

func TestSettingsMerge(t *testing.T) {
	low, high := 0.1, 0.9
	base := Settings{
		Provider:    "openai",
		Model:       "gpt-4o",
		Credentials: map[string]string{"openai": "sk-a"},
		Temperature: &low,
	}

	merged := base.Merge(Settings{
		Provider:    "Anthropic",
		Credentials: map[string]string{"Anthropic": "sk-b", "openai": ""},
		Temperature: &high,
	})

	assert.Equal(t, "anthropic", merged.Provider)
	assert.Equal(t, "gpt-4o", merged.Model)
	assert.Equal(t, "sk-a", merged.Credentials["openai"])
	assert.Equal(t, "sk-b", merged.Credentials["anthropic"])
	assert.InDelta(t, 0.9, *merged.Temperature, 1e-9)

	// The receiver is not modified.
	assert.Len(t, base.Credentials, 1)
	assert.InDelta(t, 0.1, *base.Temperature, 1e-9)
}
