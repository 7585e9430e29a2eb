// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Default(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Executor.Kind != "echo" {
		t.Errorf("Executor.Kind = %q, want echo", cfg.Executor.Kind)
	}
	if cfg.EchoDelay() != 1500*time.Millisecond {
		t.Errorf("EchoDelay() = %v, want 1.5s", cfg.EchoDelay())
	}
	if cfg.Storage.Owner != "user_123" {
		t.Errorf("Storage.Owner = %q", cfg.Storage.Owner)
	}
	if cfg.Model.Model != "gpt-4" || cfg.Model.Temperature != 0.7 {
		t.Errorf("unexpected model defaults %+v", cfg.Model)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"executor kind", func(c *Config) { c.Executor.Kind = "openai" }, "executor.kind"},
		{"ollama url", func(c *Config) { c.Executor.OllamaURL = "not a url" }, "executor.ollama_url"},
		{"echo delay", func(c *Config) { c.Executor.EchoDelayMs = -1 }, "executor.echo_delay_ms"},
		{"temperature", func(c *Config) { c.Model.Temperature = 3 }, "model"},
		{"concurrency", func(c *Config) { c.Resolver.Concurrency = 0 }, "resolver.concurrency"},
		{"rate", func(c *Config) { c.Resolver.RatePerSec = -1 }, "resolver.rate_per_sec"},
		{"driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"owner", func(c *Config) { c.Storage.Owner = "a/b" }, "storage.owner"},
		{"log mode", func(c *Config) { c.Logging.Mode = "verbose" }, "logging.mode"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() = %v, want ValidateErrors", err)
			}
			if len(verrs) != 1 || verrs[0].Field != tc.field {
				t.Errorf("errors = %v, want one for %s", verrs, tc.field)
			}
		})
	}
}

func TestConfig_ValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Executor.Kind = "x"
	cfg.Logging.Level = "x"
	var verrs ValidateErrors
	require.ErrorAs(t, cfg.Validate(), &verrs)
	assert.Len(t, verrs, 2)
	assert.Contains(t, verrs.Error(), "; ")
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `
[executor]
kind = "ollama"
ollama_url = "http://gpu-box:11434"

[model]
model = "llama3"
temperature = 0.2

[storage]
driver = "sqlite"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Executor.Kind)
	assert.Equal(t, "http://gpu-box:11434", cfg.Executor.OllamaURL)
	assert.Equal(t, 120, cfg.Executor.TimeoutSecs, "absent keys keep defaults")
	assert.Equal(t, "llama3", cfg.Model.Model)
	assert.Equal(t, 0.2, cfg.Model.Temperature)
	assert.Equal(t, 4096, cfg.Model.MaxTokens)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "user_123", cfg.Storage.Owner)
}

func TestLoadFromPath_Rejects(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte("[executor]\nflavor = \"x\"\n"), 0600))
	_, err := LoadFromPath(unknown)
	assert.ErrorContains(t, err, "executor.flavor")

	invalid := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalid, []byte("[logging]\nlevel = \"loud\"\n"), 0600))
	_, err = LoadFromPath(invalid)
	var verrs ValidateErrors
	assert.ErrorAs(t, err, &verrs)

	_, err = LoadFromPath(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Server.Addr = ":9000"
	cfg.Resolver.Burst = 3

	tomlPath := filepath.Join(dir, "nested", "config.toml")
	require.NoError(t, SaveTOML(cfg, tomlPath))
	info, err := os.Stat(tomlPath)
	require.NoError(t, err)
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %o, want 600", info.Mode().Perm())
	}
	data, _ := os.ReadFile(tomlPath)
	assert.True(t, strings.HasPrefix(string(data), "# promptlab configuration file"))

	loaded, err := LoadFromPath(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, SaveJSON(cfg, jsonPath))
	loaded, err = LoadFromPath(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PROMPTLAB_EXECUTOR", "ollama")
	t.Setenv("PROMPTLAB_MODEL", "phi3")
	t.Setenv("PROMPTLAB_OWNER", "ada")
	t.Setenv("PROMPTLAB_ECHO_DELAY_MS", "0")
	t.Setenv("PROMPTLAB_ADDR", ":7000")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "ollama", cfg.Executor.Kind)
	assert.Equal(t, "phi3", cfg.Model.Model)
	assert.Equal(t, "ada", cfg.Storage.Owner)
	assert.Equal(t, 0, cfg.Executor.EchoDelayMs)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestLoad_UsesHomeDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg, "no file means defaults")

	path, err := ConfigPathTOML()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".promptlab", "config.toml"), path)

	custom := Default()
	custom.Logging.Level = "debug"
	require.NoError(t, Save(custom))
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("resolver.burst", "7"))
	require.NoError(t, cfg.Set("model.temperature", "1.1"))
	require.NoError(t, cfg.Set("model.json_mode", "true"))
	require.NoError(t, cfg.Set("executor.kind", "ollama"))
	require.NoError(t, cfg.Set("resolver.max_body_bytes", 2048))

	v, err := cfg.Get("resolver.burst")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1.1, cfg.Model.Temperature)
	assert.True(t, cfg.Model.JSONMode)
	assert.Equal(t, "ollama", cfg.Executor.Kind)
	assert.Equal(t, int64(2048), cfg.Resolver.MaxBodyBytes)

	_, err = cfg.Get("resolver.nope")
	assert.ErrorContains(t, err, "unknown field")
	_, err = cfg.Get("resolver")
	assert.Error(t, err, "sections are not values")
	_, err = cfg.Get("model.model.x")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("resolver.burst", "many"))
	assert.Error(t, cfg.Set("model.json_mode", "maybe"))
}

func TestGetAllKeys(t *testing.T) {
	keys := GetAllKeys()
	for _, want := range []string{"executor.kind", "model.top_p", "resolver.concurrency", "storage.owner", "server.addr", "version"} {
		assert.Contains(t, keys, want)
	}
	cfg := Default()
	for _, key := range keys {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("Get(%q) = %v", key, err)
		}
	}
}

func TestComponentSettings(t *testing.T) {
	cfg := Default()
	cfg.Resolver.TimeoutSecs = 3
	cfg.Resolver.CacheTTLSecs = 0
	res := cfg.ResolverSettings()
	assert.Equal(t, 3*time.Second, res.Timeout)
	assert.Equal(t, time.Duration(0), res.CacheTTL)
	assert.Equal(t, "promptlab/1.0", res.UserAgent)

	cfg.Storage.Dir = "/tmp/x"
	opts := cfg.StorageOptions()
	assert.Equal(t, "file", opts.Driver)
	assert.Equal(t, "/tmp/x", opts.Dir)
	assert.Equal(t, 120*time.Second, cfg.ExecutorTimeout())
}

func TestConfig_CloneAndString(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Server.Addr = "changed"
	assert.NotEqual(t, cfg.Server.Addr, clone.Server.Addr)
	assert.Contains(t, cfg.String(), "[executor]")
}
