// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvBackendURL, EnvToken, EnvProjectID, EnvLogLevel, EnvIdleTimeout} {
		t.Setenv(k, "")
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 90*time.Second, cfg.Stream.IdleTimeout.Duration)
	assert.True(t, cfg.Stream.ErrorEvents)
	assert.Equal(t, 1<<20, cfg.Stream.MaxLineBytes)
	assert.Equal(t, 30, cfg.UI.FrameRate)
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Backend.URL, cfg.Backend.URL)
}

func TestLoadFromPath_PartialFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[backend]
url = "https://rfp.example.com/"
token = "secret"

[stream]
idle_timeout = "2m"
max_line_bytes = 4096
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rfp.example.com", cfg.Backend.URL, "trailing slash trimmed")
	assert.Equal(t, "secret", cfg.Backend.Token)
	assert.Equal(t, 2*time.Minute, cfg.Stream.IdleTimeout.Duration)
	assert.Equal(t, 4096, cfg.Stream.MaxLineBytes)
	assert.True(t, cfg.Stream.ErrorEvents, "keys absent from the file keep defaults")
	assert.Equal(t, "info", cfg.Log.Level)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadFromPath_UnknownKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[backend]\nurll = \"x\"\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.urll")
}

func TestLoadFromPath_InvalidValues(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[backend]
url = "ftp://example.com"
project_id = "not-a-uuid"

[ui]
frame_rate = 500
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.url")
	assert.Contains(t, err.Error(), "backend.project_id")
	assert.Contains(t, err.Error(), "ui.frame_rate")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvBackendURL, "https://env.example.com")
	t.Setenv(EnvToken, "tok")
	t.Setenv(EnvProjectID, "6f1c1f5e-0d3a-4a57-9b0e-9b5f5b0a8f11")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvIdleTimeout, "15")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnvOverrides())

	assert.Equal(t, "https://env.example.com", cfg.Backend.URL)
	assert.Equal(t, "tok", cfg.Backend.Token)
	assert.Equal(t, "6f1c1f5e-0d3a-4a57-9b0e-9b5f5b0a8f11", cfg.Backend.ProjectID)
	assert.Equal(t, zerolog.DebugLevel, cfg.ZerologLevel())
	assert.Equal(t, 15*time.Second, cfg.Stream.IdleTimeout.Duration)
}

func TestApplyEnvOverrides_BadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvIdleTimeout, "soon")
	err := Default().ApplyEnvOverrides()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvIdleTimeout)
}

func TestValidate_Table(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative idle timeout", func(c *Config) { c.Stream.IdleTimeout.Duration = -time.Second }, "stream.idle_timeout"},
		{"negative max line", func(c *Config) { c.Stream.MaxLineBytes = -1 }, "stream.max_line_bytes"},
		{"negative rps", func(c *Config) { c.RateLimit.RequestsPerSecond = -1 }, "ratelimit.requests_per_second"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"no host", func(c *Config) { c.Backend.URL = "http://" }, "backend.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidate_ZeroDisables(t *testing.T) {
	cfg := Default()
	cfg.Stream.IdleTimeout.Duration = 0
	cfg.Stream.MaxLineBytes = 0
	cfg.RateLimit.RequestsPerSecond = 0
	assert.NoError(t, cfg.Validate())
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := Default()
	cfg.Backend.Token = "abc"
	cfg.Stream.IdleTimeout.Duration = 45 * time.Second

	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# rfpchat configuration file")
	assert.Contains(t, string(data), `idle_timeout = "45s"`)

	loaded := Default()
	require.NoError(t, LoadTOML(loaded, path))
	assert.Equal(t, cfg, loaded)
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("backend.url")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", v)

	require.NoError(t, cfg.Set("stream.idle_timeout", "45s"))
	assert.Equal(t, 45*time.Second, cfg.Stream.IdleTimeout.Duration)

	require.NoError(t, cfg.Set("stream.max_line_bytes", "2048"))
	assert.Equal(t, 2048, cfg.Stream.MaxLineBytes)

	require.NoError(t, cfg.Set("ratelimit.requests_per_second", "2.5"))
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)

	require.NoError(t, cfg.Set("ui.show-stats", "false"))
	assert.False(t, cfg.UI.ShowStats)

	require.NoError(t, cfg.Set("ui.frame_rate", 60))
	assert.Equal(t, 60, cfg.UI.FrameRate)

	_, err = cfg.Get("backend.nope")
	assert.Error(t, err)
	_, err = cfg.Get("backend.url.host")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("stream.max_line_bytes", "lots"))
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "version")
	assert.Contains(t, keys, "backend.token")
	assert.Contains(t, keys, "stream.idle_timeout")
	assert.Contains(t, keys, "dev.token_delay")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestString_RedactsTokens(t *testing.T) {
	cfg := Default()
	cfg.Backend.Token = "super-secret"
	cfg.Dev.Token = "dev-secret"

	out := cfg.String()
	assert.NotContains(t, out, "super-secret")
	assert.NotContains(t, out, "dev-secret")
	assert.Contains(t, out, "[REDACTED]")
	assert.Equal(t, "super-secret", cfg.Backend.Token, "original unchanged")
}

func TestNormalizeFieldName(t *testing.T) {
	assert.Equal(t, "IdleTimeout", normalizeFieldName("idle_timeout"))
	assert.Equal(t, "ShowStats", normalizeFieldName("show-stats"))
	assert.Equal(t, "Url", normalizeFieldName("url"))
}
