// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for rfpchat.
package config

import (
	"bytes"
	"encoding"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jeranaias/rfpchat/internal/util"
)

// Environment variables that override file settings.
const (
	EnvBackendURL  = "RFPCHAT_BACKEND_URL"
	EnvToken       = "RFPCHAT_TOKEN"
	EnvProjectID   = "RFPCHAT_PROJECT_ID"
	EnvLogLevel    = "RFPCHAT_LOG_LEVEL"
	EnvIdleTimeout = "RFPCHAT_IDLE_TIMEOUT"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rfpchat configuration.
type Config struct {
	Version string `toml:"version"`

	Backend   BackendConfig   `toml:"backend"`
	Stream    StreamConfig    `toml:"stream"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Log       LogConfig       `toml:"log"`
	UI        UIConfig        `toml:"ui"`
	Dev       DevConfig       `toml:"dev"`
}

// BackendConfig locates the chat API.
type BackendConfig struct {
	// URL is the backend base URL, without the /api/v1 prefix
	URL string `toml:"url"`
	// Token is the bearer token (JWT) sent with every request
	Token string `toml:"token"`
	// ProjectID is the default project for chat commands
	ProjectID string `toml:"project_id"`
	// RequestTimeout bounds non-streaming requests
	RequestTimeout Duration `toml:"request_timeout"`
}

// StreamConfig controls reply streams.
type StreamConfig struct {
	// IdleTimeout ends a stream that delivers no bytes for this long; 0 disables
	IdleTimeout Duration `toml:"idle_timeout"`
	// ErrorEvents recognizes "event: error" frames from the backend
	ErrorEvents bool `toml:"error_events"`
	// MaxLineBytes drops longer lines; 0 disables the limit
	MaxLineBytes int `toml:"max_line_bytes"`
}

// RateLimitConfig shapes outgoing requests.
type RateLimitConfig struct {
	// RequestsPerSecond of 0 disables limiting
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, error, disabled
	Level string `toml:"level"`
	// Format is "auto" (console on a terminal, JSON otherwise), "console" or "json"
	Format string `toml:"format"`
	// File, when set, receives JSON logs instead of stderr
	File string `toml:"file"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// Markdown renders finished replies with glamour
	Markdown bool `toml:"markdown"`
	// ShowStats displays stream timing under replies
	ShowStats bool `toml:"show_stats"`
	// FrameRate caps redraws while streaming
	FrameRate int `toml:"frame_rate"`
	// ExportDir receives Ctrl+E exports; empty means the working directory
	ExportDir string `toml:"export_dir"`
}

// DevConfig configures the development backend.
type DevConfig struct {
	Addr      string `toml:"addr"`
	Token     string `toml:"token"`
	ProjectID string `toml:"project_id"`
	// TokenDelay spaces the fragments of echoed replies
	TokenDelay Duration `toml:"token_delay"`
	// Database is a SQLite file to keep conversations in; empty keeps them in memory
	Database string `toml:"database"`
}

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration written as a Go duration string ("90s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler. A bare integer is
// taken as seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Version: "1",
		Backend: BackendConfig{
			URL:            "http://localhost:8000",
			RequestTimeout: Duration{30 * time.Second},
		},
		Stream: StreamConfig{
			IdleTimeout:  Duration{90 * time.Second},
			ErrorEvents:  true,
			MaxLineBytes: 1 << 20,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		UI: UIConfig{
			Theme:     "dark",
			Markdown:  true,
			ShowStats: true,
			FrameRate: 30,
		},
		Dev: DevConfig{
			Addr:       "127.0.0.1:8000",
			ProjectID:  "00000000-0000-0000-0000-000000000001",
			TokenDelay: Duration{30 * time.Millisecond},
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rfpchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "could not determine home directory")
	}
	return filepath.Join(home, ".rfpchat"), nil
}

// ConfigPath returns the path to the default config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect tokens.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return errors.Wrapf(err, "failed to fix insecure permissions (was %o)", mode)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the default config file if it exists, then applies environment
// overrides and validates the result.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from path. A missing file yields the
// defaults. Environment overrides are applied last.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, errors.Wrapf(err, "failed to load config from %s", path)
		}
	} else if !os.IsNotExist(statErr) {
		return nil, errors.Wrapf(statErr, "failed to stat %s", path)
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// their current values.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to decode TOML file")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rfpchat configuration file\n")
	buf.WriteString("# Environment variables RFPCHAT_* override these settings.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}

	return errors.Wrap(util.WriteFileAtomic(path, buf.Bytes(), 0600, 0700), "failed to write config file")
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns ValidateErrors listing
// every problem, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Backend
	if u, err := url.Parse(c.Backend.URL); err != nil || u.Host == "" {
		add("backend.url", "invalid URL '%s'", c.Backend.URL)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("backend.url", "scheme must be http or https, got '%s'", u.Scheme)
	}
	if c.Backend.ProjectID != "" {
		if err := uuid.Validate(c.Backend.ProjectID); err != nil {
			add("backend.project_id", "must be a UUID: %v", err)
		}
	}
	if c.Backend.RequestTimeout.Duration < 0 {
		add("backend.request_timeout", "must not be negative")
	}

	// Stream
	if c.Stream.IdleTimeout.Duration < 0 {
		add("stream.idle_timeout", "must not be negative (0 disables)")
	}
	if c.Stream.MaxLineBytes < 0 {
		add("stream.max_line_bytes", "must not be negative (0 disables)")
	}

	// Rate limit
	if c.RateLimit.RequestsPerSecond < 0 {
		add("ratelimit.requests_per_second", "must not be negative (0 disables)")
	}
	if c.RateLimit.Burst < 0 {
		add("ratelimit.burst", "must not be negative")
	}

	// Log
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		add("log.level", "invalid level '%s'", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "auto", "console", "json":
	default:
		add("log.format", "invalid format '%s', must be one of: auto, console, json", c.Log.Format)
	}

	// UI
	switch strings.ToLower(c.UI.Theme) {
	case "dark", "light", "auto":
	default:
		add("ui.theme", "invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme)
	}
	if c.UI.FrameRate < 1 || c.UI.FrameRate > 120 {
		add("ui.frame_rate", "must be between 1 and 120, got %d", c.UI.FrameRate)
	}

	// Dev
	if c.Dev.ProjectID != "" {
		if err := uuid.Validate(c.Dev.ProjectID); err != nil {
			add("dev.project_id", "must be a UUID: %v", err)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills empty string and zero-valued required settings.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Backend.URL == "" {
		c.Backend.URL = d.Backend.URL
	}
	c.Backend.URL = strings.TrimSuffix(c.Backend.URL, "/")
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.FrameRate == 0 {
		c.UI.FrameRate = d.UI.FrameRate
	}
	if c.Dev.Addr == "" {
		c.Dev.Addr = d.Dev.Addr
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RFPCHAT_BACKEND_URL: overrides backend.url
//   - RFPCHAT_TOKEN: overrides backend.token
//   - RFPCHAT_PROJECT_ID: overrides backend.project_id
//   - RFPCHAT_LOG_LEVEL: overrides log.level
//   - RFPCHAT_IDLE_TIMEOUT: overrides stream.idle_timeout ("90s" or seconds)
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv(EnvProjectID); v != "" {
		c.Backend.ProjectID = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvIdleTimeout); v != "" {
		if err := c.Stream.IdleTimeout.UnmarshalText([]byte(v)); err != nil {
			return errors.Wrap(err, EnvIdleTimeout)
		}
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "stream.idle_timeout").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return errors.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, errors.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct || field.Type() == reflect.TypeOf(Duration{}) {
			return reflect.Value{}, errors.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, errors.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		if tu, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return tu.UnmarshalText([]byte(strVal))
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return errors.Wrap(err, "invalid integer value")
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return errors.Wrap(err, "invalid float value")
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.ToLower(strVal))
			if err != nil {
				boolVal = strings.EqualFold(strVal, "yes")
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.New("nil value")
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return errors.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns all configuration keys in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("toml")
		if f.Type.Kind() != reflect.Struct {
			keys = append(keys, name)
			continue
		}
		for j := 0; j < f.Type.NumField(); j++ {
			keys = append(keys, name+"."+f.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// =============================================================================
// DISPLAY
// =============================================================================

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the configuration as TOML.
// SECURITY: Redacts tokens so the output is safe to log or display.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Backend.Token != "" {
		safe.Backend.Token = "[REDACTED]"
	}
	if safe.Dev.Token != "" {
		safe.Dev.Token = "[REDACTED]"
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}

// ZerologLevel returns the parsed log level, defaulting to info.
func (c *Config) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
