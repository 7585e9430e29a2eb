// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/resolve"
	"github.com/jeranaias/promptlab/internal/storage"
	"github.com/jeranaias/promptlab/internal/util"
)

// CurrentVersion is the config file format version.
const CurrentVersion = "1"

// =============================================================================
// CONFIG TYPES
// =============================================================================

// Config is the main configuration structure.
type Config struct {
	Version string `toml:"version" json:"version"`

	Executor ExecutorConfig    `toml:"executor" json:"executor"`
	Model    model.ModelConfig `toml:"model" json:"model"`
	Resolver ResolverConfig    `toml:"resolver" json:"resolver"`
	Storage  StorageConfig     `toml:"storage" json:"storage"`
	Logging  LoggingConfig     `toml:"logging" json:"logging"`
	Server   ServerConfig      `toml:"server" json:"server"`
}

// ExecutorConfig selects the run executor.
type ExecutorConfig struct {
	// Kind is "echo" (simulated) or "ollama".
	Kind        string `toml:"kind" json:"kind"`
	OllamaURL   string `toml:"ollama_url" json:"ollama_url"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
	EchoDelayMs int    `toml:"echo_delay_ms" json:"echo_delay_ms"`
}

// ResolverConfig bounds context source fetching.
type ResolverConfig struct {
	TimeoutSecs  int     `toml:"timeout_secs" json:"timeout_secs"`
	MaxBodyBytes int64   `toml:"max_body_bytes" json:"max_body_bytes"`
	RatePerSec   float64 `toml:"rate_per_sec" json:"rate_per_sec"`
	Burst        int     `toml:"burst" json:"burst"`
	CacheTTLSecs int     `toml:"cache_ttl_secs" json:"cache_ttl_secs"`
	CacheEntries int     `toml:"cache_entries" json:"cache_entries"`
	Concurrency  int     `toml:"concurrency" json:"concurrency"`
}

// StorageConfig selects the snapshot store.
type StorageConfig struct {
	// Driver is "file", "sqlite" or "memory".
	Driver string `toml:"driver" json:"driver"`
	Dir    string `toml:"dir" json:"dir"`
	DSN    string `toml:"dsn" json:"dsn"`
	// Owner is the user identifier the folder tree is stored under.
	Owner string `toml:"owner" json:"owner"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Mode  string `toml:"mode" json:"mode"`
	Level string `toml:"level" json:"level"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	res := resolve.DefaultConfig()
	return &Config{
		Version: CurrentVersion,
		Executor: ExecutorConfig{
			Kind:        "echo",
			OllamaURL:   "http://127.0.0.1:11434",
			TimeoutSecs: 120,
			EchoDelayMs: 1500,
		},
		Model: model.DefaultModelConfig(),
		Resolver: ResolverConfig{
			TimeoutSecs:  int(res.Timeout / time.Second),
			MaxBodyBytes: res.MaxBodyBytes,
			RatePerSec:   res.RatePerSec,
			Burst:        res.Burst,
			CacheTTLSecs: int(res.CacheTTL / time.Second),
			CacheEntries: res.CacheEntries,
			Concurrency:  4,
		},
		Storage: StorageConfig{
			Driver: "file",
			Owner:  "user_123",
		},
		Logging: LoggingConfig{
			Mode:  "dev",
			Level: "info",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8484",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the promptlab configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".promptlab"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return LoadFromPath(tomlPath)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return LoadFromPath(jsonPath)
		}
	}

	cfg := Default()
	return cfg, cfg.finish()
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Files ending in .json are read as JSON, anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// finish applies environment overrides and validates.
func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	fillDefaults(c)
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// fillDefaults restores defaults for string settings left empty.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Executor.Kind == "" {
		cfg.Executor.Kind = defaults.Executor.Kind
	}
	if cfg.Executor.OllamaURL == "" {
		cfg.Executor.OllamaURL = defaults.Executor.OllamaURL
	}
	if cfg.Model.Model == "" {
		cfg.Model.Model = defaults.Model.Model
	}
	if cfg.Model.ToolChoice == "" {
		cfg.Model.ToolChoice = defaults.Model.ToolChoice
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaults.Storage.Driver
	}
	if cfg.Storage.Owner == "" {
		cfg.Storage.Owner = defaults.Storage.Owner
	}
	if cfg.Logging.Mode == "" {
		cfg.Logging.Mode = defaults.Logging.Mode
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with a header comment.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# promptlab configuration file")
	fmt.Fprintln(&buf, "# Generated by promptlab - edit with care")
	fmt.Fprintln(&buf, "")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return writeConfig(path, buf.Bytes())
}

// SaveJSON saves the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return writeConfig(path, data)
}

// writeConfig writes atomically with 0600 permissions, since source headers
// may carry credentials.
func writeConfig(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
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
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns every problem found as
// ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch c.Executor.Kind {
	case "echo", "ollama":
	default:
		add("executor.kind", "must be echo or ollama, got %q", c.Executor.Kind)
	}
	if u, err := url.Parse(c.Executor.OllamaURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("executor.ollama_url", "invalid URL %q", c.Executor.OllamaURL)
	}
	if c.Executor.TimeoutSecs < 0 {
		add("executor.timeout_secs", "must not be negative")
	}
	if c.Executor.EchoDelayMs < 0 {
		add("executor.echo_delay_ms", "must not be negative")
	}

	if err := c.Model.Validate(); err != nil {
		add("model", "%v", err)
	}

	if c.Resolver.TimeoutSecs < 0 {
		add("resolver.timeout_secs", "must not be negative")
	}
	if c.Resolver.MaxBodyBytes < 0 {
		add("resolver.max_body_bytes", "must not be negative")
	}
	if c.Resolver.RatePerSec < 0 {
		add("resolver.rate_per_sec", "must not be negative")
	}
	if c.Resolver.Burst < 0 {
		add("resolver.burst", "must not be negative")
	}
	if c.Resolver.CacheTTLSecs < 0 {
		add("resolver.cache_ttl_secs", "must not be negative")
	}
	if c.Resolver.CacheEntries < 0 {
		add("resolver.cache_entries", "must not be negative")
	}
	if c.Resolver.Concurrency < 1 {
		add("resolver.concurrency", "must be at least 1")
	}

	switch c.Storage.Driver {
	case "file", "sqlite", "memory":
	default:
		add("storage.driver", "must be file, sqlite or memory, got %q", c.Storage.Driver)
	}
	if err := storage.ValidateKey(c.Storage.Owner); err != nil {
		add("storage.owner", "invalid owner %q", c.Storage.Owner)
	}

	switch c.Logging.Mode {
	case "dev", "prod":
	default:
		add("logging.mode", "must be dev or prod, got %q", c.Logging.Mode)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - PROMPTLAB_EXECUTOR: overrides executor.kind
//   - PROMPTLAB_OLLAMA_URL: overrides executor.ollama_url
//   - PROMPTLAB_ECHO_DELAY_MS: overrides executor.echo_delay_ms
//   - PROMPTLAB_MODEL: overrides model.model
//   - PROMPTLAB_STORAGE_DRIVER: overrides storage.driver
//   - PROMPTLAB_STORAGE_DIR: overrides storage.dir
//   - PROMPTLAB_OWNER: overrides storage.owner
//   - PROMPTLAB_LOG_MODE: overrides logging.mode
//   - PROMPTLAB_LOG_LEVEL: overrides logging.level
//   - PROMPTLAB_ADDR: overrides server.addr
func (c *Config) ApplyEnvOverrides() {
	overrides := map[string]*string{
		"PROMPTLAB_EXECUTOR":       &c.Executor.Kind,
		"PROMPTLAB_OLLAMA_URL":     &c.Executor.OllamaURL,
		"PROMPTLAB_MODEL":          &c.Model.Model,
		"PROMPTLAB_STORAGE_DRIVER": &c.Storage.Driver,
		"PROMPTLAB_STORAGE_DIR":    &c.Storage.Dir,
		"PROMPTLAB_OWNER":          &c.Storage.Owner,
		"PROMPTLAB_LOG_MODE":       &c.Logging.Mode,
		"PROMPTLAB_LOG_LEVEL":      &c.Logging.Level,
		"PROMPTLAB_ADDR":           &c.Server.Addr,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}

	if v := os.Getenv("PROMPTLAB_ECHO_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Executor.EchoDelayMs = ms
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "resolver.burst").
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
		return fmt.Errorf("cannot set field: %s", key)
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
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i], "."))
		}
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	if v.Kind() == reflect.Struct {
		return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
	}
	return v, nil
}

// fieldByTag finds the field whose toml tag is name.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	if tag == "" {
		return strings.ToLower(f.Name)
	}
	return tag
}

// setFieldValue sets a reflect.Value from an any value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid bool value: %v", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation, sorted.
func GetAllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + tomlName(f)
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}

// =============================================================================
// COMPONENT SETTINGS
// =============================================================================

// ResolverSettings converts the resolver section.
func (c *Config) ResolverSettings() resolve.Config {
	cfg := resolve.DefaultConfig()
	cfg.Timeout = time.Duration(c.Resolver.TimeoutSecs) * time.Second
	cfg.MaxBodyBytes = c.Resolver.MaxBodyBytes
	cfg.RatePerSec = c.Resolver.RatePerSec
	cfg.Burst = c.Resolver.Burst
	cfg.CacheTTL = time.Duration(c.Resolver.CacheTTLSecs) * time.Second
	cfg.CacheEntries = c.Resolver.CacheEntries
	return cfg
}

// StorageOptions converts the storage section. An empty dir means
// ~/.promptlab/data.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{Driver: c.Storage.Driver, Dir: c.Storage.Dir, DSN: c.Storage.DSN}
}

// EchoDelay returns the simulated executor latency.
func (c *Config) EchoDelay() time.Duration {
	return time.Duration(c.Executor.EchoDelayMs) * time.Millisecond
}

// ExecutorTimeout returns the Ollama request timeout.
func (c *Config) ExecutorTimeout() time.Duration {
	return time.Duration(c.Executor.TimeoutSecs) * time.Second
}
