// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for kops.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.kops/config.toml
//   - ~/.kops/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete kops configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// API is the KnowledgeOps backend connection.
	API APIConfig `toml:"api" json:"api"`

	// Session controls the signed session file written by `kops login`.
	Session SessionConfig `toml:"session" json:"session"`

	// Training controls the job poller.
	Training TrainingConfig `toml:"training" json:"training"`

	// Log controls the rotated log file.
	Log LogConfig `toml:"log" json:"log"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// APIConfig contains backend connection settings.
type APIConfig struct {
	// URL is the backend base URL, without the /api/v1 suffix.
	URL string `toml:"url" json:"url"`
	// TimeoutSecs is the default per-request timeout.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// QueryTimeoutSecs is the timeout for POST /query, which waits on generation.
	QueryTimeoutSecs int `toml:"query_timeout_secs" json:"query_timeout_secs"`
	// RequestsPerSecond paces outgoing requests (0 = unlimited).
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	// Burst is the limiter burst size.
	Burst int `toml:"burst" json:"burst"`
	// HistoryLimit is how many conversations the history picker requests.
	HistoryLimit int `toml:"history_limit" json:"history_limit"`
}

// SessionConfig contains settings for the local session file.
type SessionConfig struct {
	// Secret signs the session file. Required.
	Secret string `toml:"secret" json:"secret"`
	// MaxAgeHours is how long a login stays valid.
	MaxAgeHours int `toml:"max_age_hours" json:"max_age_hours"`
	// File overrides the session file location (empty = ~/.kops/session.jwt).
	File string `toml:"file" json:"file"`
}

// TrainingConfig contains poller settings.
type TrainingConfig struct {
	// PollIntervalSecs is the status poll interval.
	PollIntervalSecs int `toml:"poll_interval_secs" json:"poll_interval_secs"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level"`
	// File is the log file path (empty = ~/.kops/kops.log).
	File string `toml:"file" json:"file"`
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `toml:"max_backups" json:"max_backups"`
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	// Theme is "dark", "light" or "auto".
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders assistant answers as markdown.
	Markdown bool `toml:"markdown" json:"markdown"`
	// DefaultDepartment is the slug or id selected on startup.
	DefaultDepartment string `toml:"default_department" json:"default_department"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1",
		API: APIConfig{
			URL:               "http://localhost:8000",
			TimeoutSecs:       30,
			QueryTimeoutSecs:  120,
			RequestsPerSecond: 10,
			Burst:             20,
			HistoryLimit:      50,
		},
		Session: SessionConfig{
			MaxAgeHours: 24,
		},
		Training: TrainingConfig{
			PollIntervalSecs: 3,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		UI: UIConfig{
			Theme:    "auto",
			Markdown: true,
		},
	}
}

// Timeout returns the default request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// QueryTimeout returns the timeout used for query submission.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.API.QueryTimeoutSecs) * time.Second
}

// PollInterval returns the training poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Training.PollIntervalSecs) * time.Second
}

// SessionMaxAge returns how long a saved login stays valid.
func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.Session.MaxAgeHours) * time.Hour
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the kops configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv("KOPS_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".kops"), nil
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

// SessionPath returns the session file location.
func (c *Config) SessionPath() (string, error) {
	if c.Session.File != "" {
		return c.Session.File, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.jwt"), nil
}

// LogPath returns the log file location.
func (c *Config) LogPath() (string, error) {
	if c.Log.File != "" {
		return c.Log.File, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "kops.log"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: the config file holds the session secret.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finish(cfg)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finish(cfg)
		}
	}

	return finish(cfg)
}

// LoadFromPath loads configuration from a specific file path with full validation.
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
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// SetDefaults fills zero values with defaults. Zero is never a meaningful
// timeout or interval, so it is treated as "unset".
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.API.URL == "" {
		c.API.URL = d.API.URL
	}
	c.API.URL = strings.TrimSuffix(c.API.URL, "/")
	if c.API.TimeoutSecs <= 0 {
		c.API.TimeoutSecs = d.API.TimeoutSecs
	}
	if c.API.QueryTimeoutSecs <= 0 {
		c.API.QueryTimeoutSecs = d.API.QueryTimeoutSecs
	}
	if c.API.Burst <= 0 {
		c.API.Burst = d.API.Burst
	}
	if c.API.HistoryLimit <= 0 {
		c.API.HistoryLimit = d.API.HistoryLimit
	}
	if c.Session.MaxAgeHours <= 0 {
		c.Session.MaxAgeHours = d.Session.MaxAgeHours
	}
	if c.Training.PollIntervalSecs <= 0 {
		c.Training.PollIntervalSecs = d.Training.PollIntervalSecs
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = d.Log.MaxSizeMB
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = d.Log.MaxBackups
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
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

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var sb strings.Builder
	sb.WriteString("# kops configuration file\n")
	sb.WriteString("# Generated by kops - edit with care\n\n")
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600); err != nil {
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
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
// The session secret is not checked here: commands that never touch the
// session file (config show, version) must work without it. See RequireSecret.
func (c *Config) Validate() error {
	var errs ValidateErrors

	u, err := url.Parse(c.API.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, ValidationError{
			Field:   "api.url",
			Message: fmt.Sprintf("invalid URL '%s', must be an absolute http(s) URL", c.API.URL),
		})
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "api.requests_per_second", Message: "must not be negative"})
	}
	if c.API.QueryTimeoutSecs < c.API.TimeoutSecs {
		errs = append(errs, ValidationError{
			Field:   "api.query_timeout_secs",
			Message: fmt.Sprintf("must be at least api.timeout_secs (%d)", c.API.TimeoutSecs),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RequireSecret reports an error when no session secret is configured.
func (c *Config) RequireSecret() error {
	if strings.TrimSpace(c.Session.Secret) == "" {
		return ValidateErrors{{
			Field:   "session.secret",
			Message: "not set; add it to config.toml or export KOPS_SESSION_SECRET",
		}}
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the configuration.
//
// Supported environment variables:
//   - KOPS_API_URL: overrides api.url
//   - KOPS_SESSION_SECRET: overrides session.secret
//   - KOPS_LOG_LEVEL: overrides log.level
//   - KOPS_POLL_INTERVAL: overrides training.poll_interval_secs
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("KOPS_API_URL"); v != "" {
		c.API.URL = v
	}
	if v := os.Getenv("KOPS_SESSION_SECRET"); v != "" {
		c.Session.Secret = v
	}
	if v := os.Getenv("KOPS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("KOPS_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Training.PollIntervalSecs = n
		}
	}
}

// String renders the configuration as TOML with the secret redacted.
func (c *Config) String() string {
	clone := *c
	if clone.Session.Secret != "" {
		clone.Session.Secret = "[REDACTED]"
	}
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(&clone); err != nil {
		return fmt.Sprintf("error encoding config: %v", err)
	}
	return sb.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
			cfg.ApplyEnvOverrides()
			cfg.SetDefaults()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
// A value set before the first Global call wins over the on-disk config.
func SetGlobal(cfg *Config) {
	if cfg == nil {
		return
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
