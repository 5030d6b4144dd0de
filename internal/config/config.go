// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/glance/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete glance configuration.
type Config struct {
	Version string `toml:"version" json:"version" yaml:"version"`

	// Active provider and model
	Provider    string  `toml:"provider" json:"provider" yaml:"provider"`
	Model       string  `toml:"model" json:"model" yaml:"model"`
	Temperature float64 `toml:"temperature" json:"temperature" yaml:"temperature"`
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens" yaml:"max_tokens"`

	// Per-provider settings
	OpenAI    ProviderConfig `toml:"openai" json:"openai" yaml:"openai"`
	Anthropic ProviderConfig `toml:"anthropic" json:"anthropic" yaml:"anthropic"`

	Server  ServerConfig  `toml:"server" json:"server" yaml:"server"`
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`
	Output  OutputConfig  `toml:"output" json:"output" yaml:"output"`
}

// ProviderConfig contains settings for one LLM provider.
type ProviderConfig struct {
	APIKey  string `toml:"api_key" json:"api_key" yaml:"api_key"`
	BaseURL string `toml:"base_url" json:"base_url" yaml:"base_url"`
	Model   string `toml:"model" json:"model" yaml:"model"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Addr               string   `toml:"addr" json:"addr" yaml:"addr"`
	RateLimit          float64  `toml:"rate_limit" json:"rate_limit" yaml:"rate_limit"` // requests/sec per client, 0 disables
	RateBurst          int      `toml:"rate_burst" json:"rate_burst" yaml:"rate_burst"`
	MaxBodyBytes       int64    `toml:"max_body_bytes" json:"max_body_bytes" yaml:"max_body_bytes"`
	RequestTimeoutSecs int      `toml:"request_timeout_secs" json:"request_timeout_secs" yaml:"request_timeout_secs"`
	AllowedOrigins     []string `toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Kind string `toml:"kind" json:"kind" yaml:"kind"` // memory, file, sqlite
	Path string `toml:"path" json:"path" yaml:"path"`
}

// OutputConfig controls CLI rendering.
type OutputConfig struct {
	Style string `toml:"style" json:"style" yaml:"style"` // auto, dark, light, notty
	Width int    `toml:"width" json:"width" yaml:"width"`
}

// Default model per provider.
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-sonnet-latest"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:     "1",
		Provider:    "openai",
		Temperature: 0.2,
		MaxTokens:   2000,
		OpenAI: ProviderConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   DefaultOpenAIModel,
		},
		Anthropic: ProviderConfig{
			BaseURL: "https://api.anthropic.com/v1",
			Model:   DefaultAnthropicModel,
		},
		Server: ServerConfig{
			Addr:               "127.0.0.1:8787",
			RateLimit:          2,
			RateBurst:          5,
			MaxBodyBytes:       8 << 20,
			RequestTimeoutSecs: 120,
		},
		Storage: StorageConfig{
			Kind: "sqlite",
			Path: "~/.glance/glance.db",
		},
		Output: OutputConfig{
			Style: "auto",
			Width: 100,
		},
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// ProviderConfig returns the settings for the named provider.
func (c *Config) ProviderConfig(name string) (ProviderConfig, bool) {
	switch strings.ToLower(name) {
	case "openai":
		return c.OpenAI, true
	case "anthropic":
		return c.Anthropic, true
	default:
		return ProviderConfig{}, false
	}
}

// Credential returns the API key for the named provider.
func (c *Config) Credential(name string) string {
	pc, _ := c.ProviderConfig(name)
	return pc.APIKey
}

// ModelFor returns the model to use with the named provider. The top-level
// model applies only to the active provider.
func (c *Config) ModelFor(name string) string {
	if strings.EqualFold(name, c.Provider) && c.Model != "" {
		return c.Model
	}
	pc, _ := c.ProviderConfig(name)
	return pc.Model
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// ConfigDir returns the glance configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".glance"), nil
}

// candidatePaths lists config files in lookup order.
func candidatePaths() ([]string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "config.toml"),
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.yml"),
		filepath.Join(dir, "config.json"),
	}, nil
}

// DefaultPath returns the first existing config file, or config.toml.
func DefaultPath() (string, error) {
	paths, err := candidatePaths()
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return paths[0], nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default location, falling back to
// defaults when no file exists. Environment overrides are applied last.
// CONFIG: Comprehensive validation ensures safe configuration
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file with full validation.
// The format is chosen by extension; anything unrecognized is read as TOML.
func LoadFromPath(path string) (*Config, error) {
	// SECURITY: Check and fix file permissions if needed
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := Decode(cfg, data, formatFor(path)); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Format is a config file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Decode parses data in the given format into cfg.
func Decode(cfg *Config, data []byte, format Format) error {
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, cfg)
	case FormatYAML:
		err = yaml.Unmarshal(data, cfg)
	default:
		_, err = toml.Decode(string(data), cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", format, err)
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	d := Default()

	if cfg.Version == "" {
		cfg.Version = d.Version
	}
	if cfg.Provider == "" {
		cfg.Provider = d.Provider
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = d.MaxTokens
	}

	fillProvider(&cfg.OpenAI, d.OpenAI)
	fillProvider(&cfg.Anthropic, d.Anthropic)

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = d.Server.RateBurst
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = d.Server.RequestTimeoutSecs
	}

	if cfg.Storage.Kind == "" {
		cfg.Storage.Kind = d.Storage.Kind
	}
	if cfg.Storage.Path == "" && cfg.Storage.Kind != "memory" {
		cfg.Storage.Path = d.Storage.Path
		if cfg.Storage.Kind == "file" {
			cfg.Storage.Path = "~/.glance/data"
		}
	}

	if cfg.Output.Style == "" {
		cfg.Output.Style = d.Output.Style
	}
	if cfg.Output.Width == 0 {
		cfg.Output.Width = d.Output.Width
	}
}

func fillProvider(pc *ProviderConfig, d ProviderConfig) {
	if pc.BaseURL == "" {
		pc.BaseURL = d.BaseURL
	}
	if pc.Model == "" {
		pc.Model = d.Model
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to path in the format implied by its
// extension.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func Save(cfg *Config, path string) error {
	data, err := Encode(cfg, formatFor(path))
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Encode renders cfg in the given format.
func Encode(cfg *Config, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(cfg, "", "  ")
	case FormatYAML:
		return yaml.Marshal(cfg)
	default:
		var buf bytes.Buffer
		buf.WriteString("# glance configuration file\n")
		buf.WriteString("# Generated by glance - edit with care\n\n")
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
		return buf.Bytes(), nil
	}
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
// Missing API keys are not an error here; requests fail with a
// configuration error when they are actually needed.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if _, ok := c.ProviderConfig(c.Provider); !ok {
		errs = append(errs, ValidationError{
			Field:   "provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: openai, anthropic", c.Provider),
		})
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "temperature",
			Message: fmt.Sprintf("must be between 0 and 2, got %v", c.Temperature),
		})
	}
	if c.MaxTokens < 1 || c.MaxTokens > 32000 {
		errs = append(errs, ValidationError{
			Field:   "max_tokens",
			Message: fmt.Sprintf("must be between 1 and 32000, got %d", c.MaxTokens),
		})
	}

	for name, pc := range map[string]ProviderConfig{"openai": c.OpenAI, "anthropic": c.Anthropic} {
		if pc.BaseURL == "" {
			continue
		}
		u, err := url.Parse(pc.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   name + ".base_url",
				Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host", pc.BaseURL),
			})
		}
	}

	if c.Server.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Message: "must not be empty"})
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit", Message: "must not be negative"})
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, ValidationError{Field: "server.max_body_bytes", Message: "must not be negative"})
	}

	switch c.Storage.Kind {
	case "memory":
	case "file", "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, ValidationError{Field: "storage.path", Message: "required for " + c.Storage.Kind})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.kind",
			Message: fmt.Sprintf("invalid kind '%s', must be one of: memory, file, sqlite", c.Storage.Kind),
		})
	}

	switch c.Output.Style {
	case "auto", "dark", "light", "notty":
	default:
		errs = append(errs, ValidationError{
			Field:   "output.style",
			Message: fmt.Sprintf("invalid style '%s', must be one of: auto, dark, light, notty", c.Output.Style),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - GLANCE_PROVIDER, GLANCE_MODEL, GLANCE_TEMPERATURE
//   - GLANCE_OPENAI_KEY (or OPENAI_API_KEY), GLANCE_OPENAI_URL
//   - GLANCE_ANTHROPIC_KEY (or ANTHROPIC_API_KEY), GLANCE_ANTHROPIC_URL
//   - GLANCE_ADDR, GLANCE_STORE, GLANCE_STORE_PATH
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("GLANCE_PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("GLANCE_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("GLANCE_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Temperature = f
		}
	}

	if v := firstEnv("GLANCE_OPENAI_KEY", "OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("GLANCE_OPENAI_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := firstEnv("GLANCE_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"); v != "" {
		c.Anthropic.APIKey = v
	}
	if v := os.Getenv("GLANCE_ANTHROPIC_URL"); v != "" {
		c.Anthropic.BaseURL = v
	}

	if v := os.Getenv("GLANCE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("GLANCE_STORE"); v != "" {
		c.Storage.Kind = strings.ToLower(v)
	}
	if v := os.Getenv("GLANCE_STORE_PATH"); v != "" {
		c.Storage.Path = v
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// CLONE / STRING
// =============================================================================

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return &clone
}

// String returns a JSON rendering of the config for debugging.
// SECURITY: API keys are redacted.
func (c *Config) String() string {
	safe := c.Clone()
	safe.OpenAI.APIKey = util.RedactKey(safe.OpenAI.APIKey)
	safe.Anthropic.APIKey = util.RedactKey(safe.Anthropic.APIKey)

	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
