// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/glance/internal/storage"
)

// =============================================================================
// SETTINGS RECORD
// =============================================================================

// Settings is the user-editable subset of Config that a settings UI writes
// into the key-value store.
type Settings struct {
	Provider    string            `json:"provider"`
	Model       string            `json:"model,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
}

// Settings extracts the settings record from the config.
func (c *Config) Settings() Settings {
	temp := c.Temperature
	s := Settings{
		Provider:    c.Provider,
		Model:       c.Model,
		Credentials: map[string]string{},
		Temperature: &temp,
	}
	if c.OpenAI.APIKey != "" {
		s.Credentials["openai"] = c.OpenAI.APIKey
	}
	if c.Anthropic.APIKey != "" {
		s.Credentials["anthropic"] = c.Anthropic.APIKey
	}
	return s
}

// ApplySettings overlays a settings record. Empty fields leave the config
// unchanged.
func (c *Config) ApplySettings(s Settings) {
	if s.Provider != "" {
		c.Provider = strings.ToLower(s.Provider)
	}
	if s.Model != "" {
		c.Model = s.Model
	}
	if s.Temperature != nil {
		c.Temperature = *s.Temperature
	}
	for name, key := range s.Credentials {
		if key == "" {
			continue
		}
		switch strings.ToLower(name) {
		case "openai":
			c.OpenAI.APIKey = key
		case "anthropic":
			c.Anthropic.APIKey = key
		}
	}
}

// LoadSettings reads the settings record from the store. A missing record
// is not an error and yields ok=false.
func LoadSettings(ctx context.Context, store storage.Store) (s Settings, ok bool, err error) {
	if err := storage.GetJSON(ctx, store, storage.KeySettings, &s); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Settings{}, false, nil
		}
		return Settings{}, false, fmt.Errorf("load settings: %w", err)
	}
	return s, true, nil
}

// SaveSettings writes the settings record to the store.
func SaveSettings(ctx context.Context, store storage.Store, s Settings) error {
	if err := storage.PutJSON(ctx, store, storage.KeySettings, s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// MergeStored overlays stored settings onto c and re-applies environment
// overrides so the environment keeps the highest precedence.
func (c *Config) MergeStored(ctx context.Context, store storage.Store) error {
	s, ok, err := LoadSettings(ctx, store)
	if err != nil || !ok {
		return err
	}
	c.ApplySettings(s)
	c.ApplyEnvOverrides()
	return c.Validate()
}

// Merge overlays the non-empty fields of o onto s.
func (s Settings) Merge(o Settings) Settings {
	out := Settings{
		Provider:    s.Provider,
		Model:       s.Model,
		Temperature: s.Temperature,
		Credentials: make(map[string]string, len(s.Credentials)+len(o.Credentials)),
	}
	for k, v := range s.Credentials {
		out.Credentials[k] = v
	}
	if o.Provider != "" {
		out.Provider = strings.ToLower(o.Provider)
	}
	if o.Model != "" {
		out.Model = o.Model
	}
	if o.Temperature != nil {
		t := *o.Temperature
		out.Temperature = &t
	}
	for k, v := range o.Credentials {
		if v != "" {
			out.Credentials[strings.ToLower(k)] = v
		}
	}
	return out
}
