// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for glance.
//
// Supports TOML, YAML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ProviderConfig: Credential, endpoint and default model for one provider
//   - Settings: The user-editable record mirrored into the key-value store
//   - Watcher: Reloads the config file when it changes on disk
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (GLANCE_*)
//   - Settings saved in the key-value store by the settings UI
//   - ~/.glance/config.toml, config.yaml or config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	key := cfg.Credential(cfg.Provider)
//
// # Security
//
// Config files are written with 0600 permissions. String() redacts API keys.
package config
