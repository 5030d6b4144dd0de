// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/jeranaias/glance/internal/assistant"
	"github.com/jeranaias/glance/internal/config"
	"github.com/jeranaias/glance/internal/storage"
	"github.com/jeranaias/glance/internal/telemetry"
)

// app is the wired runtime shared by commands that touch storage.
type app struct {
	cfg        *config.Config
	configPath string
	store      storage.Store
	history    *storage.HistoryStore
	tracker    *telemetry.Tracker
	assistant  *assistant.Assistant
}

// loadConfig loads the config file named by --config, or the default
// location, and applies --provider and --model.
func loadConfig(args Args) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path = args.ConfigPath
		err  error
	)
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		path, _ = config.DefaultPath()
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, "", &CommandError{Command: "config", Action: "load", Err: err}
	}
	applyFlagOverrides(cfg, args)
	return cfg, path, nil
}

func applyFlagOverrides(cfg *config.Config, args Args) {
	if args.Provider != "" {
		cfg.Provider = args.Provider
	}
	if args.Model != "" {
		cfg.Model = args.Model
	}
}

// openApp loads config, opens the store and merges stored settings.
// Flag overrides are applied after stored settings so they always win.
func openApp(ctx context.Context, args Args) (*app, error) {
	cfg, path, err := loadConfig(args)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storage.Kind(cfg.Storage.Kind), cfg.Storage.Path)
	if err != nil {
		return nil, &CommandError{Command: "storage", Action: "open", Err: err}
	}

	if err := cfg.MergeStored(ctx, store); err != nil {
		store.Close()
		return nil, &CommandError{Command: "config", Action: "merge stored settings", Err: err}
	}
	applyFlagOverrides(cfg, args)
	if err := cfg.Validate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	tracker := telemetry.NewTracker(store)
	if err := tracker.Load(ctx); err != nil {
		log.Printf("USAGE_LOAD_ERROR | error=%v", err)
	}
	history := storage.NewHistoryStore(store)

	return &app{
		cfg:        cfg,
		configPath: path,
		store:      store,
		history:    history,
		tracker:    tracker,
		assistant:  assistant.New(cfg).WithHistory(history).WithTracker(tracker),
	}, nil
}

// Close releases the store.
func (a *app) Close() error {
	a.tracker.Flush()
	return a.store.Close()
}
