// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jeranaias/glance/internal/config"
	"github.com/jeranaias/glance/internal/server"
)

// shutdownTimeout bounds graceful shutdown after ctx is cancelled.
const shutdownTimeout = 10 * time.Second

// HandleServe runs the HTTP API until ctx is cancelled.
func HandleServe(ctx context.Context, args Args) error {
	a, err := openApp(ctx, args)
	if err != nil {
		return err
	}
	defer a.Close()

	if args.Addr != "" {
		a.cfg.Server.Addr = args.Addr
	}

	// Reload provider settings when the config file changes. Stored
	// settings and flags are re-applied so they keep precedence.
	if _, statErr := os.Stat(a.configPath); statErr == nil {
		err := config.Watch(ctx, a.configPath, func(cfg *config.Config) {
			if err := cfg.MergeStored(ctx, a.store); err != nil {
				log.Printf("CONFIG_RELOAD_ERROR | path=%s error=%v", a.configPath, err)
				return
			}
			applyFlagOverrides(cfg, args)
			a.assistant.SetConfig(cfg)
		})
		if err != nil {
			log.Printf("CONFIG_WATCH_ERROR | path=%s error=%v", a.configPath, err)
		}
	}

	srv := server.New(a.cfg.Server, a.assistant, a.store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
