// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/glance/internal/config"
)

// HandleConfig shows, validates or initializes the config file.
func HandleConfig(args Args, out io.Writer) error {
	switch args.Subcommand {
	case "", "show":
		cfg, _, err := loadConfig(args)
		if err != nil {
			return err
		}
		if args.JSON {
			// String is already redacted JSON.
			return NewJSONResponse("config", json.RawMessage(cfg.String())).Print(out)
		}
		fmt.Fprintln(out, cfg.String())
		return nil

	case "path":
		path := args.ConfigPath
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		if args.JSON {
			return NewJSONResponse("config", map[string]string{"path": path}).Print(out)
		}
		fmt.Fprintln(out, path)
		return nil

	case "validate", "check":
		_, path, err := loadConfig(args)
		if args.JSON {
			return outputJSON(out, "config", func() (any, error) {
				return map[string]any{"path": path, "valid": err == nil}, err
			})
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, SuccessStyle.Render("Config OK")+" "+DimStyle.Render(path))
		return nil

	case "init":
		path := args.ConfigPath
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		if _, err := os.Stat(path); err == nil {
			return usageErrorf("config init: %s already exists", path)
		}
		if err := config.Save(config.Default(), path); err != nil {
			return &CommandError{Command: "config", Action: "init", Err: err}
		}
		fmt.Fprintln(out, SuccessStyle.Render("Wrote "+path))
		return nil

	default:
		return usageErrorf("config: unknown subcommand %q (want show, path, validate or init)", args.Subcommand)
	}
}
