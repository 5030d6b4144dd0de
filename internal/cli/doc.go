// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for glance.
//
// # Key Types
//
//   - Command: Enumeration of the available commands
//   - Args: Parsed global and command-specific flags
//   - JSONResponse: Envelope printed by every command under --json
//
// # Usage
//
//	cmd, args := cli.Parse()
//	if err := cli.Run(ctx, cmd, args); err != nil {
//	    os.Exit(cli.ExitCodeFor(err))
//	}
//
// # Commands Overview
//
//   - serve: Run the HTTP API
//   - ask: Analyze text or an image and print the answer
//   - classify: Show how text would be categorized, without a provider call
//   - stats: Show or reset usage statistics
//   - threads: List, show or delete stored threads
//   - export: Write a thread as markdown, yaml, html or json
//   - config: Show, validate or initialize the config file
//
// Answers are rendered with glamour when stdout is a terminal and streamed
// raw otherwise.
package cli
