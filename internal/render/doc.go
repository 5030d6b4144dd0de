// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns assistant answers into display-ready text.
//
// Answers arrive as loosely formatted markdown. The overlay needs either
// plain text or sanitized HTML; the CLI wants styled terminal output.
//
// # Key Types
//
//   - Terminal: glamour-backed renderer for ANSI terminals
//
// # Usage
//
//	plain := render.Plain(answer)
//	html, err := render.HTML(answer)
//	page, err := render.ThreadHTML(t, "dark")
//
// Rendering never affects what is stored: threads keep the raw answer.
package render
