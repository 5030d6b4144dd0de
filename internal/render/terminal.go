// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// TERMINAL
// =============================================================================

// DefaultWidth is the word-wrap width when none is configured.
const DefaultWidth = 80

// Terminal renders answers for an ANSI terminal.
type Terminal struct {
	r *glamour.TermRenderer
}

// NewTerminal builds a terminal renderer. style is "auto", "dark", "light"
// or "notty"; width <= 0 selects DefaultWidth.
func NewTerminal(style string, width int) (*Terminal, error) {
	if width <= 0 {
		width = DefaultWidth
	}

	styleOpt := glamour.WithAutoStyle()
	switch style {
	case "dark", "light", "notty":
		styleOpt = glamour.WithStandardStyle(style)
	}

	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("create terminal renderer: %w", err)
	}
	return &Terminal{r: r}, nil
}

// Render returns the styled answer, or the raw answer if rendering fails.
func (t *Terminal) Render(answer string) string {
	if t == nil || t.r == nil {
		return answer
	}
	out, err := t.r.Render(answer)
	if err != nil {
		return answer
	}
	return out
}
