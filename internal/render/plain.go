// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"regexp"
	"strings"
)

// =============================================================================
// PLAIN TEXT
// =============================================================================

var (
	fenceLine    = regexp.MustCompile("(?m)^\\s*```[a-zA-Z0-9_+-]*\\s*$\\n?")
	headingMark  = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	boldStars    = regexp.MustCompile(`\*\*([^*\s](?:[^*]*[^*\s])?)\*\*`)
	boldUnders   = regexp.MustCompile(`__([^_\s](?:[^_]*[^_\s])?)__`)
	italicStar   = regexp.MustCompile(`\*([^*\s](?:[^*\n]*[^*\s])?)\*`)
	strike       = regexp.MustCompile(`~~([^~]+)~~`)
	inlineCode   = regexp.MustCompile("`([^`\n]+)`")
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

// Plain strips inline markup delimiters from an answer, leaving the words.
// Underscore runs used as fill-in blanks survive untouched.
func Plain(answer string) string {
	s := strings.ReplaceAll(answer, "\r\n", "\n")
	s = fenceLine.ReplaceAllString(s, "")
	s = headingMark.ReplaceAllString(s, "")
	s = markdownLink.ReplaceAllString(s, "$1 ($2)")
	s = boldStars.ReplaceAllString(s, "$1")
	s = boldUnders.ReplaceAllString(s, "$1")
	s = italicStar.ReplaceAllString(s, "$1")
	s = strike.ReplaceAllString(s, "$1")
	s = inlineCode.ReplaceAllString(s, "$1")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
