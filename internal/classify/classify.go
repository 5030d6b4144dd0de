// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package classify

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ============================================================================
// PATTERNS
// ============================================================================

var (
	// Only digits, operators, parentheses and comparison symbols.
	mathOnlyPattern = regexp.MustCompile(`^[\d\s+\-*/^%().,=<>≤≥≠×÷]+$`)
	mathVerbPattern = regexp.MustCompile(`(?i)\b(solve|calculate|evaluate|compute|find|derivative|integral|limit)\b`)
	// digit operator digit, e.g. "2 + 2" or "3*4"
	mathBinaryPattern = regexp.MustCompile(`\d\s*[+\-*/^×÷=]\s*\d`)
	// x or y followed by an operator, e.g. "x = 5" or "y^2"
	mathVariablePattern = regexp.MustCompile(`\b[xy]\s*[+\-*/^=<>]`)

	codeKeywordPattern = regexp.MustCompile(`\b(function|def|class|import|const|let|var|public|private|return|func|package|struct|interface)\b|#include\b`)
	codeSyntaxPattern  = regexp.MustCompile(`[{}]|\);|=>|->|::`)

	questionStartPattern = regexp.MustCompile(`(?i)^(what|how|why|when|where|who|which|can|could|should|would|is|are|do|does|did)\b`)
	fillBlankPattern     = regexp.MustCompile(`(?i)_{2,}|\bblank\b`)
	commandStartPattern  = regexp.MustCompile(`(?i)^(answer|calculate|evaluate|graph|select|solve|find)\b`)
)

// ============================================================================
// CLASSIFICATION
// ============================================================================

// Classify runs every content test against text and returns the resulting
// Descriptor. It never fails.
//
// Input is NFKC-normalized first so full-width digits and operators match
// like their ASCII forms. Empty or whitespace-only input yields WordCount 1
// and no flags; callers that care must reject empty input themselves.
func Classify(text string) Descriptor {
	normalized := norm.NFKC.String(text)
	trimmed := strings.TrimSpace(normalized)

	d := Descriptor{WordCount: wordCount(trimmed)}
	if trimmed == "" {
		return d
	}

	d.IsMath = isMath(trimmed)
	d.IsCode = isCode(trimmed)
	d.IsQuestion = strings.HasSuffix(trimmed, "?") || questionStartPattern.MatchString(trimmed)
	d.IsFillBlank = fillBlankPattern.MatchString(trimmed)
	d.IsCommand = commandStartPattern.MatchString(trimmed)
	d.IsLongText = d.WordCount > LongTextWords
	d.IsStatement = !d.IsQuestion && !d.IsMath && !d.IsCode && !d.IsCommand &&
		d.WordCount <= StatementMaxWords

	return d
}

// wordCount returns the number of whitespace-delimited tokens, minimum 1.
func wordCount(s string) int {
	n := len(strings.Fields(s))
	if n < 1 {
		return 1
	}
	return n
}

func isMath(s string) bool {
	return (mathOnlyPattern.MatchString(s) && strings.ContainsAny(s, "0123456789")) ||
		mathVerbPattern.MatchString(s) ||
		mathBinaryPattern.MatchString(s) ||
		mathVariablePattern.MatchString(s)
}

func isCode(s string) bool {
	return codeKeywordPattern.MatchString(s) || codeSyntaxPattern.MatchString(s)
}
