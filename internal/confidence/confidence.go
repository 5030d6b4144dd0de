// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package confidence scores a completed answer with a fixed rule cascade.
//
// The score is a heuristic quality signal, not a probability. Evaluated
// scores always fall in [Min, Max]; Failed and Unevaluated are sentinels.
package confidence

import (
	"regexp"
	"strings"

	"github.com/jeranaias/glance/internal/classify"
)

const (
	// Min and Max bound every evaluated score.
	Min = 50
	Max = 95

	// Baseline is returned when no rule matches.
	Baseline = 70

	// Failed is reported when the request produced no answer.
	Failed = 0
	// Unevaluated is the placeholder before an answer has been scored.
	Unevaluated = 70

	mathAnswered = 90
	codeDetailed = 85
	longTextTerse = 60

	codeDetailChars  = 100
	longTextMinChars = 50
)

var answerNumberPattern = regexp.MustCompile(`(?i)answer:\s*-?\d`)

// Estimate scores answer for content described by d.
// Lengths are measured in characters (runes).
func Estimate(answer string, d classify.Descriptor) int {
	score := Baseline
	length := len([]rune(answer))

	switch {
	case d.IsMath && hasFinalAnswer(answer):
		score = mathAnswered
	case d.IsCode && length > codeDetailChars:
		score = codeDetailed
	case d.IsLongText && length < longTextMinChars:
		score = longTextTerse
	}

	return clamp(score)
}

func hasFinalAnswer(answer string) bool {
	return strings.Contains(strings.ToLower(answer), "final answer") ||
		answerNumberPattern.MatchString(answer)
}

func clamp(score int) int {
	if score < Min {
		return Min
	}
	if score > Max {
		return Max
	}
	return score
}
