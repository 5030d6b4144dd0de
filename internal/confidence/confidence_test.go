// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package confidence

import (
	"strings"
	"testing"

	"github.com/jeranaias/glance/internal/classify"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		d      classify.Descriptor
		want   int
	}{
		{"math_final_answer", "2 + 2 equals four.\nFinal Answer: 4", classify.Descriptor{IsMath: true}, 90},
		{"math_final_answer_lowercase", "so the final answer is 4", classify.Descriptor{IsMath: true}, 90},
		{"math_answer_number", "Answer: 42", classify.Descriptor{IsMath: true}, 90},
		{"math_no_marker", "I think it is four", classify.Descriptor{IsMath: true}, 70},
		{"code_long", strings.Repeat("a", 150), classify.Descriptor{IsCode: true}, 85},
		{"code_exactly_100", strings.Repeat("a", 100), classify.Descriptor{IsCode: true}, 70},
		{"long_text_short_answer", strings.Repeat("a", 10), classify.Descriptor{IsLongText: true}, 60},
		{"long_text_long_answer", strings.Repeat("a", 50), classify.Descriptor{IsLongText: true}, 70},
		{"math_rule_first", "Final Answer: " + strings.Repeat("a", 150), classify.Descriptor{IsMath: true, IsCode: true}, 90},
		{"baseline", "hello", classify.Descriptor{IsStatement: true}, 70},
		{"empty_answer", "", classify.Descriptor{}, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Estimate(tt.answer, tt.d); got != tt.want {
				t.Errorf("Estimate() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestEstimate_Bounds checks every flag combination against a range of answers.
func TestEstimate_Bounds(t *testing.T) {
	answers := []string{"", "x", "Final Answer: 4", strings.Repeat("z", 500)}
	for mask := 0; mask < 1<<7; mask++ {
		d := classify.Descriptor{
			IsMath:      mask&1 != 0,
			IsCode:      mask&2 != 0,
			IsQuestion:  mask&4 != 0,
			IsFillBlank: mask&8 != 0,
			IsCommand:   mask&16 != 0,
			IsStatement: mask&32 != 0,
			IsLongText:  mask&64 != 0,
		}
		for _, a := range answers {
			got := Estimate(a, d)
			if got < Min || got > Max {
				t.Fatalf("Estimate(%q, %+v) = %d out of [%d,%d]", a, d, got, Min, Max)
			}
		}
	}
}

func TestClamp(t *testing.T) {
	if clamp(10) != Min || clamp(120) != Max || clamp(77) != 77 {
		t.Error("clamp does not bound to [Min, Max]")
	}
}
