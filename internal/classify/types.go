// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package classify

// ============================================================================
// DESCRIPTOR
// ============================================================================

// LongTextWords is the word count above which text counts as long.
const LongTextWords = 75

// StatementMaxWords is the largest word count still treated as a statement.
const StatementMaxWords = 20

// Descriptor is the result of classifying one piece of text.
// Flags are computed independently and may overlap.
type Descriptor struct {
	WordCount   int  `json:"wordCount"`
	IsMath      bool `json:"isMath"`
	IsCode      bool `json:"isCode"`
	IsQuestion  bool `json:"isQuestion"`
	IsFillBlank bool `json:"isFillBlank"`
	IsCommand   bool `json:"isCommand"`
	IsStatement bool `json:"isStatement"`
	IsLongText  bool `json:"isLongText"`
}

// Category returns the effective category for text-only input.
func (d Descriptor) Category() Category {
	return Resolve(d, false)
}

// ============================================================================
// CATEGORY
// ============================================================================

// Category is the single effective content category that governs prompt
// construction.
type Category int

const (
	// CategoryGeneral is the fallback when no other rule applies.
	CategoryGeneral Category = iota
	// CategoryImage is selected whenever an image accompanies the request.
	CategoryImage
	// CategoryMath covers equations, arithmetic and math verbs.
	CategoryMath
	// CategoryCode covers source code snippets.
	CategoryCode
	// CategoryFillBlank covers fill-in-the-blank exercises.
	CategoryFillBlank
	// CategoryQuestion covers direct questions.
	CategoryQuestion
	// CategoryCommand covers imperative instructions.
	CategoryCommand
	// CategoryLongText covers passages over LongTextWords words.
	CategoryLongText
	// CategoryStatement covers short plain statements.
	CategoryStatement
)

// String returns the label used in usage statistics and logs.
func (c Category) String() string {
	switch c {
	case CategoryImage:
		return "image"
	case CategoryMath:
		return "math"
	case CategoryCode:
		return "code"
	case CategoryFillBlank:
		return "fillblank"
	case CategoryQuestion:
		return "question"
	case CategoryCommand:
		return "command"
	case CategoryLongText:
		return "longtext"
	case CategoryStatement:
		return "statement"
	default:
		return "general"
	}
}

// ParseCategory converts a label produced by String back to a Category.
// Unknown labels map to CategoryGeneral.
func ParseCategory(s string) Category {
	for c := CategoryGeneral; c <= CategoryStatement; c++ {
		if c.String() == s {
			return c
		}
	}
	return CategoryGeneral
}

// Resolve applies the fixed priority order and returns exactly one category.
func Resolve(d Descriptor, isImage bool) Category {
	switch {
	case isImage:
		return CategoryImage
	case d.IsMath:
		return CategoryMath
	case d.IsCode:
		return CategoryCode
	case d.IsFillBlank:
		return CategoryFillBlank
	case d.IsQuestion:
		return CategoryQuestion
	case d.IsCommand:
		return CategoryCommand
	case d.IsLongText:
		return CategoryLongText
	case d.IsStatement:
		return CategoryStatement
	default:
		return CategoryGeneral
	}
}
