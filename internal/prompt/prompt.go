// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"fmt"
	"strings"

	"github.com/jeranaias/glance/internal/classify"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MathTemperature is used whenever the text is classified as math.
	MathTemperature = 0.0
	// DefaultTemperature is used for every other category.
	DefaultTemperature = 0.2

	// FinalAnswerMarker is the field name prompts ask the model to emit.
	FinalAnswerMarker = "Final Answer:"
)

const baseInstruction = "You are Glance, a concise assistant that analyzes content the user has selected on a web page."

// Plan is a fully built prompt ready for a provider.
type Plan struct {
	Instruction string
	UserMessage string
	Temperature float64
	Category    classify.Category
}

// HasFinalAnswer reports whether the prompt asks for a Final Answer field.
func (s Plan) HasFinalAnswer() bool {
	return strings.Contains(s.Instruction, FinalAnswerMarker)
}

// ============================================================================
// BUILD
// ============================================================================

// Build selects exactly one prompt branch for text and returns the Plan.
func Build(text string, d classify.Descriptor, isImage bool) Plan {
	category := classify.Resolve(d, isImage)
	text = strings.TrimSpace(text)

	plan := Plan{
		Temperature: Temperature(d),
		Category:    category,
	}

	switch category {
	case classify.CategoryImage:
		plan.Instruction = imageInstruction(d)
		if text == "" {
			plan.UserMessage = "Analyze the attached image."
		} else {
			plan.UserMessage = fmt.Sprintf("Analyze the attached image. Context from the page:\n\n%s", text)
		}

	case classify.CategoryMath:
		plan.Instruction = baseInstruction + " The user selected a math problem. " +
			"Restate the problem, then solve it step by step showing your work. " +
			"End with a line of the form \"" + FinalAnswerMarker + " <answer>\"."
		plan.UserMessage = "Solve this problem:\n\n" + text

	case classify.CategoryCode:
		plan.Instruction = baseInstruction + " The user selected a code snippet. " +
			"Identify the programming language, summarize what the code does, " +
			"and suggest concrete improvements. Do not include a Final Answer field."
		plan.UserMessage = "Explain this code:\n\n" + text

	case classify.CategoryFillBlank:
		plan.Instruction = baseInstruction + " The user selected a fill-in-the-blank exercise. " +
			"Determine the most likely value for each blank and explain briefly. " +
			"End with a line of the form \"" + FinalAnswerMarker + " <value>\"."
		plan.UserMessage = "Fill in the blank:\n\n" + text

	case classify.CategoryQuestion:
		plan.Instruction = baseInstruction + " The user selected a question. " +
			"Answer it briefly and accurately. " +
			"End with a line of the form \"" + FinalAnswerMarker + " <answer>\"."
		plan.UserMessage = "Answer this question:\n\n" + text

	case classify.CategoryCommand:
		plan.Instruction = baseInstruction + " The user selected an instruction. " +
			"Carry it out and answer directly. If a graph is requested, draw it as ASCII art in a code block. " +
			"End with a line of the form \"" + FinalAnswerMarker + " <answer>\"."
		plan.UserMessage = text

	case classify.CategoryLongText:
		plan.Instruction = baseInstruction + " The user selected a long passage. " +
			"Summarize the key points as a short bulleted list, then propose sensible next steps. " +
			"Do not include a Final Answer field."
		plan.UserMessage = "Summarize this passage:\n\n" + text

	case classify.CategoryStatement:
		plan.Instruction = baseInstruction + " The user selected a short statement. " +
			"Summarize it in at most 15 words, then ask how they would like to proceed. " +
			"Do not include a Final Answer field."
		plan.UserMessage = text

	default:
		plan.Instruction = baseInstruction + " Provide a helpful analysis of the selected content."
		plan.UserMessage = text
	}

	return plan
}

// BuildFollowUp builds the prompt for a follow-up turn in an existing thread.
// The follow-up text is classified on its own; prior turns carry the context.
func BuildFollowUp(text string, d classify.Descriptor) Plan {
	plan := Build(text, d, false)
	plan.Instruction += " This is a follow-up in an ongoing conversation; use the earlier turns as context."
	plan.UserMessage = strings.TrimSpace(text)
	return plan
}

// Temperature returns the sampling temperature for a descriptor.
func Temperature(d classify.Descriptor) float64 {
	if d.IsMath {
		return MathTemperature
	}
	return DefaultTemperature
}

func imageInstruction(d classify.Descriptor) string {
	instr := baseInstruction + " The user selected an image. Describe what it shows and extract any text it contains."
	switch {
	case d.IsMath:
		instr += " If the image contains a math problem, solve it step by step showing your work" +
			" and end with a line of the form \"" + FinalAnswerMarker + " <answer>\"."
	case d.IsCode:
		instr += " If the image contains code, identify the language and explain step by step what it does."
	}
	return instr
}
