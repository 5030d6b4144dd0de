// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt builds the category-specific instruction and user message
// sent to a provider.
//
// Build is deterministic: the same text, descriptor and image flag always
// produce the same Plan. Exactly one branch applies, chosen by
// classify.Resolve.
//
// # Final Answer Field
//
// Math, fill-blank, question and command prompts ask the model to end with a
// "Final Answer:" line. The confidence estimator looks for that marker.
// Code, long text and statement prompts explicitly do not.
//
// # Temperature
//
// Math is solved at 0.0 for reproducible answers; everything else uses 0.2.
package prompt
