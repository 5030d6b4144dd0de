// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package classify assigns a content category to user-selected text.
//
// Classification is a fixed set of heuristic pattern tests, not a trained
// model. The same text always yields the same Descriptor.
//
// # Key Types
//
//   - Descriptor: word count plus independent content flags
//   - Category: the single effective category after priority resolution
//
// # Priority
//
// Flags may overlap ("solve: function f(x) { return x+1; }" is both math and
// code). Resolve picks exactly one Category in this order:
//
//	image > math > code > fill-blank > question > command > long text > statement > general
//
// # Usage
//
//	d := classify.Classify(selection)
//	switch d.Category() {
//	case classify.CategoryMath:
//	    // deterministic step-by-step solve
//	case classify.CategoryCode:
//	    // explain the snippet
//	}
package classify
