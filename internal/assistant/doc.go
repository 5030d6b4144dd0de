// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assistant runs one analysis round end to end.
//
// A round classifies the selected content, builds the category prompt,
// asks the configured provider, scores the answer, and records the outcome
// in the thread, the history and the usage aggregate:
//
//	classify -> prompt -> provider -> confidence -> telemetry
//
// Analyze makes one non-streaming call; AnalyzeStream relays fragments.
//
// with the thread manager wrapping the cycle.
//
// # Key Types
//
//   - Assistant: Orchestrator holding config, history and usage tracker
//   - Input: Selected text or image, optionally a follow-up
//   - Result: Outcome of a non-streaming analysis
//   - Event: One item of a streaming analysis
//
// # Usage
//
//	a := assistant.New(cfg).WithHistory(history).WithTracker(tracker)
//	res := a.Analyze(ctx, assistant.Input{Text: "solve 2x + 3 = 7"})
//
//	events, err := a.AnalyzeStream(ctx, assistant.Input{Text: "why?", FollowUp: true})
//	for ev := range events {
//	    ...
//	}
//
// # Errors
//
// Requests rejected before any provider call (empty input, follow-up with
// no thread, follow-up over the word limit, follow-up while the thread's
// previous round is still running) return a
// *thread.CallerMisuseError. Every other failure is reported as exactly one
// terminal event, recorded as a failed request, with confidence 0.
package assistant
