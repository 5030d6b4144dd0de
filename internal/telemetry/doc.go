// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides usage tracking for glance.
//
// Every provider request, successful or not, is recorded into a running
// aggregate: request counters, average latency over successful requests,
// per-provider, per-model and per-content-type counts, and a bounded
// history of the last 100 outcomes.
//
// # Key Types
//
//   - Record: the aggregate, a plain value with a pure Apply method
//   - Event: one request outcome
//   - Tracker: serializes updates and persists the aggregate to a storage.Store
//     in the background
//
// # Usage
//
//	tracker := telemetry.NewTracker(store)
//	tracker.Load(ctx)
//	tracker.Record(telemetry.Event{
//	    Provider:    "openai",
//	    Model:       "gpt-4o-mini",
//	    Success:     true,
//	    Latency:     840 * time.Millisecond,
//	    ContentType: "math",
//	})
//
// # Privacy
//
// Usage tracking is local-only and does not transmit any data.
// Query content is never stored - only counts, latencies and error messages.
package telemetry
