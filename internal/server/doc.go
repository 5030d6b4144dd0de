// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the glance assistant over HTTP for the browser
// extension, popup and settings pages.
//
// # Endpoints
//
//   - POST   /v1/analyze         - Analyze selected content, wait for the answer
//   - POST   /v1/analyze/stream  - Analyze with Server-Sent Events
//   - POST   /v1/classify        - Classify text without calling a provider
//   - GET    /v1/stats           - Usage aggregate
//   - DELETE /v1/stats           - Reset usage
//   - GET    /v1/threads         - Conversation history, most recent first
//   - GET    /v1/threads/{id}    - One thread (?format=json|markdown|yaml|html)
//   - DELETE /v1/threads/{id}    - Remove a thread from history
//   - POST   /v1/feedback        - Rate an answer
//   - GET    /v1/feedback        - Feedback list
//   - GET    /v1/settings        - Settings record with redacted keys
//   - PUT    /v1/settings        - Update provider, model, keys, temperature
//   - GET    /health             - Health check
//
// # Streaming
//
// /v1/analyze/stream sends one `data: {"chunk":"..."}` frame per fragment,
// then exactly one terminal frame:
//
//	data: {"fullAnswer":"...","confidence":90,"latencyMs":812,"threadId":"..."}
//	data: {"error":"...","confidence":0,"latencyMs":120}
//
// A client that disconnects ends the round with no terminal frame.
//
// # Middleware
//
//   - Request IDs, real client IP and panic recovery from chi
//   - Per-client token bucket rate limiting (golang.org/x/time/rate)
//   - CORS for configured origins (chrome-extension://, moz-extension://)
//   - Security headers and request logging
//
// # Usage
//
//	srv := server.New(cfg.Server, asst, store)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
