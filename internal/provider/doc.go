// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider sends built prompts to remote LLM services.
//
// Two adapters share the Provider interface:
//
//   - OpenAI: chat/completions API. The system prompt is the first message,
//     images are image_url content parts, and streams end with "data: [DONE]".
//   - Anthropic: messages API. The system prompt is a top-level field, images
//     are base64 source blocks, and streams end with a message_stop event.
//
// # Streaming
//
// Stream returns a channel of Events. Zero or more EventChunk events carry
// text fragments; exactly one EventDone or EventError follows and the channel
// is closed. The fragments of a completed stream concatenate to the EventDone
// text. Malformed frames are skipped. Cancelling the context stops the relay
// and closes the channel without a terminal event.
//
// # Errors
//
//   - ConfigurationError: missing credential or model; no request is sent
//   - ProviderError: non-2xx status, transport failure or malformed payload
//
// API keys are never logged.
package provider
