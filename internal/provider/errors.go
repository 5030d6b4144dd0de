// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrMissingCredential indicates no API key was supplied.
	ErrMissingCredential = errors.New("missing API credential")

	// ErrMissingModel indicates no model was selected.
	ErrMissingModel = errors.New("missing model selection")

	// ErrUnknownProvider indicates a provider name with no adapter.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrRateLimited matches any ProviderError with HTTP 429.
	ErrRateLimited = errors.New("rate limited")
)

// =============================================================================
// CONFIGURATION ERROR
// =============================================================================

// ConfigurationError is returned before any network call when the request
// cannot be sent as configured. It is never retried.
type ConfigurationError struct {
	Provider string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// =============================================================================
// PROVIDER ERROR
// =============================================================================

// ProviderError is a failure reported by, or while talking to, the provider.
type ProviderError struct {
	Provider   string
	Status     int    // HTTP status, 0 for transport failures
	Type       string // provider error type when reported
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s error (HTTP %d): %s", e.Provider, e.Status, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, ErrRateLimited) for 429 responses.
func (e *ProviderError) Is(target error) bool {
	return target == ErrRateLimited && e.Status == http.StatusTooManyRequests
}

// StreamParseError describes one frame that could not be decoded.
// It is recovered inside the stream loop and never returned to callers.
type StreamParseError struct {
	Line string
	Err  error
}

func (e *StreamParseError) Error() string {
	return fmt.Sprintf("malformed stream frame: %v", e.Err)
}

func (e *StreamParseError) Unwrap() error {
	return e.Err
}

// apiErrorResponse covers both providers' error bodies:
// {"error": {"type": "...", "message": "..."}}.
type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// errorFromResponse converts a non-2xx response into a ProviderError,
// falling back to a generic message when the body cannot be parsed.
func errorFromResponse(provider string, resp *http.Response, body []byte) *ProviderError {
	pe := &ProviderError{
		Provider: provider,
		Status:   resp.StatusCode,
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		pe.Type = apiErr.Error.Type
		pe.Message = apiErr.Error.Message
	} else {
		pe.Message = genericMessage(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		pe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return pe
}

func genericMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return "request failed: " + text
	}
	return "request failed"
}

// parseRetryAfter accepts either delay-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
