// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/glance/internal/prompt"
	"github.com/jeranaias/glance/internal/thread"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultMaxTokens caps every completion.
	DefaultMaxTokens = 2000

	// DefaultTimeout applies to non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize bounds non-streaming response bodies.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024

	userAgent = "glance/1.0"
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	sharedTransport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	sharedHTTPClient = &http.Client{
		Transport: sharedTransport,
		Timeout:   DefaultTimeout,
	}

	// No timeout for streaming - controlled via context.
	sharedStreamingClient = &http.Client{
		Transport: sharedTransport,
	}
)

// =============================================================================
// INTERFACE
// =============================================================================

// Capabilities describes what an adapter supports.
type Capabilities struct {
	Streaming bool
	Vision    bool
}

// Provider is a remote LLM service adapter.
type Provider interface {
	// Name returns the provider id used in settings and usage statistics.
	Name() string

	// Capabilities reports streaming and vision support.
	Capabilities() Capabilities

	// Complete sends the request and returns the whole answer.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream sends the request and relays the answer as it arrives.
	// Errors before the response starts are returned directly; later
	// failures arrive as a single EventError.
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}

// Request is everything an adapter needs for one call.
type Request struct {
	Prompt     prompt.Plan
	Image      *thread.Image
	Prior      []thread.Turn // excludes the in-flight user turn
	Credential string
	Model      string
	MaxTokens  int
}

func (r Request) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return DefaultMaxTokens
}

// validate fails fast before any network call.
func (r Request) validate(provider string) error {
	if strings.TrimSpace(r.Credential) == "" {
		return &ConfigurationError{Provider: provider, Err: ErrMissingCredential}
	}
	if strings.TrimSpace(r.Model) == "" {
		return &ConfigurationError{Provider: provider, Err: ErrMissingModel}
	}
	return nil
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind distinguishes stream events.
type EventKind int

const (
	// EventChunk carries one text fragment.
	EventChunk EventKind = iota
	// EventDone is terminal and carries the full assembled answer.
	EventDone
	// EventError is terminal and carries the failure.
	EventError
)

// Event is one item on a stream channel.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// IsTerminal reports whether no further events follow.
func (e Event) IsTerminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// Collect drains a stream and returns the assembled answer.
func Collect(events <-chan Event) (string, error) {
	var sb strings.Builder
	for ev := range events {
		switch ev.Kind {
		case EventChunk:
			sb.WriteString(ev.Text)
		case EventDone:
			return ev.Text, nil
		case EventError:
			return sb.String(), ev.Err
		}
	}
	return sb.String(), context.Canceled
}

// =============================================================================
// REGISTRY
// =============================================================================

// Names returns the supported provider ids.
func Names() []string {
	names := []string{OpenAIName, AnthropicName}
	sort.Strings(names)
	return names
}

// New returns the adapter registered under name.
// An empty baseURL selects the provider's public endpoint.
func New(name, baseURL string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case OpenAIName:
		p := NewOpenAI()
		if baseURL != "" {
			p = p.WithBaseURL(baseURL)
		}
		return p, nil
	case AnthropicName:
		p := NewAnthropic()
		if baseURL != "" {
			p = p.WithBaseURL(baseURL)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// newJSONRequest builds a POST with a JSON body.
func newJSONRequest(ctx context.Context, url string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// send performs req and converts transport failures and non-2xx responses
// into ProviderErrors. On success the caller owns resp.Body.
// CLOUD: Secure logging - no headers or bodies are logged.
func send(client *http.Client, provider string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Printf("PROVIDER_ERROR | provider=%s error=%q", provider, err.Error())
		return nil, &ProviderError{Provider: provider, Message: "request failed", Err: err}
	}

	log.Printf("PROVIDER_RESPONSE | provider=%s status=%d duration=%v", provider, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return nil, errorFromResponse(provider, resp, body)
	}
	return resp, nil
}

// readResponse reads a body with the size limit applied.
func readResponse(provider string, resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, &ProviderError{Provider: provider, Status: resp.StatusCode, Message: "failed to read response", Err: err}
	}
	if len(body) > MaxResponseSize {
		return nil, &ProviderError{Provider: provider, Status: resp.StatusCode, Message: "response exceeded maximum size"}
	}
	return body, nil
}

// malformed reports a 2xx response whose payload has no answer.
func malformed(provider string, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Status: status, Message: "malformed response payload", Err: err}
}
