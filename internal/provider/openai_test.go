// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/glance/internal/classify"
	"github.com/jeranaias/glance/internal/prompt"
	"github.com/jeranaias/glance/internal/thread"
)

func testRequest(text string) Request {
	d := classify.Classify(text)
	return Request{
		Prompt:     prompt.Build(text, d, false),
		Credential: "sk-test-abcdefghijklmnop",
		Model:      "gpt-test",
	}
}

// =============================================================================
// REQUEST SHAPE
// =============================================================================

func TestOpenAI_RequestShape(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test-abcdefghijklmnop", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Final Answer: 4"}}]}`))
	}))
	defer server.Close()

	score := 90
	req := testRequest("2 + 2 = ?")
	req.Prior = []thread.Turn{
		{Role: thread.RoleUser, Text: "what is in this picture", Image: &thread.Image{MediaType: "image/png", Data: []byte("png")}},
		{Role: thread.RoleAssistant, Text: "a cat", Confidence: &score},
	}

	p := NewOpenAI().WithBaseURL(server.URL).WithHTTPClient(server.Client())
	answer, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "Final Answer: 4", answer)

	require.Equal(t, "gpt-test", captured["model"])
	require.Equal(t, float64(0), captured["temperature"])
	require.Equal(t, float64(DefaultMaxTokens), captured["max_tokens"])
	require.Equal(t, false, captured["stream"])

	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 4)

	system := msgs[0].(map[string]any)
	require.Equal(t, "system", system["role"])
	require.Equal(t, req.Prompt.Instruction, system["content"])

	// Image turn is re-encoded as typed parts with a data URL.
	imgTurn := msgs[1].(map[string]any)
	parts := imgTurn["content"].([]any)
	require.Len(t, parts, 2)
	require.Equal(t, "text", parts[0].(map[string]any)["type"])
	imagePart := parts[1].(map[string]any)
	require.Equal(t, "image_url", imagePart["type"])
	require.Equal(t, "data:image/png;base64,cG5n", imagePart["image_url"].(map[string]any)["url"])

	require.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
	last := msgs[3].(map[string]any)
	require.Equal(t, "user", last["role"])
	require.Equal(t, req.Prompt.UserMessage, last["content"])
}

// =============================================================================
// ERRORS
// =============================================================================

func TestOpenAI_MissingCredentialMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	p := NewOpenAI().WithBaseURL(server.URL)
	req := testRequest("hello")
	req.Credential = ""

	_, err := p.Complete(context.Background(), req)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.ErrorIs(t, err, ErrMissingCredential)

	_, err = p.Stream(context.Background(), req)
	require.ErrorIs(t, err, ErrMissingCredential)

	req = testRequest("hello")
	req.Model = " "
	_, err = p.Complete(context.Background(), req)
	require.ErrorIs(t, err, ErrMissingModel)

	require.Zero(t, calls.Load())
}

func TestOpenAI_ErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"parsed_message", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, "Incorrect API key provided"},
		{"unparseable_body", http.StatusBadGateway, `<html>bad gateway</html>`, "request failed: Bad Gateway"},
		{"empty_message", http.StatusInternalServerError, `{"error":{}}`, "request failed: Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewOpenAI().WithBaseURL(server.URL).WithHTTPClient(server.Client())

			_, err := p.Complete(context.Background(), testRequest("hello"))
			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			require.Equal(t, tt.status, pe.Status)
			require.Equal(t, tt.message, pe.Message)

			_, err = p.Stream(context.Background(), testRequest("hello"))
			require.ErrorAs(t, err, &pe)
			require.Equal(t, tt.message, pe.Message)
		})
	}
}

func TestOpenAI_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	}))
	defer server.Close()

	p := NewOpenAI().WithBaseURL(server.URL).WithHTTPClient(server.Client())
	_, err := p.Complete(context.Background(), testRequest("hello"))
	require.ErrorIs(t, err, ErrRateLimited)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 7*time.Second, pe.RetryAfter)
}

func TestOpenAI_MalformedSuccessPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	p := NewOpenAI().WithBaseURL(server.URL).WithHTTPClient(server.Client())
	_, err := p.Complete(context.Background(), testRequest("hello"))
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "malformed response payload", pe.Message)
}

// =============================================================================
// STREAMING
// =============================================================================

func TestOpenAI_StreamWithoutFramesFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer server.Close()

	p := NewOpenAI().WithBaseURL(server.URL).WithHTTPClient(server.Client())
	events, err := p.Stream(context.Background(), testRequest("hello"))
	require.NoError(t, err)

	answer, err := Collect(events)
	require.Empty(t, answer)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "malformed response payload", pe.Message)
}

func TestOpenAI_Stream(t *testing.T) {
	fragments := []string{"Two ", "plus two ", "is four.\n", "Final Answer: 4"}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, true, body["stream"])
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range fragments {
			data, _ := json.Marshal(map[string]any{
				"choices": []any{map[string]any{"delta": map[string]any{"content": f}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
		io.WriteString(w, "data: {garbled\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewOpenAI().WithBaseURL(server.URL).WithHTTPClient(server.Client())
	events, err := p.Stream(context.Background(), testRequest("2 + 2 = ?"))
	require.NoError(t, err)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	assertReassembly(t, got, "Two plus two is four.\nFinal Answer: 4")
	require.Len(t, got, len(fragments)+1)
}

func TestNew_Registry(t *testing.T) {
	p, err := New("OpenAI", "")
	require.NoError(t, err)
	require.Equal(t, OpenAIName, p.Name())

	p, err = New("anthropic", "http://localhost:1234/v1/")
	require.NoError(t, err)
	require.Equal(t, AnthropicName, p.Name())
	require.Equal(t, "http://localhost:1234/v1", p.(*Anthropic).baseURL)

	_, err = New("bogus", "")
	require.True(t, errors.Is(err, ErrUnknownProvider))

	require.Equal(t, []string{"anthropic", "openai"}, Names())
}
