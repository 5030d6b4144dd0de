// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/jeranaias/glance/internal/thread"
)

const (
	// OpenAIName is the provider id for the OpenAI adapter.
	OpenAIName = "openai"

	// DefaultOpenAIURL is the public API base URL.
	DefaultOpenAIURL = "https://api.openai.com/v1"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream"`
}

// openAIMessage content is either a string or a list of openAIPart.
type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// =============================================================================
// CLIENT
// =============================================================================

// OpenAI is the chat/completions adapter.
type OpenAI struct {
	baseURL      string
	client       *http.Client
	streamClient *http.Client
}

// NewOpenAI creates an adapter for the public OpenAI endpoint.
func NewOpenAI() *OpenAI {
	return &OpenAI{
		baseURL:      DefaultOpenAIURL,
		client:       sharedHTTPClient,
		streamClient: sharedStreamingClient,
	}
}

// WithBaseURL points the adapter at a compatible endpoint.
func (p *OpenAI) WithBaseURL(url string) *OpenAI {
	p.baseURL = strings.TrimRight(url, "/")
	return p
}

// WithHTTPClient replaces both the request and streaming clients.
func (p *OpenAI) WithHTTPClient(c *http.Client) *OpenAI {
	p.client = c
	p.streamClient = c
	return p
}

// Name implements Provider.
func (p *OpenAI) Name() string { return OpenAIName }

// Capabilities implements Provider.
func (p *OpenAI) Capabilities() Capabilities {
	return Capabilities{Streaming: true, Vision: true}
}

// Complete implements Provider.
func (p *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.validate(OpenAIName); err != nil {
		return "", err
	}

	httpReq, err := p.newRequest(ctx, req, false)
	if err != nil {
		return "", err
	}
	resp, err := send(p.client, OpenAIName, httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := readResponse(OpenAIName, resp)
	if err != nil {
		return "", err
	}

	var out openAIResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", malformed(OpenAIName, resp.StatusCode, err)
	}
	if len(out.Choices) == 0 {
		return "", malformed(OpenAIName, resp.StatusCode, errors.New("no choices in response"))
	}
	return out.Choices[0].Message.Content, nil
}

// Stream implements Provider.
func (p *OpenAI) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := req.validate(OpenAIName); err != nil {
		return nil, err
	}

	httpReq, err := p.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return startStream(ctx, p.streamClient, OpenAIName, httpReq, decodeOpenAIFrame)
}

func (p *OpenAI) newRequest(ctx context.Context, req Request, stream bool) (*http.Request, error) {
	body := openAIRequest{
		Model:       req.Model,
		Messages:    openAIMessages(req),
		Temperature: req.Prompt.Temperature,
		MaxTokens:   req.maxTokens(),
		Stream:      stream,
	}

	httpReq, err := newJSONRequest(ctx, p.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential)

	log.Printf("PROVIDER_REQUEST | provider=%s model=%s stream=%t turns=%d image=%t",
		OpenAIName, req.Model, stream, len(req.Prior)+1, req.Image != nil)
	return httpReq, nil
}

// openAIMessages builds: system, prior turns, then the new user turn.
func openAIMessages(req Request) []openAIMessage {
	msgs := make([]openAIMessage, 0, len(req.Prior)+2)
	msgs = append(msgs, openAIMessage{Role: "system", Content: req.Prompt.Instruction})
	for _, turn := range req.Prior {
		msgs = append(msgs, openAIMessage{
			Role:    string(turn.Role),
			Content: openAIContent(turn.Text, turn.Image),
		})
	}
	msgs = append(msgs, openAIMessage{
		Role:    string(thread.RoleUser),
		Content: openAIContent(req.Prompt.UserMessage, req.Image),
	})
	return msgs
}

// openAIContent uses plain text unless an image makes the turn multi-part.
func openAIContent(text string, img *thread.Image) any {
	if img == nil {
		return text
	}
	parts := []openAIPart{}
	if text != "" {
		parts = append(parts, openAIPart{Type: "text", Text: text})
	}
	parts = append(parts, openAIPart{
		Type:     "image_url",
		ImageURL: &openAIImageURL{URL: img.DataURL()},
	})
	return parts
}

// decodeOpenAIFrame handles one "data:" payload of a chat/completions stream.
func decodeOpenAIFrame(data []byte) (string, bool, error) {
	if string(data) == "[DONE]" {
		return "", true, nil
	}

	var chunk openAIStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false, &StreamParseError{Line: string(data), Err: err}
	}
	if chunk.Error != nil {
		return "", false, &ProviderError{
			Provider: OpenAIName,
			Type:     chunk.Error.Type,
			Message:  chunk.Error.Message,
		}
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, false, nil
}
