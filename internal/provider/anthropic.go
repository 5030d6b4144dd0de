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
	// AnthropicName is the provider id for the Anthropic adapter.
	AnthropicName = "anthropic"

	// DefaultAnthropicURL is the public API base URL.
	DefaultAnthropicURL = "https://api.anthropic.com/v1"

	// AnthropicVersion is sent in the anthropic-version header.
	AnthropicVersion = "2023-06-01"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Anthropic is the messages API adapter.
type Anthropic struct {
	baseURL      string
	version      string
	client       *http.Client
	streamClient *http.Client
}

// NewAnthropic creates an adapter for the public Anthropic endpoint.
func NewAnthropic() *Anthropic {
	return &Anthropic{
		baseURL:      DefaultAnthropicURL,
		version:      AnthropicVersion,
		client:       sharedHTTPClient,
		streamClient: sharedStreamingClient,
	}
}

// WithBaseURL points the adapter at a compatible endpoint.
func (p *Anthropic) WithBaseURL(url string) *Anthropic {
	p.baseURL = strings.TrimRight(url, "/")
	return p
}

// WithHTTPClient replaces both the request and streaming clients.
func (p *Anthropic) WithHTTPClient(c *http.Client) *Anthropic {
	p.client = c
	p.streamClient = c
	return p
}

// Name implements Provider.
func (p *Anthropic) Name() string { return AnthropicName }

// Capabilities implements Provider.
func (p *Anthropic) Capabilities() Capabilities {
	return Capabilities{Streaming: true, Vision: true}
}

// Complete implements Provider.
func (p *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.validate(AnthropicName); err != nil {
		return "", err
	}

	httpReq, err := p.newRequest(ctx, req, false)
	if err != nil {
		return "", err
	}
	resp, err := send(p.client, AnthropicName, httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := readResponse(AnthropicName, resp)
	if err != nil {
		return "", err
	}

	var out anthropicResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", malformed(AnthropicName, resp.StatusCode, err)
	}
	if len(out.Content) == 0 {
		return "", malformed(AnthropicName, resp.StatusCode, errors.New("no content in response"))
	}
	return out.Content[0].Text, nil
}

// Stream implements Provider.
func (p *Anthropic) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := req.validate(AnthropicName); err != nil {
		return nil, err
	}

	httpReq, err := p.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return startStream(ctx, p.streamClient, AnthropicName, httpReq, decodeAnthropicFrame)
}

func (p *Anthropic) newRequest(ctx context.Context, req Request, stream bool) (*http.Request, error) {
	body := anthropicRequest{
		Model:       req.Model,
		System:      req.Prompt.Instruction,
		Messages:    anthropicMessages(req),
		Temperature: req.Prompt.Temperature,
		MaxTokens:   req.maxTokens(),
		Stream:      stream,
	}

	httpReq, err := newJSONRequest(ctx, p.baseURL+"/messages", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", req.Credential)
	httpReq.Header.Set("anthropic-version", p.version)

	log.Printf("PROVIDER_REQUEST | provider=%s model=%s stream=%t turns=%d image=%t",
		AnthropicName, req.Model, stream, len(req.Prior)+1, req.Image != nil)
	return httpReq, nil
}

// anthropicMessages flattens prior turns and the new user turn. Consecutive
// turns with the same role (a failed round leaves user,user) are merged
// because the API requires alternating roles.
func anthropicMessages(req Request) []anthropicMessage {
	msgs := make([]anthropicMessage, 0, len(req.Prior)+1)
	add := func(role thread.Role, text string, img *thread.Image) {
		blocks := anthropicBlocks(text, img)
		if n := len(msgs); n > 0 && msgs[n-1].Role == string(role) {
			msgs[n-1].Content = append(msgs[n-1].Content, blocks...)
			return
		}
		msgs = append(msgs, anthropicMessage{Role: string(role), Content: blocks})
	}

	for _, turn := range req.Prior {
		add(turn.Role, turn.Text, turn.Image)
	}
	add(thread.RoleUser, req.Prompt.UserMessage, req.Image)
	return msgs
}

// anthropicBlocks puts the image before the text, as the API recommends.
func anthropicBlocks(text string, img *thread.Image) []anthropicBlock {
	var blocks []anthropicBlock
	if img != nil {
		blocks = append(blocks, anthropicBlock{
			Type: "image",
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: img.MediaType,
				Data:      img.Base64(),
			},
		})
	}
	if text != "" || len(blocks) == 0 {
		blocks = append(blocks, anthropicBlock{Type: "text", Text: text})
	}
	return blocks
}

// decodeAnthropicFrame handles one "data:" payload of a messages stream.
func decodeAnthropicFrame(data []byte) (string, bool, error) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", false, &StreamParseError{Line: string(data), Err: err}
	}

	switch ev.Type {
	case "content_block_delta":
		return ev.Delta.Text, false, nil
	case "message_stop":
		return "", true, nil
	case "error":
		msg := ev.Error.Message
		if msg == "" {
			msg = "stream error"
		}
		return "", false, &ProviderError{
			Provider: AnthropicName,
			Type:     ev.Error.Type,
			Message:  msg,
		}
	default:
		// message_start, content_block_start/stop, message_delta, ping
		return "", false, nil
	}
}
