// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/glance/internal/assistant"
	"github.com/jeranaias/glance/internal/config"
	"github.com/jeranaias/glance/internal/provider"
	"github.com/jeranaias/glance/internal/storage"
	"github.com/jeranaias/glance/internal/telemetry"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fakeProvider struct {
	mu     sync.Mutex
	calls  int
	stream func(ctx context.Context, req provider.Request) (<-chan provider.Event, error)
}

func (f *fakeProvider) Name() string { return "openai" }

func (f *fakeProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true, Vision: true}
}

func (f *fakeProvider) Complete(ctx context.Context, req provider.Request) (string, error) {
	events, err := f.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	return provider.Collect(events)
}

func (f *fakeProvider) Stream(ctx context.Context, req provider.Request) (<-chan provider.Event, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.stream(ctx, req)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func answering(answer string) func(context.Context, provider.Request) (<-chan provider.Event, error) {
	return func(context.Context, provider.Request) (<-chan provider.Event, error) {
		ch := make(chan provider.Event, 3)
		ch <- provider.Event{Kind: provider.EventChunk, Text: answer[:len(answer)/2]}
		ch <- provider.Event{Kind: provider.EventChunk, Text: answer[len(answer)/2:]}
		ch <- provider.Event{Kind: provider.EventDone, Text: answer}
		close(ch)
		return ch, nil
	}
}

func failing(err error) func(context.Context, provider.Request) (<-chan provider.Event, error) {
	return func(context.Context, provider.Request) (<-chan provider.Event, error) {
		return nil, err
	}
}

type testEnv struct {
	srv   *Server
	fake  *fakeProvider
	a     *assistant.Assistant
	store storage.Store
}

func newTestEnv(t *testing.T, stream func(context.Context, provider.Request) (<-chan provider.Event, error), mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.OpenAI.APIKey = "sk-test-1234567890"
	cfg.Server.RateLimit = 0
	for _, m := range mutate {
		m(cfg)
	}

	store := storage.NewMemoryStore()
	fake := &fakeProvider{stream: stream}
	a := assistant.New(cfg).
		WithHistory(storage.NewHistoryStore(store)).
		WithTracker(telemetry.NewTracker(store)).
		WithProviderFactory(func(name, baseURL string) (provider.Provider, error) {
			return fake, nil
		})

	return &testEnv{
		srv:   New(cfg.Server, a, store),
		fake:  fake,
		a:     a,
		store: store,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t, answering("ok"))

	w := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	health := decode[HealthResponse](t, w)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, Version, health.Version)
	assert.Equal(t, "openai", health.Provider)
	assert.True(t, health.Configured)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestHealth_Unconfigured(t *testing.T) {
	env := newTestEnv(t, answering("ok"), func(c *config.Config) { c.OpenAI.APIKey = "" })

	health := decode[HealthResponse](t, env.do(t, http.MethodGet, "/health", ""))
	assert.Equal(t, "degraded", health.Status)
	assert.False(t, health.Configured)
}

// =============================================================================
// ANALYZE
// =============================================================================

func TestAnalyze_Success(t *testing.T) {
	env := newTestEnv(t, answering("Steps...\nFinal answer: 4"))

	w := env.do(t, http.MethodPost, "/v1/analyze", `{"text":"2+2=?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[assistant.Result](t, w)
	assert.True(t, res.Success)
	assert.Equal(t, "Steps...\nFinal answer: 4", res.Answer)
	assert.Equal(t, "math", res.Category)
	assert.NotEmpty(t, res.ThreadID)
	assert.Greater(t, res.Confidence, 0)
}

func TestAnalyze_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		env    func(t *testing.T) *testEnv
		body   string
		status int
	}{
		{
			name:   "empty input",
			env:    func(t *testing.T) *testEnv { return newTestEnv(t, answering("x")) },
			body:   `{"text":"   "}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "follow-up without thread",
			env:    func(t *testing.T) *testEnv { return newTestEnv(t, answering("x")) },
			body:   `{"text":"and then?","followUp":true}`,
			status: http.StatusBadRequest,
		},
		{
			name: "missing credential",
			env: func(t *testing.T) *testEnv {
				return newTestEnv(t, failing(&provider.ConfigurationError{Provider: "openai", Err: provider.ErrMissingCredential}))
			},
			body:   `{"text":"hello there"}`,
			status: http.StatusUnprocessableEntity,
		},
		{
			name: "provider failure",
			env: func(t *testing.T) *testEnv {
				return newTestEnv(t, failing(&provider.ProviderError{Provider: "openai", Status: 500, Message: "boom"}))
			},
			body:   `{"text":"hello there"}`,
			status: http.StatusBadGateway,
		},
		{
			name: "provider rate limited",
			env: func(t *testing.T) *testEnv {
				return newTestEnv(t, failing(&provider.ProviderError{Provider: "openai", Status: 429, Message: "slow down"}))
			},
			body:   `{"text":"hello there"}`,
			status: http.StatusTooManyRequests,
		},
		{
			name:   "malformed body",
			env:    func(t *testing.T) *testEnv { return newTestEnv(t, answering("x")) },
			body:   `{"text":`,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.env(t).do(t, http.MethodPost, "/v1/analyze", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestAnalyze_FailureBodyIsResult(t *testing.T) {
	env := newTestEnv(t, failing(&provider.ProviderError{Provider: "openai", Status: 500, Message: "boom"}))

	w := env.do(t, http.MethodPost, "/v1/analyze", `{"text":"hello there"}`)
	res := decode[assistant.Result](t, w)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
	assert.Equal(t, 0, res.Confidence)
}

func TestAnalyze_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, answering("x"), func(c *config.Config) { c.Server.MaxBodyBytes = 32 })

	w := env.do(t, http.MethodPost, "/v1/analyze", `{"text":"`+strings.Repeat("a", 100)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAnalyze_ImageSniffsMediaType(t *testing.T) {
	var got string
	env := newTestEnv(t, func(ctx context.Context, req provider.Request) (<-chan provider.Event, error) {
		if req.Image != nil {
			got = req.Image.MediaType
		}
		return answering("a chart")(ctx, req)
	})

	png := []byte("\x89PNG\r\n\x1a\n0000000000000000")
	body, err := json.Marshal(map[string]any{"image": map[string]any{"data": png}})
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/v1/analyze", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", got)
	assert.Equal(t, "image", decode[assistant.Result](t, w).Category)
}

// =============================================================================
// STREAMING
// =============================================================================

func readFrames(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var frames []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f))
		frames = append(frames, f)
	}
	return frames
}

func TestAnalyzeStream_ChunksThenDone(t *testing.T) {
	env := newTestEnv(t, answering("The capital is Paris."))

	w := env.do(t, http.MethodPost, "/v1/analyze/stream", `{"text":"What is the capital of France?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := readFrames(t, w.Body.Bytes())
	require.Len(t, frames, 3)

	var sb strings.Builder
	for _, f := range frames[:2] {
		sb.WriteString(f["chunk"].(string))
	}
	assert.Equal(t, "The capital is Paris.", sb.String())

	last := frames[2]
	assert.Equal(t, "The capital is Paris.", last["fullAnswer"])
	assert.Equal(t, "question", last["category"])
	assert.NotEmpty(t, last["threadId"])
	assert.Contains(t, last, "confidence")
	assert.Contains(t, last, "latencyMs")
}

func TestAnalyzeStream_ErrorFrame(t *testing.T) {
	env := newTestEnv(t, failing(&provider.ProviderError{Provider: "openai", Status: 500, Message: "boom"}))

	w := env.do(t, http.MethodPost, "/v1/analyze/stream", `{"text":"hello there"}`)
	require.Equal(t, http.StatusOK, w.Code)

	frames := readFrames(t, w.Body.Bytes())
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0]["error"], "boom")
	assert.EqualValues(t, 0, frames[0]["confidence"])
	assert.NotContains(t, frames[0], "fullAnswer")
}

func TestAnalyzeStream_MisuseIsPlainJSON(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	w := env.do(t, http.MethodPost, "/v1/analyze/stream", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.False(t, decode[assistant.Result](t, w).Success)
}

// =============================================================================
// CLASSIFY
// =============================================================================

func TestClassify(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	w := env.do(t, http.MethodPost, "/v1/classify", `{"text":"Solve for x: 2x + 3 = 7"}`)
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[ClassifyResponse](t, w)
	assert.True(t, res.Descriptor.IsMath)
	assert.Equal(t, "math", res.Category)
	assert.Equal(t, 0.0, res.Temperature)

	res = decode[ClassifyResponse](t, env.do(t, http.MethodPost, "/v1/classify", `{"text":"Tell me about owls"}`))
	assert.False(t, res.Descriptor.IsMath)
	assert.Equal(t, 0.2, res.Temperature)
	assert.Equal(t, 0, env.fake.callCount())
}

// =============================================================================
// STATS
// =============================================================================

func TestStatsAndReset(t *testing.T) {
	env := newTestEnv(t, answering("Final answer: 4"))

	env.do(t, http.MethodPost, "/v1/analyze", `{"text":"2+2=?"}`)
	env.do(t, http.MethodPost, "/v1/analyze", `{"text":"3+3=?"}`)

	stats := decode[StatsResponse](t, env.do(t, http.MethodGet, "/v1/stats", ""))
	assert.Equal(t, 2, stats.TotalRequests)
	assert.Equal(t, 2, stats.SuccessfulRequests)
	assert.Equal(t, 2, stats.ContentTypeUsage["math"])
	assert.Equal(t, 1.0, stats.SuccessRate)

	w := env.do(t, http.MethodDelete, "/v1/stats", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	stats = decode[StatsResponse](t, env.do(t, http.MethodGet, "/v1/stats", ""))
	assert.Equal(t, 0, stats.TotalRequests)
	assert.Empty(t, stats.History)
}

// =============================================================================
// THREADS
// =============================================================================

func TestThreads(t *testing.T) {
	env := newTestEnv(t, answering("It is blue."))

	res := decode[assistant.Result](t, env.do(t, http.MethodPost, "/v1/analyze", `{"text":"What colour is the sky?"}`))
	require.True(t, res.Success)

	list := decode[[]storage.ThreadMeta](t, env.do(t, http.MethodGet, "/v1/threads", ""))
	require.Len(t, list, 1)
	assert.Equal(t, res.ThreadID, list[0].ID)

	w := env.do(t, http.MethodGet, "/v1/threads/"+res.ThreadID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "It is blue.")

	w = env.do(t, http.MethodGet, "/v1/threads/"+res.ThreadID+"?format=markdown", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Body.String(), "What colour is the sky?")

	w = env.do(t, http.MethodGet, "/v1/threads/"+res.ThreadID+"?format=yaml", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "It is blue.")

	w = env.do(t, http.MethodGet, "/v1/threads/"+res.ThreadID+"?format=html", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<!DOCTYPE html>")

	w = env.do(t, http.MethodGet, "/v1/threads/"+res.ThreadID+"?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/v1/threads/"+res.ThreadID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/v1/threads/"+res.ThreadID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/v1/threads/"+res.ThreadID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestThreads_FollowUpByID(t *testing.T) {
	env := newTestEnv(t, answering("Because of scattering."))

	first := decode[assistant.Result](t, env.do(t, http.MethodPost, "/v1/analyze", `{"text":"Why is the sky blue?"}`))
	require.True(t, first.Success)

	body := `{"text":"Explain more","followUp":true,"threadId":"` + first.ThreadID + `"}`
	second := decode[assistant.Result](t, env.do(t, http.MethodPost, "/v1/analyze", body))
	require.True(t, second.Success)
	assert.Equal(t, first.ThreadID, second.ThreadID)
}

// =============================================================================
// FEEDBACK
// =============================================================================

func TestFeedback(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	w := env.do(t, http.MethodPost, "/v1/feedback", `{"threadId":"t1","rating":"up","comment":"  `+strings.Repeat("é", MaxCommentRunes+10)+`  "}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	entry := decode[storage.Feedback](t, w)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "openai", entry.Provider)
	assert.Equal(t, config.DefaultOpenAIModel, entry.Model)
	assert.LessOrEqual(t, len([]rune(entry.Comment)), MaxCommentRunes)

	w = env.do(t, http.MethodPost, "/v1/feedback", `{"rating":"meh"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	list := decode[[]storage.Feedback](t, env.do(t, http.MethodGet, "/v1/feedback", ""))
	require.Len(t, list, 1)
	assert.Equal(t, storage.Rating("up"), list[0].Rating)
}

func TestFeedback_NoStore(t *testing.T) {
	cfg := config.Default()
	srv := New(cfg.Server, assistant.New(cfg), nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/feedback", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_GetRedacts(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	w := env.do(t, http.MethodGet, "/v1/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-test-1234567890")

	s := decode[SettingsResponse](t, w)
	assert.Equal(t, "openai", s.Provider)
	assert.Contains(t, s.Credentials, "openai")
	assert.ElementsMatch(t, provider.Names(), s.Providers)
}

func TestSettings_PutPersistsAndApplies(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	w := env.do(t, http.MethodPut, "/v1/settings",
		`{"provider":"Anthropic","credentials":{"anthropic":"sk-ant-abcdef123456"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "anthropic", decode[SettingsResponse](t, w).Provider)

	assert.Equal(t, "anthropic", env.a.Config().Provider)
	assert.Equal(t, "sk-ant-abcdef123456", env.a.Config().Credential("anthropic"))

	stored, ok, err := config.LoadSettings(context.Background(), env.store)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "anthropic", stored.Provider)
	assert.Equal(t, "sk-ant-abcdef123456", stored.Credentials["anthropic"])

	// A later partial update keeps the stored credential.
	w = env.do(t, http.MethodPut, "/v1/settings", `{"model":"claude-3-haiku"}`)
	require.Equal(t, http.StatusOK, w.Code)
	stored, _, err = config.LoadSettings(context.Background(), env.store)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-abcdef123456", stored.Credentials["anthropic"])
	assert.Equal(t, "claude-3-haiku", stored.Model)
}

func TestSettings_PutRejectsInvalid(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	w := env.do(t, http.MethodPut, "/v1/settings", `{"provider":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "openai", env.a.Config().Provider)

	_, ok, err := config.LoadSettings(context.Background(), env.store)
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, answering("x"), func(c *config.Config) {
		c.Server.RateLimit = 0.001
		c.Server.RateBurst = 1
	})

	w := env.do(t, http.MethodGet, "/v1/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/v1/stats", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Health is outside the limited group.
	w = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	r := httptest.NewRequest(http.MethodOptions, "/v1/analyze", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodOptions, "/v1/analyze", nil)
	r.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, r)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
