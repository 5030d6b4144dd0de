// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jeranaias/glance/internal/assistant"
	"github.com/jeranaias/glance/internal/classify"
	"github.com/jeranaias/glance/internal/config"
	"github.com/jeranaias/glance/internal/prompt"
	"github.com/jeranaias/glance/internal/provider"
	"github.com/jeranaias/glance/internal/render"
	"github.com/jeranaias/glance/internal/storage"
	"github.com/jeranaias/glance/internal/telemetry"
	"github.com/jeranaias/glance/internal/thread"
	"github.com/jeranaias/glance/internal/util"
)

// MaxCommentRunes bounds a feedback comment.
const MaxCommentRunes = 2000

// ============================================================================
// ANALYZE
// ============================================================================

// normalizeInput fills in an image media type the client left out.
func normalizeInput(in *assistant.Input) {
	if in.Image != nil && in.Image.MediaType == "" && len(in.Image.Data) > 0 {
		in.Image = thread.NewImage(in.Image.Data)
	}
}

// statusFor maps an analysis failure to an HTTP status.
func statusFor(err error) int {
	var cfgErr *provider.ConfigurationError
	var provErr *provider.ProviderError
	switch {
	case thread.IsCallerMisuse(err):
		return http.StatusBadRequest
	case errors.As(err, &cfgErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, provider.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &provErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleAnalyze handles POST /v1/analyze.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var in assistant.Input
	if !s.decodeBody(w, r, &in) {
		return
	}
	normalizeInput(&in)

	res := s.assistant.Analyze(r.Context(), in)
	if !res.Success {
		writeJSON(w, statusFor(res.Err), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// streamFrame is one SSE data payload.
type streamFrame struct {
	Chunk      string  `json:"chunk,omitempty"`
	FullAnswer *string `json:"fullAnswer,omitempty"`
	Confidence *int    `json:"confidence,omitempty"`
	LatencyMs  *int64  `json:"latencyMs,omitempty"`
	ThreadID   string  `json:"threadId,omitempty"`
	Category   string  `json:"category,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func frameFor(ev assistant.Event) streamFrame {
	switch ev.Kind {
	case assistant.EventDone:
		return streamFrame{
			FullAnswer: &ev.FullAnswer,
			Confidence: &ev.Confidence,
			LatencyMs:  &ev.LatencyMs,
			ThreadID:   ev.ThreadID,
			Category:   ev.Category,
		}
	case assistant.EventError:
		return streamFrame{
			Error:      ev.Err.Error(),
			Confidence: &ev.Confidence,
			LatencyMs:  &ev.LatencyMs,
			ThreadID:   ev.ThreadID,
			Category:   ev.Category,
		}
	default:
		return streamFrame{Chunk: ev.Chunk}
	}
}

// handleAnalyzeStream handles POST /v1/analyze/stream.
func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	var in assistant.Input
	if !s.decodeBody(w, r, &in) {
		return
	}
	normalizeInput(&in)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "Streaming not supported")
		return
	}

	events, err := s.assistant.AnalyzeStream(r.Context(), in)
	if err != nil {
		writeJSON(w, statusFor(err), assistant.Result{Success: false, Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		sendFrame(w, flusher, frameFor(ev))
	}
}

// sendFrame writes one SSE data frame.
func sendFrame(w http.ResponseWriter, flusher http.Flusher, frame streamFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// ============================================================================
// CLASSIFY
// ============================================================================

// ClassifyResponse describes how text would be handled.
type ClassifyResponse struct {
	Descriptor  classify.Descriptor `json:"descriptor"`
	Category    string              `json:"category"`
	Temperature float64             `json:"temperature"`
}

// handleClassify handles POST /v1/classify.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	d := classify.Classify(req.Text)
	temp := prompt.Temperature(d)
	if !d.IsMath {
		temp = s.assistant.Config().Temperature
	}
	writeJSON(w, http.StatusOK, ClassifyResponse{
		Descriptor:  d,
		Category:    d.Category().String(),
		Temperature: temp,
	})
}

// ============================================================================
// STATS
// ============================================================================

// StatsResponse is the usage aggregate plus derived values.
type StatsResponse struct {
	telemetry.Record
	SuccessRate float64 `json:"successRate"`
}

// handleStats handles GET /v1/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rec := s.assistant.Tracker().Snapshot()
	writeJSON(w, http.StatusOK, StatsResponse{Record: rec, SuccessRate: rec.SuccessRate()})
}

// handleStatsReset handles DELETE /v1/stats.
func (s *Server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	if err := s.assistant.Tracker().Reset(r.Context()); err != nil {
		log.Printf("USAGE_RESET_ERROR | error=%v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to reset usage")
		return
	}
	log.Printf("USAGE_RESET | client_ip=%s", clientIP(r))
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// THREADS
// ============================================================================

func (s *Server) historyOrError(w http.ResponseWriter) (*storage.HistoryStore, bool) {
	h := s.assistant.History()
	if h == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "History is not enabled")
		return nil, false
	}
	return h, true
}

// handleListThreads handles GET /v1/threads.
func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	h, ok := s.historyOrError(w)
	if !ok {
		return
	}
	list, err := h.List(r.Context())
	if err != nil {
		log.Printf("HISTORY_LIST_ERROR | error=%v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to list threads")
		return
	}
	if list == nil {
		list = []storage.ThreadMeta{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetThread handles GET /v1/threads/{id}.
func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	h, ok := s.historyOrError(w)
	if !ok {
		return
	}

	t, err := h.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrThreadNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Thread not found")
		return
	}
	if err != nil {
		log.Printf("HISTORY_GET_ERROR | error=%v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to load thread")
		return
	}

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		writeJSON(w, http.StatusOK, t)
	case "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(storage.ExportMarkdown(t)))
	case "yaml", "yml":
		data, err := storage.ExportYAML(t)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", "Failed to export thread")
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(data)
	case "html":
		page, err := render.ThreadHTML(t, r.URL.Query().Get("theme"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid_request_error", err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	default:
		writeError(w, http.StatusBadRequest, "invalid_request_error", "format must be json, markdown, yaml or html")
	}
}

// handleDeleteThread handles DELETE /v1/threads/{id}.
func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	h, ok := s.historyOrError(w)
	if !ok {
		return
	}
	err := h.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrThreadNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Thread not found")
		return
	}
	if err != nil {
		log.Printf("HISTORY_DELETE_ERROR | error=%v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to delete thread")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// FEEDBACK
// ============================================================================

// FeedbackRequest is the body of POST /v1/feedback.
type FeedbackRequest struct {
	ThreadID string         `json:"threadId"`
	Rating   storage.Rating `json:"rating"`
	Comment  string         `json:"comment"`
}

// handleAddFeedback handles POST /v1/feedback.
func (s *Server) handleAddFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Feedback is not enabled")
		return
	}

	var req FeedbackRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cfg := s.assistant.Config()
	entry, err := s.feedback.Append(r.Context(), storage.Feedback{
		ThreadID: req.ThreadID,
		Rating:   req.Rating,
		Comment:  util.TruncateRunes(strings.TrimSpace(req.Comment), MaxCommentRunes),
		Provider: cfg.Provider,
		Model:    cfg.ModelFor(cfg.Provider),
	})
	if errors.Is(err, storage.ErrInvalidRating) {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	if err != nil {
		log.Printf("FEEDBACK_ERROR | error=%v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to save feedback")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// handleListFeedback handles GET /v1/feedback.
func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Feedback is not enabled")
		return
	}
	entries, err := s.feedback.List(r.Context())
	if err != nil {
		log.Printf("FEEDBACK_LIST_ERROR | error=%v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to list feedback")
		return
	}
	if entries == nil {
		entries = []storage.Feedback{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ============================================================================
// SETTINGS
// ============================================================================

// SettingsResponse is the settings record as shown to the settings page.
// SECURITY: Credentials are redacted.
type SettingsResponse struct {
	Provider    string            `json:"provider"`
	Model       string            `json:"model"`
	Temperature float64           `json:"temperature"`
	Credentials map[string]string `json:"credentials"`
	Providers   []string          `json:"providers"`
}

func settingsView(cfg *config.Config) SettingsResponse {
	creds := make(map[string]string)
	for _, name := range provider.Names() {
		if key := cfg.Credential(name); key != "" {
			creds[name] = util.RedactKey(key)
		}
	}
	return SettingsResponse{
		Provider:    cfg.Provider,
		Model:       cfg.ModelFor(cfg.Provider),
		Temperature: cfg.Temperature,
		Credentials: creds,
		Providers:   provider.Names(),
	}
}

// handleGetSettings handles GET /v1/settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsView(s.assistant.Config()))
}

// handlePutSettings handles PUT /v1/settings.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Settings storage is not enabled")
		return
	}

	var update config.Settings
	if !s.decodeBody(w, r, &update) {
		return
	}

	stored, _, err := config.LoadSettings(r.Context(), s.store)
	if err != nil {
		log.Printf("SETTINGS_LOAD_ERROR | error=%v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to load settings")
		return
	}
	merged := stored.Merge(update)

	cfg := s.assistant.Config().Clone()
	cfg.ApplySettings(merged)
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	if err := config.SaveSettings(r.Context(), s.store, merged); err != nil {
		log.Printf("SETTINGS_SAVE_ERROR | error=%v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to save settings")
		return
	}
	s.assistant.SetConfig(cfg)

	log.Printf("SETTINGS_UPDATED | provider=%s model=%s", cfg.Provider, cfg.ModelFor(cfg.Provider))
	writeJSON(w, http.StatusOK, settingsView(cfg))
}

// ============================================================================
// HEALTH
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Configured bool   `json:"configured"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cfg := s.assistant.Config()
	health := HealthResponse{
		Status:     "ok",
		Version:    Version,
		Provider:   cfg.Provider,
		Model:      cfg.ModelFor(cfg.Provider),
		Configured: cfg.Credential(cfg.Provider) != "",
	}
	if !health.Configured {
		health.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, health)
}
