// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jeranaias/glance/internal/assistant"
	"github.com/jeranaias/glance/internal/config"
	"github.com/jeranaias/glance/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// Version is the API version reported by /health.
	Version = "1.0.0"

	// DefaultMaxBodyBytes bounds request bodies when the config leaves it unset.
	DefaultMaxBodyBytes = 8 << 20
)

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP API in front of an Assistant.
type Server struct {
	cfg       config.ServerConfig
	assistant *assistant.Assistant
	store     storage.Store
	feedback  *storage.FeedbackLog

	router chi.Router
	server *http.Server
}

// New creates a server. store holds settings and feedback and may be nil,
// in which case those endpoints answer 503.
func New(cfg config.ServerConfig, a *assistant.Assistant, store storage.Store) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		cfg:       cfg,
		assistant: a,
		store:     store,
	}
	if store != nil {
		s.feedback = storage.NewFeedbackLog(store)
	}

	s.router = s.routes()
	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// routes configures middleware and all HTTP routes.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(log.Default()))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware())

	cors := DefaultCORSConfig()
	cors.AllowedOrigins = append(cors.AllowedOrigins, s.cfg.AllowedOrigins...)
	r.Use(CORSMiddleware(cors))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(RateLimitMiddleware(NewRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst)))
		}

		r.Post("/analyze", s.handleAnalyze)
		r.Post("/analyze/stream", s.handleAnalyzeStream)
		r.Post("/classify", s.handleClassify)

		r.Get("/stats", s.handleStats)
		r.Delete("/stats", s.handleStatsReset)

		r.Get("/threads", s.handleListThreads)
		r.Get("/threads/{id}", s.handleGetThread)
		r.Delete("/threads/{id}", s.handleDeleteThread)

		r.Post("/feedback", s.handleAddFeedback)
		r.Get("/feedback", s.handleListFeedback)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})

	return r
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and blocks until shutdown.
func (s *Server) Start() error {
	writeTimeout := time.Duration(s.cfg.RequestTimeoutSecs) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 120 * time.Second
	}

	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", s.cfg.Addr, Version)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// errorBody is the JSON shape of every non-analysis error.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("RESPONSE_ENCODE_ERROR | error=%v", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, errType, message string) {
	var body errorBody
	body.Error.Message = message
	body.Error.Type = errType
	body.Error.Code = status
	writeJSON(w, status, body)
}

// decodeBody decodes a size-limited JSON body into v.
// It writes the error response itself and reports whether decoding worked.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "Request body too large")
			return false
		}
		log.Printf("INVALID_REQUEST_BODY | path=%s error=%v", r.URL.Path, err)
		writeError(w, http.StatusBadRequest, "invalid_request_error", "Invalid request format")
		return false
	}
	return true
}
