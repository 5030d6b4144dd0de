// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"errors"

	"github.com/jeranaias/glance/internal/thread"
)

// MaxInputBytes bounds the selected text accepted for one round.
// SECURITY: Prevents resource exhaustion from oversized selections.
const MaxInputBytes = 100000

var (
	// ErrEmptyInput is returned when neither text nor an image is supplied.
	ErrEmptyInput = errors.New("nothing to analyze")

	// ErrInputTooLong is returned when the text exceeds MaxInputBytes.
	ErrInputTooLong = errors.New("input exceeds maximum length")
)

// Input is the content the user selected.
type Input struct {
	Text     string        `json:"text"`
	Image    *thread.Image `json:"image,omitempty"`
	FollowUp bool          `json:"followUp,omitempty"`
	// ThreadID selects the thread a follow-up continues. Empty means the
	// most recently started thread.
	ThreadID string `json:"threadId,omitempty"`
}

// Result is the outcome of Analyze.
type Result struct {
	Success    bool   `json:"success"`
	Answer     string `json:"answer,omitempty"`
	Error      string `json:"error,omitempty"`
	Confidence int    `json:"confidence"`
	LatencyMs  int64  `json:"latencyMs"`
	ThreadID   string `json:"threadId,omitempty"`
	Category   string `json:"category,omitempty"`

	// Err is the underlying failure for callers that classify errors.
	Err error `json:"-"`
}

// EventKind distinguishes streaming events.
type EventKind int

const (
	// EventChunk carries one answer fragment.
	EventChunk EventKind = iota
	// EventDone is terminal and carries the full answer and its score.
	EventDone
	// EventError is terminal and carries the failure.
	EventError
)

// Event is one item of AnalyzeStream.
type Event struct {
	Kind       EventKind
	Chunk      string
	FullAnswer string
	Confidence int
	LatencyMs  int64
	ThreadID   string
	Category   string
	Err        error
}

// IsTerminal reports whether no further events follow.
func (e Event) IsTerminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}
