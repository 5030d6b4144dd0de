// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Rating is a thumbs up or down on an answer.
type Rating string

const (
	RatingUp   Rating = "up"
	RatingDown Rating = "down"
)

// ErrInvalidRating is returned for ratings other than up or down.
var ErrInvalidRating = errors.New("rating must be \"up\" or \"down\"")

// Feedback is one user rating of an answer.
type Feedback struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId,omitempty"`
	Rating    Rating    `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// FeedbackLog is an append-only list of Feedback under KeyFeedback.
type FeedbackLog struct {
	mu    sync.Mutex
	store Store
}

// NewFeedbackLog creates a feedback log backed by store.
func NewFeedbackLog(store Store) *FeedbackLog {
	return &FeedbackLog{store: store}
}

// Append validates f, assigns its ID and timestamp, and stores it.
func (l *FeedbackLog) Append(ctx context.Context, f Feedback) (Feedback, error) {
	if f.Rating != RatingUp && f.Rating != RatingDown {
		return Feedback{}, fmt.Errorf("%w: %q", ErrInvalidRating, f.Rating)
	}
	f.ID = uuid.New().String()
	f.CreatedAt = time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load(ctx)
	if err != nil {
		return Feedback{}, err
	}
	entries = append(entries, f)
	if err := PutJSON(ctx, l.store, KeyFeedback, entries); err != nil {
		return Feedback{}, err
	}
	return f, nil
}

// List returns every entry in insertion order.
func (l *FeedbackLog) List(ctx context.Context) ([]Feedback, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

func (l *FeedbackLog) load(ctx context.Context) ([]Feedback, error) {
	var entries []Feedback
	err := GetJSON(ctx, l.store, KeyFeedback, &entries)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return entries, err
}
