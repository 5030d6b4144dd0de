// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/glance/internal/thread"
)

// MaxThreads is the number of threads kept in history.
const MaxThreads = 50

// ErrThreadNotFound is returned when a thread ID is not in history.
var ErrThreadNotFound = errors.New("thread not found")

// ThreadMeta contains metadata for listing threads.
type ThreadMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// =============================================================================
// HISTORY STORE
// =============================================================================

// HistoryStore keeps the most recent threads under KeyHistory, oldest first.
type HistoryStore struct {
	mu    sync.Mutex
	store Store
	limit int
}

// NewHistoryStore creates a history bounded to MaxThreads.
func NewHistoryStore(store Store) *HistoryStore {
	return &HistoryStore{store: store, limit: MaxThreads}
}

func (h *HistoryStore) load(ctx context.Context) ([]thread.Thread, error) {
	var threads []thread.Thread
	err := GetJSON(ctx, h.store, KeyHistory, &threads)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return threads, err
}

// Save inserts or replaces t and makes it the most recent entry. The oldest
// threads are evicted past the limit.
func (h *HistoryStore) Save(ctx context.Context, t thread.Thread) error {
	if t.ID == "" {
		return fmt.Errorf("save thread: empty id")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	threads, err := h.load(ctx)
	if err != nil {
		return err
	}

	kept := threads[:0]
	for _, existing := range threads {
		if existing.ID != t.ID {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, t)
	if over := len(kept) - h.limit; over > 0 {
		kept = kept[over:]
	}

	return PutJSON(ctx, h.store, KeyHistory, kept)
}

// Get returns the thread with the given ID.
func (h *HistoryStore) Get(ctx context.Context, id string) (thread.Thread, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	threads, err := h.load(ctx)
	if err != nil {
		return thread.Thread{}, err
	}
	for _, t := range threads {
		if t.ID == id {
			return t, nil
		}
	}
	return thread.Thread{}, ErrThreadNotFound
}

// Latest returns the most recently saved thread.
func (h *HistoryStore) Latest(ctx context.Context) (thread.Thread, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	threads, err := h.load(ctx)
	if err != nil {
		return thread.Thread{}, err
	}
	if len(threads) == 0 {
		return thread.Thread{}, ErrThreadNotFound
	}
	return threads[len(threads)-1], nil
}

// List returns metadata for every stored thread, most recent first.
func (h *HistoryStore) List(ctx context.Context) ([]ThreadMeta, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	threads, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	metas := make([]ThreadMeta, 0, len(threads))
	for i := len(threads) - 1; i >= 0; i-- {
		t := threads[i]
		metas = append(metas, ThreadMeta{
			ID:        t.ID,
			Title:     t.Title(),
			Turns:     len(t.Turns),
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		})
	}
	return metas, nil
}

// Delete removes a thread from history.
func (h *HistoryStore) Delete(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	threads, err := h.load(ctx)
	if err != nil {
		return err
	}
	kept := threads[:0]
	for _, t := range threads {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(threads) {
		return ErrThreadNotFound
	}
	return PutJSON(ctx, h.store, KeyHistory, kept)
}

// Clear removes all threads.
func (h *HistoryStore) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Delete(ctx, KeyHistory)
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders a thread as Markdown with role labels.
func ExportMarkdown(t thread.Thread) string {
	var sb strings.Builder
	sb.WriteString("# " + t.Title() + "\n\n")
	sb.WriteString("Created: " + t.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, turn := range t.Turns {
		role := "**User**"
		if turn.Role == thread.RoleAssistant {
			role = "**Assistant**"
		}
		sb.WriteString(role + " (" + turn.CreatedAt.Format("15:04") + ")")
		if turn.Confidence != nil {
			sb.WriteString(fmt.Sprintf(" - confidence %d%%", *turn.Confidence))
		}
		sb.WriteString(":\n\n")
		if turn.Image != nil {
			sb.WriteString("_[image: " + turn.Image.MediaType + "]_\n\n")
		}
		sb.WriteString(turn.Text)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// ExportYAML renders a thread as YAML. Image bytes are omitted.
func ExportYAML(t thread.Thread) ([]byte, error) {
	c := t.Clone()
	for i := range c.Turns {
		if c.Turns[i].Image != nil {
			c.Turns[i].Image.Data = nil
		}
	}
	return yaml.Marshal(c)
}
