// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/glance/internal/storage"
)

// persistTimeout bounds a single aggregate write.
const persistTimeout = 5 * time.Second

// =============================================================================
// TRACKER
// =============================================================================

// Tracker owns the usage aggregate. Updates are serialized by a mutex, so
// concurrent requests never lose counts. Writes to the store under
// storage.KeyUsage happen in the background and coalesce, so Record never
// waits on storage.
type Tracker struct {
	mu    sync.Mutex
	rec   Record
	seq   uint64 // bumped on every change to rec
	store storage.Store
	now   func() time.Time

	// writeMu serializes store writes; written is the seq last persisted.
	writeMu sync.Mutex
	written uint64
	pending sync.WaitGroup
}

// NewTracker creates a tracker with an empty aggregate. A nil store keeps
// usage in memory only.
func NewTracker(store storage.Store) *Tracker {
	return &Tracker{
		rec:   NewRecord(),
		store: store,
		now:   time.Now,
	}
}

// Load replaces the in-memory aggregate with the persisted one, if any.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}

	var rec Record
	err := storage.GetJSON(ctx, t.store, storage.KeyUsage, &rec)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec = rec.Clone()
	return nil
}

// Record applies ev to the aggregate and schedules a write. Persistence
// failures are logged and never returned.
func (t *Tracker) Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.now()
	}

	t.mu.Lock()
	t.rec = t.rec.Apply(ev)
	t.seq++
	t.mu.Unlock()

	if t.store == nil {
		return
	}
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		t.persist()
	}()
}

// Snapshot returns a copy of the current aggregate.
func (t *Tracker) Snapshot() Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rec.Clone()
}

// Flush waits for scheduled writes to finish. Call it before closing the
// store.
func (t *Tracker) Flush() {
	t.pending.Wait()
}

// Reset clears the aggregate and the persisted copy.
func (t *Tracker) Reset(ctx context.Context) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	t.rec = NewRecord()
	t.seq++
	t.written = t.seq
	t.mu.Unlock()

	if t.store == nil {
		return nil
	}
	return t.store.Delete(ctx, storage.KeyUsage)
}

// persist writes the newest aggregate unless a later write already did.
func (t *Tracker) persist() {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	rec := t.rec.Clone()
	seq := t.seq
	t.mu.Unlock()

	if seq <= t.written {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := storage.PutJSON(ctx, t.store, storage.KeyUsage, rec); err != nil {
		log.Printf("USAGE_PERSIST_ERROR | error=%q", err.Error())
		return
	}
	t.written = seq
}
