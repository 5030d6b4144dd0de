// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/glance/internal/storage"
)

// failingStore rejects every write.
type failingStore struct {
	*storage.MemoryStore
}

func (failingStore) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

// slowStore delays every write.
type slowStore struct {
	*storage.MemoryStore
	delay time.Duration
}

func (s *slowStore) Put(ctx context.Context, key string, value []byte) error {
	time.Sleep(s.delay)
	return s.MemoryStore.Put(ctx, key, value)
}

func TestRecord_AverageOverSuccessesOnly(t *testing.T) {
	r := NewRecord()
	r = r.Apply(Event{Provider: "openai", Success: true, Latency: 100 * time.Millisecond})
	r = r.Apply(Event{Provider: "openai", Success: true, Latency: 300 * time.Millisecond})
	require.Equal(t, 200.0, r.AverageResponseTime)

	r = r.Apply(Event{Provider: "openai", Success: false, Error: "boom", Latency: 5 * time.Second})
	require.Equal(t, 200.0, r.AverageResponseTime)
	require.Equal(t, int64(400), r.TotalResponseTime)
	require.Equal(t, 3, r.TotalRequests)
	require.Equal(t, 2, r.SuccessfulRequests)
	require.Equal(t, 1, r.FailedRequests)
}

func TestRecord_NoDivideByZero(t *testing.T) {
	r := NewRecord().Apply(Event{Success: false, Error: "missing credential"})
	require.Equal(t, 0.0, r.AverageResponseTime)
	require.Equal(t, 0.0, NewRecord().SuccessRate())
}

func TestRecord_HistoryRing(t *testing.T) {
	r := NewRecord()
	for i := 0; i < 150; i++ {
		r = r.Apply(Event{Model: fmt.Sprintf("m%d", i), Success: true, Latency: time.Millisecond})
		require.LessOrEqual(t, len(r.History), HistoryCapacity)
	}

	require.Len(t, r.History, HistoryCapacity)
	require.Equal(t, "m50", r.History[0].Model)
	require.Equal(t, "m149", r.History[len(r.History)-1].Model)
	for _, e := range r.History {
		var n int
		fmt.Sscanf(e.Model, "m%d", &n)
		require.GreaterOrEqual(t, n, 50, "oldest 50 entries must be evicted")
	}
	require.Equal(t, 150, r.TotalRequests)
}

func TestRecord_Counts(t *testing.T) {
	r := NewRecord()
	r = r.Apply(Event{Provider: "openai", Model: "gpt", ContentType: "math", Success: true, Latency: 10 * time.Millisecond})
	r = r.Apply(Event{Provider: "anthropic", Model: "claude", ContentType: "code", Success: true, Latency: 10 * time.Millisecond})
	r = r.Apply(Event{Provider: "openai", Model: "gpt", ContentType: "math", Success: false, Error: "HTTP 500"})

	require.Equal(t, map[string]int{"openai": 2, "anthropic": 1}, r.ProviderUsage)
	require.Equal(t, map[string]int{"gpt": 2, "claude": 1}, r.ModelUsage)
	require.Equal(t, map[string]int{"math": 2, "code": 1}, r.ContentTypeUsage)

	last := r.History[2]
	require.False(t, last.Success)
	require.Equal(t, "HTTP 500", last.Error)
	require.Nil(t, last.LatencyMs)
	require.NotNil(t, r.History[0].LatencyMs)
	require.Equal(t, int64(10), *r.History[0].LatencyMs)
}

func TestRecord_ApplyDoesNotMutate(t *testing.T) {
	before := NewRecord().Apply(Event{Provider: "openai", Success: true})
	_ = before.Apply(Event{Provider: "openai", Success: true})
	require.Equal(t, 1, before.TotalRequests)
	require.Equal(t, 1, before.ProviderUsage["openai"])
	require.Len(t, before.History, 1)
}

// =============================================================================
// TRACKER
// =============================================================================

func TestTracker_PersistsAndLoads(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	tr := NewTracker(store)
	tr.Record(Event{Provider: "openai", Model: "gpt", Success: true, Latency: 120 * time.Millisecond})
	tr.Record(Event{Provider: "openai", Model: "gpt", Success: false, Error: "rate limited"})
	tr.Flush()

	reloaded := NewTracker(store)
	require.NoError(t, reloaded.Load(ctx))
	snap := reloaded.Snapshot()
	require.Equal(t, 2, snap.TotalRequests)
	require.Equal(t, 120.0, snap.AverageResponseTime)
	require.Len(t, snap.History, 2)
	require.False(t, snap.History[0].Timestamp.IsZero())
}

func TestTracker_PersistenceFailureIsSwallowed(t *testing.T) {
	tr := NewTracker(failingStore{storage.NewMemoryStore()})
	require.NotPanics(t, func() {
		tr.Record(Event{Provider: "openai", Success: true, Latency: time.Millisecond})
		tr.Flush()
	})
	require.Equal(t, 1, tr.Snapshot().TotalRequests)
}

func TestTracker_ConcurrentRecords(t *testing.T) {
	store := storage.NewMemoryStore()
	tr := NewTracker(store)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Record(Event{Provider: "openai", Success: i%2 == 0, Latency: time.Millisecond})
		}(i)
	}
	wg.Wait()

	snap := tr.Snapshot()
	require.Equal(t, 40, snap.TotalRequests)
	require.Equal(t, 20, snap.SuccessfulRequests)
	require.Equal(t, 40, snap.ProviderUsage["openai"])

	tr.Flush()
	var persisted Record
	require.NoError(t, storage.GetJSON(context.Background(), store, storage.KeyUsage, &persisted))
	require.Equal(t, 40, persisted.TotalRequests, "newest aggregate wins after coalesced writes")
}

func TestTracker_RecordDoesNotWaitOnStore(t *testing.T) {
	store := &slowStore{MemoryStore: storage.NewMemoryStore(), delay: 500 * time.Millisecond}
	tr := NewTracker(store)

	start := time.Now()
	tr.Record(Event{Provider: "openai", Success: true, Latency: time.Millisecond})
	require.Less(t, time.Since(start), 100*time.Millisecond)
	require.Equal(t, 1, tr.Snapshot().TotalRequests)

	tr.Flush()
	var persisted Record
	require.NoError(t, storage.GetJSON(context.Background(), store, storage.KeyUsage, &persisted))
	require.Equal(t, 1, persisted.TotalRequests)
}

func TestTracker_ResetBeatsPendingWrite(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	tr := NewTracker(store)

	tr.Record(Event{Provider: "openai", Success: true})
	require.NoError(t, tr.Reset(ctx))
	tr.Flush()

	_, err := store.Get(ctx, storage.KeyUsage)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTracker_Reset(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	tr := NewTracker(store)
	tr.Record(Event{Provider: "openai", Success: true})
	tr.Flush()

	require.NoError(t, tr.Reset(ctx))
	require.Equal(t, 0, tr.Snapshot().TotalRequests)

	_, err := store.Get(ctx, storage.KeyUsage)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTracker_SnapshotIsCopy(t *testing.T) {
	tr := NewTracker(nil)
	tr.Record(Event{Provider: "openai", Success: true})

	snap := tr.Snapshot()
	snap.ProviderUsage["openai"] = 99
	snap.History[0].Provider = "changed"

	again := tr.Snapshot()
	require.Equal(t, 1, again.ProviderUsage["openai"])
	require.Equal(t, "openai", again.History[0].Provider)
}
