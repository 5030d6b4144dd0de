// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"time"
)

// HistoryCapacity is the number of outcomes kept in Record.History.
const HistoryCapacity = 100

// =============================================================================
// TYPES
// =============================================================================

// Event is the outcome of one provider request.
type Event struct {
	Provider    string
	Model       string
	Success     bool
	Latency     time.Duration // zero when unknown
	ContentType string
	Error       string
	Timestamp   time.Time
}

// HistoryEntry is one outcome in the bounded history.
type HistoryEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Success     bool      `json:"success"`
	LatencyMs   *int64    `json:"latencyMs,omitempty"`
	Error       string    `json:"error,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
}

// Record is the running usage aggregate.
type Record struct {
	TotalRequests       int            `json:"totalRequests"`
	SuccessfulRequests  int            `json:"successfulRequests"`
	FailedRequests      int            `json:"failedRequests"`
	TotalResponseTime   int64          `json:"totalResponseTime"`   // ms, successes only
	AverageResponseTime float64        `json:"averageResponseTime"` // ms, successes only
	ProviderUsage       map[string]int `json:"providerUsage"`
	ModelUsage          map[string]int `json:"modelUsage"`
	ContentTypeUsage    map[string]int `json:"contentTypeUsage"`
	History             []HistoryEntry `json:"history"`
}

// NewRecord returns an empty aggregate with initialized maps.
func NewRecord() Record {
	return Record{
		ProviderUsage:    make(map[string]int),
		ModelUsage:       make(map[string]int),
		ContentTypeUsage: make(map[string]int),
		History:          []HistoryEntry{},
	}
}

// =============================================================================
// AGGREGATION
// =============================================================================

// Apply returns the aggregate after ev. The receiver is not modified.
func (r Record) Apply(ev Event) Record {
	next := r.Clone()

	next.TotalRequests++
	if ev.Success {
		next.SuccessfulRequests++
		next.TotalResponseTime += ev.Latency.Milliseconds()
	} else {
		next.FailedRequests++
	}
	if next.SuccessfulRequests > 0 {
		next.AverageResponseTime = float64(next.TotalResponseTime) / float64(next.SuccessfulRequests)
	}

	if ev.Provider != "" {
		next.ProviderUsage[ev.Provider]++
	}
	if ev.Model != "" {
		next.ModelUsage[ev.Model]++
	}
	if ev.ContentType != "" {
		next.ContentTypeUsage[ev.ContentType]++
	}

	entry := HistoryEntry{
		Timestamp:   ev.Timestamp,
		Provider:    ev.Provider,
		Model:       ev.Model,
		Success:     ev.Success,
		Error:       ev.Error,
		ContentType: ev.ContentType,
	}
	if ev.Latency > 0 {
		ms := ev.Latency.Milliseconds()
		entry.LatencyMs = &ms
	}
	next.History = append(next.History, entry)
	if over := len(next.History) - HistoryCapacity; over > 0 {
		next.History = append([]HistoryEntry(nil), next.History[over:]...)
	}

	return next
}

// SuccessRate returns the fraction of successful requests, 0 when empty.
func (r Record) SuccessRate() float64 {
	if r.TotalRequests == 0 {
		return 0
	}
	return float64(r.SuccessfulRequests) / float64(r.TotalRequests)
}

// Clone returns a deep copy with non-nil maps.
func (r Record) Clone() Record {
	c := r
	c.ProviderUsage = cloneCounts(r.ProviderUsage)
	c.ModelUsage = cloneCounts(r.ModelUsage)
	c.ContentTypeUsage = cloneCounts(r.ContentTypeUsage)
	c.History = make([]HistoryEntry, len(r.History))
	copy(c.History, r.History)
	return c
}

func cloneCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
