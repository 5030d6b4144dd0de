// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package thread

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxFollowUpWords is the largest follow-up accepted.
const MaxFollowUpWords = 300

// State is the lifecycle state of the managed thread.
type State int

const (
	StateEmpty State = iota
	StateAwaiting
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateAwaiting:
		return "awaiting"
	case StateIdle:
		return "idle"
	default:
		return "empty"
	}
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the current thread for one exchange.
type Manager struct {
	mu     sync.Mutex
	thread *Thread
	state  State
	now    func() time.Time
}

// NewManager creates a manager with no thread.
func NewManager() *Manager {
	return &Manager{now: time.Now}
}

// Start discards any current thread and begins a new empty one.
// It returns the new thread ID.
func (m *Manager) Start() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.thread = &Thread{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.state = StateEmpty
	return m.thread.ID
}

// Resume makes a persisted thread current.
func (m *Manager) Resume(t Thread) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := t.Clone()
	m.thread = &c
	switch {
	case len(c.Turns) == 0:
		m.state = StateEmpty
	default:
		m.state = StateIdle
	}
}

// Abandon drops the current thread.
func (m *Manager) Abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thread = nil
	m.state = StateEmpty
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ID returns the current thread ID, or "" when there is none.
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.thread == nil {
		return ""
	}
	return m.thread.ID
}

// CheckFollowUp validates a follow-up before any request is dispatched.
func (m *Manager) CheckFollowUp(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.thread == nil || len(m.thread.Turns) == 0 {
		return &CallerMisuseError{Op: "follow-up", Err: ErrNoActiveThread}
	}
	if m.state == StateAwaiting {
		return &CallerMisuseError{Op: "follow-up", Err: ErrRoundInFlight}
	}
	if len(strings.Fields(text)) > MaxFollowUpWords {
		return &CallerMisuseError{Op: "follow-up", Err: ErrFollowUpTooLong}
	}
	return nil
}

// AppendUser appends a user turn and moves to AWAITING. Only one round
// may be in flight per thread.
func (m *Manager) AppendUser(text string, img *Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.thread == nil {
		return &CallerMisuseError{Op: "append user turn", Err: ErrNoActiveThread}
	}
	if m.state == StateAwaiting {
		return &CallerMisuseError{Op: "append user turn", Err: ErrRoundInFlight}
	}
	now := m.now()
	m.thread.Turns = append(m.thread.Turns, Turn{
		Role:      RoleUser,
		Text:      text,
		Image:     img,
		CreatedAt: now,
	})
	m.thread.UpdatedAt = now
	m.state = StateAwaiting
	return nil
}

// CompleteRound appends the assistant answer and moves to IDLE.
func (m *Manager) CompleteRound(answer string, confidence int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.thread == nil || m.state != StateAwaiting {
		return ErrNotAwaiting
	}
	now := m.now()
	score := confidence
	m.thread.Turns = append(m.thread.Turns, Turn{
		Role:       RoleAssistant,
		Text:       answer,
		Confidence: &score,
		CreatedAt:  now,
	})
	m.thread.UpdatedAt = now
	m.state = StateIdle
	return nil
}

// FailRound ends an AWAITING round without an assistant turn.
func (m *Manager) FailRound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAwaiting {
		m.state = StateIdle
	}
}

// PriorContext returns every turn except the newest one.
func (m *Manager) PriorContext() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.thread == nil || len(m.thread.Turns) <= 1 {
		return nil
	}
	n := len(m.thread.Turns) - 1
	out := make([]Turn, n)
	copy(out, m.thread.Turns[:n])
	return out
}

// Snapshot returns a deep copy of the current thread for persistence.
func (m *Manager) Snapshot() (Thread, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.thread == nil {
		return Thread{}, false
	}
	return m.thread.Clone(), true
}
