// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package thread manages multi-turn conversation threads.
//
// A Thread is an ordered list of user and assistant turns. A new thread is
// started for every top-level analysis; follow-ups extend the current one.
// Turns are appended, never edited.
//
// # State Machine
//
//	EMPTY --AppendUser--> AWAITING --CompleteRound--> IDLE --AppendUser--> AWAITING ...
//	                          |
//	                          +--FailRound--> IDLE (no assistant turn appended)
//
// # Key Types
//
//   - Thread: the persisted conversation (ID, turns, timestamps)
//   - Turn: one immutable user or assistant message
//   - Manager: owns the current thread for one exchange
//   - CallerMisuseError: follow-up without a thread, or over the word limit
//
// # Usage
//
//	m := thread.NewManager()
//	m.Start()
//	m.AppendUser(text, nil)
//	prior := m.PriorContext() // everything except the in-flight user turn
//	// ... call the provider ...
//	m.CompleteRound(answer, score)
package thread
