// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package thread

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveThread is returned for a follow-up when no thread exists.
	ErrNoActiveThread = errors.New("no active thread for follow-up")

	// ErrFollowUpTooLong is returned when a follow-up exceeds MaxFollowUpWords.
	ErrFollowUpTooLong = errors.New("follow-up exceeds word limit")

	// ErrRoundInFlight is returned when a user turn arrives while the
	// previous one is still waiting for its answer.
	ErrRoundInFlight = errors.New("previous round still awaiting a response")

	// ErrNotAwaiting is returned when a round completes with no user turn in flight.
	ErrNotAwaiting = errors.New("no user turn awaiting a response")
)

// CallerMisuseError is a request rejected before any provider call.
type CallerMisuseError struct {
	Op  string
	Err error
}

func (e *CallerMisuseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallerMisuseError) Unwrap() error {
	return e.Err
}

// IsCallerMisuse reports whether err is a CallerMisuseError.
func IsCallerMisuse(err error) bool {
	var e *CallerMisuseError
	return errors.As(err, &e)
}
