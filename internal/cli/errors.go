// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/glance/internal/config"
	"github.com/jeranaias/glance/internal/provider"
	"github.com/jeranaias/glance/internal/storage"
	"github.com/jeranaias/glance/internal/thread"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates a configuration or credential problem
	ExitConfigError = 3
	// ExitProviderError indicates the provider call failed
	ExitProviderError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitCancelled indicates the user interrupted the command
	ExitCancelled = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "ask", "export")
	Action  string // Action being performed (e.g., "read image")
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError is returned for missing or invalid arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func usageErrorf(format string, a ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, a...)}
}

// ExitCodeFor maps an error to a process exit code.
func ExitCodeFor(err error) int {
	var usage *UsageError
	var cfgErr *provider.ConfigurationError
	var validation config.ValidateErrors
	var provErr *provider.ProviderError

	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case errors.As(err, &usage), thread.IsCallerMisuse(err):
		return ExitUsageError
	case errors.As(err, &cfgErr), errors.As(err, &validation):
		return ExitConfigError
	case errors.As(err, &provErr):
		return ExitProviderError
	case errors.Is(err, storage.ErrThreadNotFound):
		return ExitNotFoundError
	default:
		return ExitGeneralError
	}
}
