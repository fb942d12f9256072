// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error display and exit codes for rfpchat commands.
//
// Commands always return errors; Execute displays them once and maps them
// to an exit code.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/rfpchat/internal/backend"
	"github.com/jeranaias/rfpchat/internal/config"
	"github.com/jeranaias/rfpchat/internal/transcript"
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
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the backend rejected the token
	ExitAuthError = 4
	// ExitNetworkError indicates the backend could not be reached
	ExitNetworkError = 5
	// ExitStreamError indicates a reply failed while streaming
	ExitStreamError = 6
	// ExitNotFoundError indicates a project or conversation was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted indicates the user interrupted the command
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports invalid flags or arguments.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// ConfigError reports a config file that could not be loaded or saved.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err and, when one applies, a hint for fixing it.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(w, "%s %s\n", DimStyle.Render("hint:"), hint)
	}
}

func errorHint(err error) string {
	var usage *UsageError
	switch {
	case errors.As(err, &usage):
		return "run with --help for usage"
	case errors.Is(err, backend.ErrUnauthorized):
		return fmt.Sprintf("set backend.token or %s", config.EnvToken)
	case errors.Is(err, backend.ErrNotFound):
		return "list conversations with: rfpchat conversations"
	case isNetworkError(err):
		return fmt.Sprintf("check backend.url or %s", config.EnvBackendURL)
	}
	return ""
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var cfgErr *ConfigError
	var validation config.ValidateErrors
	var streamErr *transcript.StreamError

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, transcript.ErrCancelled):
		return ExitInterrupted
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.As(err, &cfgErr), errors.As(err, &validation):
		return ExitConfigError
	case errors.Is(err, backend.ErrUnauthorized):
		return ExitAuthError
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, transcript.ErrUnknownConversation):
		return ExitNotFoundError
	case errors.Is(err, backend.ErrIdleTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &streamErr):
		return ExitStreamError
	case isNetworkError(err):
		return ExitNetworkError
	}
	return ExitGeneralError
}

// isNetworkError reports a transport failure that never got an HTTP status.
func isNetworkError(err error) bool {
	var te *backend.TransportError
	return errors.As(err, &te) && te.Status == 0 && te.Detail == ""
}
