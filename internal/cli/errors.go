// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/config"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/session"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/training"
)

// Exit codes by error category.
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
	ExitCancelled     = 10
)

var (
	// ErrCancelled is returned when the user declines a confirmation.
	ErrCancelled = errors.New("cancelled")

	// ErrConfirmationRequired is returned when a destructive command
	// cannot prompt and --yes was not given.
	ErrConfirmationRequired = errors.New("confirmation required: re-run with --yes")
)

// UsageError reports invalid arguments or flags.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	var usage *UsageError
	var cfgErrs config.ValidateErrors
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrCancelled):
		return ExitCancelled
	case errors.As(err, &usage), errors.Is(err, training.ErrInvalidConfig):
		return ExitUsageError
	case errors.As(err, &cfgErrs), errors.Is(err, session.ErrNoSecret):
		return ExitConfigError
	case errors.Is(err, api.ErrUnauthorized), errors.Is(err, api.ErrForbidden),
		errors.Is(err, api.ErrLoginFailed), errors.Is(err, session.ErrNoSession):
		return ExitAuthError
	case errors.Is(err, api.ErrNotFound), errors.Is(err, api.ErrJobNotFound):
		return ExitNotFoundError
	case errors.Is(err, api.ErrTimeout):
		return ExitTimeoutError
	case errors.Is(err, api.ErrServer):
		return ExitNetworkError
	}
	return ExitGeneralError
}

// Describe returns the line printed for err. Session problems point the
// user at kops login, the CLI counterpart of the TUI returning to its
// login screen.
func Describe(err error) string {
	switch {
	case errors.Is(err, api.ErrLoginFailed):
		return "Login failed: " + api.ErrorDetail(err)
	case errors.Is(err, api.ErrUnauthorized), errors.Is(err, session.ErrNoSession):
		return "Not logged in or session expired. Run \"kops login\"."
	case errors.Is(err, api.ErrForbidden):
		return "Permission denied: " + api.ErrorDetail(err)
	case errors.Is(err, session.ErrNoSecret):
		return "No session secret configured. Set session.secret in the config file or export KOPS_SESSION_SECRET."
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return api.ErrorDetail(err)
	}
	return err.Error()
}
