// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// ConfirmationOptions controls how a destructive action is confirmed.
type ConfirmationOptions struct {
	// Yes skips the prompt.
	Yes bool
	// JSONMode refuses to prompt.
	JSONMode bool
}

// bindYes registers --yes on fs.
func bindYes(fs *pflag.FlagSet, yes *bool) {
	fs.BoolVarP(yes, "yes", "y", false, "do not ask for confirmation")
}

// confirm asks "Are you sure you want to <action>? [y/N]" on the app's
// streams. It returns ErrCancelled unless the answer is y or yes, and
// ErrConfirmationRequired when no prompt is possible.
func (a *App) confirm(action string, details map[string]string, opts ConfirmationOptions) error {
	if opts.Yes {
		return nil
	}
	if opts.JSONMode || !a.interactive() {
		return ErrConfirmationRequired
	}

	out := a.streams.Err
	if len(details) > 0 {
		fmt.Fprintln(out, WarningStyle.Render("This action cannot be undone."))
		for _, k := range sortedKeys(details) {
			fmt.Fprintf(out, "  %s%s\n", RenderLabel(k+":", 14), details[k])
		}
	}
	fmt.Fprintf(out, "Are you sure you want to %s? [y/N]: ", action)

	line, err := a.readLine()
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return nil
	}
	fmt.Fprintln(out, DimStyle.Render("Cancelled."))
	return ErrCancelled
}

// readLine reads one trimmed line from the input stream. A final line
// without a newline is returned without error.
func (a *App) readLine() (string, error) {
	if a.in == nil {
		a.in = bufio.NewReader(a.streams.In)
	}
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// interactive reports whether prompts can be answered. Readers that are
// not files, such as test input, count as interactive.
func (a *App) interactive() bool {
	if _, ok := a.streams.In.(interface{ Fd() uintptr }); !ok {
		return a.streams.In != nil
	}
	return isTerminal(a.streams.In)
}
