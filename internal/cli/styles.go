// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/styles"
)

// Shared styles for command output. lipgloss drops the colour when the
// output is not a terminal.
var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)
	LabelStyle   = lipgloss.NewStyle().Foreground(styles.TextMuted)
	SuccessStyle = lipgloss.NewStyle().Foreground(styles.Emerald)
	WarningStyle = lipgloss.NewStyle().Foreground(styles.Amber)
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(styles.Rose)
	DimStyle     = lipgloss.NewStyle().Foreground(styles.TextMuted)
)

// RenderSeparator returns a horizontal rule of the given width.
func RenderSeparator(width int) string {
	return DimStyle.Render(strings.Repeat("─", width))
}

// RenderLabel renders a fixed-width field label.
func RenderLabel(label string, width int) string {
	return LabelStyle.Width(width).Render(label)
}
