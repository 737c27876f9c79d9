// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

// Theme modes accepted by NewTheme.
const (
	ModeAuto  = "auto"
	ModeDark  = "dark"
	ModeLight = "light"
)

// Confidence bands.
const (
	HighConfidence   = 0.8
	MediumConfidence = 0.5
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER AND STATUS BAR
	// ==========================================================================

	Header       lipgloss.Style
	HeaderTitle  lipgloss.Style
	HeaderMeta   lipgloss.Style
	StatusBar    lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	ErrorBubble     lipgloss.Style
	Selected        lipgloss.Style
	RoleLabel       lipgloss.Style
	Meta            lipgloss.Style
	Pending         lipgloss.Style
	Approved        lipgloss.Style
	Rejected        lipgloss.Style
	SourceTitle     lipgloss.Style

	// ==========================================================================
	// INPUT, LISTS, FORMS
	// ==========================================================================

	InputPrompt  lipgloss.Style
	Spinner      lipgloss.Style
	ThinkingText lipgloss.Style
	ListItem     lipgloss.Style
	ListSelected lipgloss.Style
	FormBox      lipgloss.Style
	FormLabel    lipgloss.Style

	// ==========================================================================
	// STATUS INDICATORS
	// ==========================================================================

	SuccessStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	MutedStyle   lipgloss.Style

	confidenceHigh   lipgloss.Style
	confidenceMedium lipgloss.Style
	confidenceLow    lipgloss.Style
}

// NewTheme creates a theme for mode ("auto", "dark" or "light").
func NewTheme(mode string) *Theme {
	colorProfile := termenv.ColorProfile()

	var isDark bool
	switch mode {
	case ModeDark:
		isDark = true
	case ModeLight:
		isDark = false
	default:
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	// Header
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.HeaderMeta = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(0, 1)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Messages
	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(UserBubbleBorder).
		Padding(0, 1).
		MarginLeft(4)

	t.AssistantBubble = lipgloss.NewStyle().
		Foreground(AssistantBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(AssistantBubbleBorder).
		Padding(0, 1).
		MarginRight(4)

	t.ErrorBubble = t.AssistantBubble.
		Foreground(ErrorBubbleFg).
		BorderForeground(Rose)

	t.Selected = lipgloss.NewStyle().
		BorderStyle(lipgloss.ThickBorder()).
		BorderForeground(Purple)

	t.RoleLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextSecondary)

	t.Meta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Pending = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	t.Approved = lipgloss.NewStyle().
		Foreground(Emerald)

	t.Rejected = lipgloss.NewStyle().
		Foreground(Rose)

	t.SourceTitle = lipgloss.NewStyle().
		Foreground(Purple).
		Underline(true)

	// Input and lists
	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Purple)

	t.ThinkingText = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	t.ListItem = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)

	t.ListSelected = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Purple).
		PaddingLeft(1).
		PaddingRight(1)

	t.FormBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(1, 2)

	t.FormLabel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Bold(true)

	// Status indicators
	t.SuccessStyle = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.ErrorStyle = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.WarningStyle = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.MutedStyle = lipgloss.NewStyle().Foreground(TextMuted)

	t.confidenceHigh = lipgloss.NewStyle().Foreground(Emerald)
	t.confidenceMedium = lipgloss.NewStyle().Foreground(Amber)
	t.confidenceLow = lipgloss.NewStyle().Foreground(Rose)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// Confidence returns the style for a confidence score in [0, 1].
func (t *Theme) Confidence(score float64) lipgloss.Style {
	switch {
	case score >= HighConfidence:
		return t.confidenceHigh
	case score >= MediumConfidence:
		return t.confidenceMedium
	default:
		return t.confidenceLow
	}
}

// Bubble returns the bubble style for a message.
func (t *Theme) Bubble(m model.Message) lipgloss.Style {
	switch {
	case m.Status == model.StatusError:
		return t.ErrorBubble
	case m.Role == model.RoleUser:
		return t.UserBubble
	default:
		return t.AssistantBubble
	}
}

// StatusBadge returns the style for a review status, and false when the
// status has no badge.
func (t *Theme) StatusBadge(s model.Status) (lipgloss.Style, bool) {
	switch s {
	case model.StatusPendingApproval:
		return t.Pending, true
	case model.StatusApproved:
		return t.Approved, true
	case model.StatusRejected:
		return t.Rejected, true
	default:
		return lipgloss.Style{}, false
	}
}
