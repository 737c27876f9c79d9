// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

func TestNewTheme(t *testing.T) {
	dark := NewTheme(ModeDark)
	if !dark.IsDark {
		t.Error("dark mode should force a dark background")
	}
	light := NewTheme(ModeLight)
	if light.IsDark {
		t.Error("light mode should force a light background")
	}
	if NewTheme(ModeAuto) == nil {
		t.Fatal("NewTheme(auto) returned nil")
	}
}

func TestThemeStylesRender(t *testing.T) {
	theme := NewTheme(ModeDark)

	styles := []struct {
		name  string
		style lipgloss.Style
	}{
		{"Header", theme.Header},
		{"UserBubble", theme.UserBubble},
		{"AssistantBubble", theme.AssistantBubble},
		{"ErrorBubble", theme.ErrorBubble},
		{"Pending", theme.Pending},
		{"ListSelected", theme.ListSelected},
		{"FormBox", theme.FormBox},
	}
	for _, s := range styles {
		if s.style.Render("test") == "" {
			t.Errorf("%s style rendered nothing", s.name)
		}
	}
}

func TestConfidenceBands(t *testing.T) {
	theme := NewTheme(ModeDark)

	tests := []struct {
		score float64
		want  lipgloss.TerminalColor
	}{
		{0.95, Emerald},
		{0.8, Emerald},
		{0.79, Amber},
		{0.5, Amber},
		{0.49, Rose},
		{0, Rose},
	}
	for _, tt := range tests {
		if got := theme.Confidence(tt.score).GetForeground(); got != tt.want {
			t.Errorf("Confidence(%v) foreground = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestBubbleAndBadge(t *testing.T) {
	theme := NewTheme(ModeDark)

	if got := theme.Bubble(model.Message{Role: model.RoleAssistant, Status: model.StatusError}).GetBorderLeftForeground(); got != Rose {
		t.Errorf("error bubble border = %v, want Rose", got)
	}
	if got := theme.Bubble(model.Message{Role: model.RoleUser}).GetBorderLeftForeground(); got != UserBubbleBorder {
		t.Errorf("user bubble border = %v, want UserBubbleBorder", got)
	}

	if _, ok := theme.StatusBadge(model.StatusCompleted); ok {
		t.Error("completed messages have no badge")
	}
	if s, ok := theme.StatusBadge(model.StatusPendingApproval); !ok || s.GetForeground() != Amber {
		t.Error("pending messages get the amber badge")
	}
}

func TestSetSize(t *testing.T) {
	theme := NewTheme(ModeLight)
	theme.SetSize(120, 40)
	if theme.Width != 120 || theme.Height != 40 {
		t.Errorf("SetSize = %dx%d, want 120x40", theme.Width, theme.Height)
	}
}
