// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/util"
)

// View renders the chat screen.
func (m Model) View() string {
	if m.focus == FocusHistory {
		return lipgloss.JoinVertical(lipgloss.Left, m.header(), m.historyView(), m.statusBar())
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.header(), m.viewport.View(), m.inputLine(), m.statusBar())
}

func (m Model) header() string {
	title := m.theme.HeaderTitle.Render("kops")
	dept := m.theme.HeaderMeta.Render("dept: " + valueOr(m.DepartmentName(), "none"))
	conv := m.theme.HeaderMeta.Render("new chat")
	if id := m.view.ConversationID(); id != "" {
		conv = m.theme.HeaderMeta.Render("conversation " + util.TruncateWidth(id, 12))
	}
	line := strings.Join([]string{title, dept, conv}, "  ")
	return m.theme.Header.Width(max(m.width, 1)).Render(line)
}

func (m Model) inputLine() string {
	if m.status != "" {
		return m.theme.WarningStyle.Render(util.TruncateWidth(m.status, max(m.width-2, 10))) + "\n" + m.input.View()
	}
	return m.input.View()
}

func (m Model) statusBar() string {
	var parts []string
	for _, b := range m.keys.ShortHelp(m.focus == FocusReview) {
		h := b.Help()
		parts = append(parts, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	return m.theme.StatusBar.Render(strings.Join(parts, "  "))
}

func (m Model) historyView() string {
	var b strings.Builder
	b.WriteString(m.theme.FormLabel.Render("Conversations"))
	b.WriteString("\n\n")
	if m.history == nil {
		b.WriteString(m.theme.MutedStyle.Render("Loading..."))
		return b.String()
	}
	if len(m.history) == 0 {
		b.WriteString(m.theme.MutedStyle.Render("No conversations yet"))
		return b.String()
	}
	width := max(m.width-4, 20)
	for i, c := range m.history {
		when := c.CreatedAt.Local().Format("Jan 02 15:04")
		if c.LastMessageAt != nil {
			when = c.LastMessageAt.Local().Format("Jan 02 15:04")
		}
		row := fmt.Sprintf("%s  %s  %d msgs", util.PadWidth(c.DisplayTitle(), width-26), when, c.MessageCount)
		if i == m.historyIdx {
			b.WriteString(m.theme.ListSelected.Render(row))
		} else {
			b.WriteString(m.theme.ListItem.Render(row))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// refresh re-renders the message list into the viewport.
func (m *Model) refresh(toBottom bool) {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	msgs := m.view.Messages()
	blocks := make([]string, 0, len(msgs)+1)
	for i, msg := range msgs {
		blocks = append(blocks, RenderMessage(m.theme, m.md, msg, RenderOptions{
			Width:       width,
			Selected:    m.focus != FocusInput && i == m.selected,
			ShowSources: m.showSources[msg.ID],
		}))
	}
	if m.view.Loading() {
		blocks = append(blocks, m.spinner.View()+" "+m.theme.ThinkingText.Render("Thinking..."))
	}
	if len(blocks) == 0 {
		blocks = append(blocks, m.theme.MutedStyle.Render("Ask anything about your department's knowledge base."))
	}
	m.viewport.SetContent(strings.Join(blocks, "\n"))
	if toBottom {
		m.viewport.GotoBottom()
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
