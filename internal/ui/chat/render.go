// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/styles"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/util"
)

// =============================================================================
// MARKDOWN
// =============================================================================

// Markdown renders answers with glamour. A nil *Markdown renders plain text.
type Markdown struct {
	mu       sync.Mutex
	width    int
	renderer *glamour.TermRenderer
	style    string
}

// NewMarkdown creates a renderer. style is "dark", "light" or "auto".
func NewMarkdown(style string) *Markdown {
	return &Markdown{style: style}
}

// Render renders content wrapped at width. On failure the content is
// returned unchanged.
func (md *Markdown) Render(content string, width int) string {
	if md == nil || strings.TrimSpace(content) == "" {
		return content
	}
	md.mu.Lock()
	defer md.mu.Unlock()

	if md.renderer == nil || md.width != width {
		opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
		switch md.style {
		case styles.ModeDark, styles.ModeLight:
			opts = append(opts, glamour.WithStandardStyle(md.style))
		default:
			opts = append(opts, glamour.WithAutoStyle())
		}
		r, err := glamour.NewTermRenderer(opts...)
		if err != nil {
			return content
		}
		md.renderer = r
		md.width = width
	}

	out, err := md.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

// =============================================================================
// MESSAGE RENDERING
// =============================================================================

// RenderOptions controls how one message is drawn.
type RenderOptions struct {
	Width       int
	Selected    bool
	ShowSources bool
}

// RenderMessage draws a message bubble with its metadata.
func RenderMessage(theme *styles.Theme, md *Markdown, m model.Message, opts RenderOptions) string {
	width := opts.Width
	if width < 20 {
		width = 20
	}
	inner := width - 8

	var b strings.Builder
	label := m.Role.DisplayName()
	if !m.CreatedAt.IsZero() {
		label += "  " + theme.Meta.Render(m.CreatedAt.Local().Format("15:04"))
	}
	b.WriteString(theme.RoleLabel.Render(label))
	b.WriteString("\n")

	body := m.Content
	if m.Role == model.RoleAssistant && m.Status != model.StatusError {
		body = md.Render(body, inner)
	}
	b.WriteString(body)

	if meta := MetaLine(theme, m); meta != "" {
		b.WriteString("\n")
		b.WriteString(meta)
	}
	if badge, ok := theme.StatusBadge(m.Status); ok {
		b.WriteString("\n")
		b.WriteString(badge.Render(StatusText(m.Status)))
	}
	if opts.ShowSources && len(m.Sources) > 0 {
		b.WriteString("\n")
		b.WriteString(renderSources(theme, m.Sources, inner))
	}

	style := theme.Bubble(m).Width(width - 4)
	if opts.Selected {
		style = style.BorderStyle(lipgloss.ThickBorder()).BorderForeground(styles.Purple)
	}
	return style.Render(b.String())
}

// MetaLine summarises confidence, model, latency and sources for an
// assistant answer. It is empty for other messages.
func MetaLine(theme *styles.Theme, m model.Message) string {
	if m.Role != model.RoleAssistant || m.Status == model.StatusError {
		return ""
	}
	var parts []string
	if m.Confidence != nil {
		c := *m.Confidence
		parts = append(parts, theme.Confidence(c).Render(fmt.Sprintf("%.0f%% confidence", c*100)))
	}
	if m.ModelUsed != "" {
		parts = append(parts, theme.Meta.Render(m.ModelUsed))
	}
	if m.LatencyMS != nil {
		parts = append(parts, theme.Meta.Render(fmt.Sprintf("%.0fms", *m.LatencyMS)))
	}
	if n := len(m.Sources); n > 0 {
		word := "sources"
		if n == 1 {
			word = "source"
		}
		parts = append(parts, theme.Meta.Render(fmt.Sprintf("%d %s", n, word)))
	}
	return strings.Join(parts, theme.Meta.Render(" · "))
}

// StatusText is the badge text for a review status.
func StatusText(s model.Status) string {
	switch s {
	case model.StatusPendingApproval:
		return "Pending human review"
	case model.StatusApproved:
		return "Approved by reviewer"
	case model.StatusRejected:
		return "Rejected by reviewer"
	default:
		return util.Label(string(s))
	}
}

func renderSources(theme *styles.Theme, sources model.Sources, width int) string {
	lines := make([]string, 0, len(sources))
	for _, s := range sources {
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		line := fmt.Sprintf("• %s %s", theme.SourceTitle.Render(util.TruncateWidth(title, width/2)),
			theme.Meta.Render(fmt.Sprintf("%.0f%%", s.Score*100)))
		lines = append(lines, line)
		if chunk := util.FirstLine(s.Chunk); chunk != "" {
			lines = append(lines, "  "+theme.Meta.Render(util.TruncateWidth(chunk, width-2)))
		}
	}
	return strings.Join(lines, "\n")
}
