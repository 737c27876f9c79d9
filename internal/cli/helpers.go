// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/chat"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	chatui "github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/chat"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/styles"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/util"
)

// resolveDepartment finds the department whose id, slug or name matches
// want. An empty want selects the configured default, then the first
// department.
func resolveDepartment(ctx context.Context, rt *Runtime, want string) (model.Department, error) {
	depts, err := rt.Client.ListDepartments(ctx)
	if err != nil {
		return model.Department{}, err
	}
	if len(depts) == 0 {
		return model.Department{}, chat.ErrNoDepartment
	}
	if want == "" {
		want = rt.Config.UI.DefaultDepartment
	}
	if want == "" {
		return depts[0], nil
	}
	for _, d := range depts {
		if d.ID.String() == want || strings.EqualFold(d.Slug, want) || strings.EqualFold(d.Name, want) {
			return d, nil
		}
	}
	names := make([]string, len(depts))
	for i, d := range depts {
		names[i] = d.Slug
	}
	return model.Department{}, usageErrorf("unknown department %q (available: %s)", want, strings.Join(names, ", "))
}

// loadAttachment reads an image to send with a question.
func loadAttachment(path string) (*chat.Attachment, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return &chat.Attachment{Name: filepath.Base(path), Data: data}, nil
}

// answerPrinter prints assistant answers for the line-mode commands.
type answerPrinter struct {
	theme *styles.Theme
	md    *chatui.Markdown
	width int
	color bool
}

func (a *App) newAnswerPrinter(rt *Runtime) *answerPrinter {
	color := colorEnabled(a.streams.Out)
	p := &answerPrinter{
		theme: styles.NewTheme(rt.Config.UI.Theme),
		width: terminalWidth(a.streams.Out),
		color: color,
	}
	if color && rt.Config.UI.Markdown {
		p.md = chatui.NewMarkdown(rt.Config.UI.Theme)
	}
	return p
}

func (p *answerPrinter) print(w io.Writer, m model.Message, showSources bool) {
	fmt.Fprintln(w, strings.TrimRight(p.md.Render(m.Content, p.width), "\n"))
	if meta := chatui.MetaLine(p.theme, m); meta != "" {
		fmt.Fprintln(w, meta)
	}
	switch m.Status {
	case model.StatusPendingApproval, model.StatusApproved, model.StatusRejected:
		if style, ok := p.theme.StatusBadge(m.Status); ok {
			fmt.Fprintln(w, style.Render(chatui.StatusText(m.Status)))
		}
	}
	if showSources && len(m.Sources) > 0 {
		fmt.Fprintln(w, DimStyle.Render("Sources:"))
		for _, s := range m.Sources {
			fmt.Fprintf(w, "  • %s (%.0f%%)\n", util.TruncateWidth(valueOr(s.Title, "Untitled"), p.width-12), s.Score*100)
		}
	}
}

// requireArg returns a usage error naming what is missing.
func requireArg(args []string, what string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", usageErrorf("%s is required", what)
	}
	return args[0], nil
}

// detail is api.ErrorDetail for command output.
func detail(err error) string {
	return api.ErrorDetail(err)
}
