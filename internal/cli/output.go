// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/util"
)

// JSONResponse is the envelope printed in --json mode.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the response as indented JSON.
func (r *JSONResponse) Print(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// emit prints data as a JSON envelope in --json mode, and otherwise calls
// human to print it for people.
func (a *App) emit(command string, data any, human func(w io.Writer)) error {
	if a.flags.JSON {
		return NewJSONResponse(command, data).Print(a.streams.Out)
	}
	human(a.streams.Out)
	return nil
}

// done prints a one-line success message, or an envelope in --json mode.
func (a *App) done(command string, data any, format string, args ...any) error {
	return a.emit(command, data, func(w io.Writer) {
		fmt.Fprintln(w, SuccessStyle.Render(fmt.Sprintf(format, args...)))
	})
}

// printJSON prints v as indented JSON, highlighted on colour terminals.
func (a *App) printJSON(v any) error {
	s, err := util.HighlightJSON(v, colorEnabled(a.streams.Out))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.streams.Out, strings.TrimRight(s, "\n"))
	return nil
}

// Column is a table column. Width 0 sizes the column to its content.
type Column struct {
	Title string
	Width int
}

// table writes rows under a header. Cells are truncated and padded by
// display width so CJK and emoji titles stay aligned.
func table(w io.Writer, cols []Column, rows [][]string) {
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = c.Width
		if widths[i] > 0 {
			continue
		}
		widths[i] = util.StringWidth(c.Title)
		for _, r := range rows {
			if i < len(r) {
				widths[i] = max(widths[i], util.StringWidth(r[i]))
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cols))
		for i := range cols {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i == len(cols)-1 {
				parts[i] = util.TruncateWidth(cell, widths[i])
			} else {
				parts[i] = util.PadWidth(cell, widths[i])
			}
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = c.Title
	}
	fmt.Fprintln(w, TitleStyle.Render(line(titles)))
	for _, r := range rows {
		fmt.Fprintln(w, line(r))
	}
}

// field prints a "label: value" line.
func field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s%v\n", RenderLabel(label, 18), value)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return formatTime(*t)
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
