// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/approval"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/chat"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/config"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/util"
)

// =============================================================================
// LINE INPUT
// =============================================================================

// LineReader reads prompted lines. liner.State implements it.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// ChatCLI provides line editing and input history for kops chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor with history loaded from the config
// directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
	return c
}

// Prompt reads a line.
func (c *ChatCLI) Prompt(prompt string) (string, error) {
	return c.line.Prompt(prompt)
}

// AppendHistory records a non-empty line.
func (c *ChatCLI) AppendHistory(item string) {
	c.line.AppendHistory(item)
}

// Close saves history with owner-only permissions and restores the
// terminal.
func (c *ChatCLI) Close() {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// =============================================================================
// COMMAND
// =============================================================================

func (a *App) newChatCommand() *cobra.Command {
	var department, conversationID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in line mode",
		Long: `Start a line-mode conversation. Type a question and press enter.
Slash commands: /new, /sources, /approve [edited answer], /reject <reason>,
/department <slug>, /help, /quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			var in LineReader
			if isTerminal(a.streams.In) {
				cli := NewChatCLI()
				defer cli.Close()
				in = cli
			} else {
				in = &plainLineReader{app: a}
			}
			return a.runChat(cmd.Context(), rt, in, department, conversationID)
		},
	}
	cmd.Flags().StringVarP(&department, "department", "d", "", "department id or slug")
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue an existing conversation")
	return cmd
}

// plainLineReader reads from the app's input stream without line
// editing, for pipes and tests.
type plainLineReader struct {
	app *App
}

func (r *plainLineReader) Prompt(prompt string) (string, error) {
	fmt.Fprint(r.app.streams.Out, prompt)
	return r.app.readLine()
}

func (r *plainLineReader) AppendHistory(string) {}

// chatREPL is the state of one kops chat session.
type chatREPL struct {
	app     *App
	rt      *Runtime
	view    *chat.View
	printer *answerPrinter
	out     io.Writer

	dept model.Department
	// last is the most recent assistant answer, the target of /approve,
	// /reject and /sources.
	last model.ID
}

func (a *App) runChat(ctx context.Context, rt *Runtime, in LineReader, department, conversationID string) error {
	dept, err := resolveDepartment(ctx, rt, department)
	if err != nil {
		return err
	}
	r := &chatREPL{
		app:     a,
		rt:      rt,
		view:    chat.NewView(rt.Client, dept.ID.String(), chat.WithLogger(rt.Logger)),
		printer: a.newAnswerPrinter(rt),
		out:     a.streams.Out,
		dept:    dept,
	}
	if conversationID != "" {
		r.view.Open(ctx, conversationID)
		r.replay()
	}

	fmt.Fprintf(r.out, "%s %s\n", TitleStyle.Render("KnowledgeOps"), DimStyle.Render(dept.Name+" · /help for commands · /quit to exit"))
	for {
		line, err := in.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		in.AppendHistory(line)

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintf(r.out, "%s %s\n", ErrorStyle.Render("[Error]"), Describe(err))
			}
			if quit {
				return nil
			}
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}
		r.ask(ctx, line)
	}
}

func (r *chatREPL) prompt() string {
	return TitleStyle.Render(r.dept.Slug+"> ")
}

func (r *chatREPL) ask(ctx context.Context, text string) {
	fmt.Fprintln(r.out, DimStyle.Render("Thinking..."))
	out, err := r.view.SendMessage(ctx, text, nil)
	if err != nil {
		fmt.Fprintf(r.out, "%s %s\n", ErrorStyle.Render("[Error]"), Describe(err))
		return
	}
	if out.Stale {
		return
	}
	if out.Err != nil {
		fmt.Fprintln(r.out, ErrorStyle.Render(out.Message.Content))
		return
	}
	r.last = out.Message.ID
	r.printer.print(r.out, out.Message, false)
}

// replay prints an opened conversation.
func (r *chatREPL) replay() {
	for _, m := range r.view.Messages() {
		if m.Role == model.RoleUser {
			fmt.Fprintf(r.out, "%s %s\n", LabelStyle.Render("you:"), m.Content)
			continue
		}
		r.last = m.ID
		r.printer.print(r.out, m, false)
	}
}

// command runs a slash command and reports whether the session ends.
func (r *chatREPL) command(ctx context.Context, line string) (bool, error) {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/?":
		fmt.Fprintln(r.out, `/new                     start a new conversation
/sources                 show the sources of the last answer
/approve [edited answer] approve the last answer
/reject <reason>         reject the last answer
/department <slug>       switch department (starts a new conversation)
/quit                    leave`)
		return false, nil

	case "/new":
		r.view.NewChat()
		r.last = ""
		fmt.Fprintln(r.out, DimStyle.Render("New conversation"))
		return false, nil

	case "/sources":
		m, ok := r.lastAnswer()
		if !ok {
			return false, usageErrorf("no answer yet")
		}
		if len(m.Sources) == 0 {
			fmt.Fprintln(r.out, DimStyle.Render("No sources"))
			return false, nil
		}
		for _, s := range m.Sources {
			fmt.Fprintf(r.out, "• %s (%.0f%%)\n", valueOr(s.Title, "Untitled"), s.Score*100)
			if chunk := util.FirstLine(s.Chunk); chunk != "" {
				fmt.Fprintln(r.out, "  "+DimStyle.Render(util.TruncateWidth(chunk, r.printer.width-2)))
			}
		}
		return false, nil

	case "/approve":
		return false, r.decide(ctx, func(c *approval.Controls) error { return c.Approve(ctx, rest) }, "Approved")

	case "/reject":
		return false, r.decide(ctx, func(c *approval.Controls) error { return c.Reject(ctx, rest) }, "Rejected")

	case "/department", "/dept":
		dept, err := resolveDepartment(ctx, r.rt, rest)
		if err != nil {
			return false, err
		}
		r.dept = dept
		r.view.SetDepartment(dept.ID.String())
		r.last = ""
		fmt.Fprintln(r.out, DimStyle.Render("Switched to "+dept.Name))
		return false, nil
	}
	return false, usageErrorf("unknown command %s, try /help", name)
}

func (r *chatREPL) lastAnswer() (model.Message, bool) {
	if r.last == "" {
		return model.Message{}, false
	}
	return r.view.Message(r.last)
}

func (r *chatREPL) decide(ctx context.Context, call func(*approval.Controls) error, verb string) error {
	if _, ok := r.lastAnswer(); !ok {
		return usageErrorf("no answer to review")
	}
	controls := approval.NewControls(r.rt.Client, r.view, r.last, r.rt.Logger)
	if err := call(controls); err != nil {
		return err
	}
	fmt.Fprintln(r.out, SuccessStyle.Render(verb))
	return nil
}
