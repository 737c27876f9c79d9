// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package login provides the sign-in screen of the kops TUI.
package login

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/session"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/styles"
)

// Authenticator performs the login request. *api.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*model.LoginResponse, error)
}

// SessionSaver persists a successful login. *session.Store implements it.
type SessionSaver interface {
	Save(resp model.LoginResponse) (*session.Session, error)
}

// LoggedInMsg is emitted once the login succeeded and was saved.
type LoggedInMsg struct {
	User model.User
}

// resultMsg carries the outcome of a login attempt.
type resultMsg struct {
	user model.User
	err  error
}

const (
	fieldEmail = iota
	fieldPassword
)

// Model is the Bubble Tea model for the login screen.
type Model struct {
	ctx    context.Context
	auth   Authenticator
	store  SessionSaver
	theme  *styles.Theme
	inputs []textinput.Model
	focus  int

	spinner   spinner.Model
	busy      bool
	err       string
	notice    string
	width     int
	height    int
	serverURL string
}

// New creates the login screen. serverURL is shown for orientation.
func New(ctx context.Context, auth Authenticator, store SessionSaver, theme *styles.Theme, serverURL string) Model {
	if theme == nil {
		theme = styles.NewTheme(styles.ModeAuto)
	}
	email := textinput.New()
	email.Placeholder = "you@company.com"
	email.Prompt = "Email     "
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password  "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	return Model{
		ctx:       ctx,
		auth:      auth,
		store:     store,
		theme:     theme,
		inputs:    []textinput.Model{email, password},
		spinner:   sp,
		serverURL: serverURL,
	}
}

// WithNotice returns a copy showing notice above the form, e.g. after the
// session expired.
func (m Model) WithNotice(notice string) Model {
	m.notice = notice
	return m
}

// Init starts the cursor blinking.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case resultMsg:
		m.busy = false
		if msg.err != nil {
			m.err = api.ErrorDetail(msg.err)
			m.inputs[fieldPassword].Reset()
			m.setFocus(fieldPassword)
			return m, textinput.Blink
		}
		user := msg.user
		return m, func() tea.Msg { return LoggedInMsg{User: user} }

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.busy {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "down":
			m.setFocus((m.focus + 1) % len(m.inputs))
			return m, textinput.Blink
		case "shift+tab", "up":
			m.setFocus((m.focus + len(m.inputs) - 1) % len(m.inputs))
			return m, textinput.Blink
		case "enter":
			if m.focus == fieldEmail {
				m.setFocus(fieldPassword)
				return m, textinput.Blink
			}
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) setFocus(i int) {
	m.focus = i
	for j := range m.inputs {
		if j == i {
			m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	email := strings.TrimSpace(m.inputs[fieldEmail].Value())
	password := m.inputs[fieldPassword].Value()
	if email == "" || password == "" {
		m.err = "Email and password are required"
		return m, nil
	}
	m.busy = true
	m.err = ""

	ctx, auth, store := m.ctx, m.auth, m.store
	login := func() tea.Msg {
		resp, err := auth.Login(ctx, email, password)
		if err != nil {
			return resultMsg{err: err}
		}
		if _, err := store.Save(*resp); err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{user: resp.User}
	}
	return m, tea.Batch(login, m.spinner.Tick)
}

// Err returns the last error shown on the form.
func (m Model) Err() string {
	return m.err
}

// Busy reports whether a login request is in flight.
func (m Model) Busy() bool {
	return m.busy
}

// View renders the login screen.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Sign in to KnowledgeOps"))
	if m.serverURL != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.MutedStyle.Render(m.serverURL))
	}
	b.WriteString("\n\n")
	if m.notice != "" {
		b.WriteString(m.theme.WarningStyle.Render(m.notice))
		b.WriteString("\n\n")
	}
	for _, in := range m.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	switch {
	case m.busy:
		b.WriteString(m.spinner.View() + " Signing in...")
	case m.err != "":
		b.WriteString(m.theme.ErrorStyle.Render(m.err))
	default:
		b.WriteString(m.theme.MutedStyle.Render("enter to sign in · tab to switch field · esc to quit"))
	}

	box := m.theme.FormBox.Render(b.String())
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
	}
	return box
}
