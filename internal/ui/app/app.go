// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app is the root Bubble Tea model of kops. It owns the login,
// chat and training screens and switches between them.
//
// An expired session, reported by the API client as a 401, always ends on
// the login screen. Logins and logouts made by another kops process are
// picked up through the session file watcher.
package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/chat"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/session"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/training"
	chatui "github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/chat"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/login"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/styles"
	trainingui "github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/training"
)

// Screen identifies the active screen.
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenChat
	ScreenTraining
)

func (s Screen) String() string {
	switch s {
	case ScreenChat:
		return "chat"
	case ScreenTraining:
		return "training"
	default:
		return "login"
	}
}

// Notices shown on the login screen.
const (
	NoticeExpired   = "Your session has expired. Please log in again."
	NoticeLoggedOut = "You were logged out."
)

// UnauthorizedMsg is sent when the API rejected the session.
type UnauthorizedMsg struct{}

// SessionMsg is sent when the session file changed on disk.
type SessionMsg struct {
	Change session.Change
}

// Backend is the API surface the screens use. *api.Client implements it.
type Backend interface {
	chatui.Backend
	login.Authenticator
}

// Deps carries what the screens are built from.
type Deps struct {
	Backend   Backend
	Store     login.SessionSaver
	Poller    *training.Poller
	Theme     *styles.Theme
	Markdown  *chatui.Markdown
	Logger    *zap.Logger
	ServerURL string

	// Department is the id or slug selected after login.
	Department   string
	HistoryLimit int
}

// Model is the root model.
type Model struct {
	ctx    context.Context
	deps   Deps
	logger *zap.Logger

	screen   Screen
	login    login.Model
	chat     chatui.Model
	training trainingui.Model

	width  int
	height int
}

// New creates the root model. It opens on the chat screen when
// authenticated is true and on the login screen otherwise.
func New(ctx context.Context, deps Deps, authenticated bool) Model {
	if deps.Theme == nil {
		deps.Theme = styles.NewTheme(styles.ModeAuto)
	}
	m := Model{
		ctx:    ctx,
		deps:   deps,
		logger: logging.OrNop(deps.Logger).Named("ui"),
	}
	if deps.Poller != nil {
		m.training = trainingui.New(ctx, deps.Poller, deps.Theme)
	}
	if authenticated {
		m.screen = ScreenChat
		m.chat = m.newChat()
	} else {
		m.screen = ScreenLogin
		m.login = m.newLogin("")
	}
	return m
}

func (m Model) newChat() chatui.Model {
	view := chat.NewView(m.deps.Backend, "", chat.WithLogger(m.deps.Logger))
	return chatui.New(m.ctx, m.deps.Backend, view, chatui.Options{
		Theme:        m.deps.Theme,
		Markdown:     m.deps.Markdown,
		Logger:       m.deps.Logger,
		HistoryLimit: m.deps.HistoryLimit,
		Department:   m.deps.Department,
	})
}

func (m Model) newLogin(notice string) login.Model {
	return login.New(m.ctx, m.deps.Backend, m.deps.Store, m.deps.Theme, m.deps.ServerURL).WithNotice(notice)
}

// Init starts the active screen and, when a poller is configured, the
// training update subscription.
func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	switch m.screen {
	case ScreenChat:
		cmds = append(cmds, m.chat.Init())
	default:
		cmds = append(cmds, m.login.Init())
	}
	if m.deps.Poller != nil {
		cmds = append(cmds, m.training.Init())
	}
	return tea.Batch(cmds...)
}

// Screen returns the active screen.
func (m Model) Screen() Screen {
	return m.screen
}

// Login returns the login screen model.
func (m Model) Login() login.Model {
	return m.login
}

// Update routes messages to the active screen and handles screen changes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m.broadcast(msg)

	case UnauthorizedMsg:
		if m.screen == ScreenLogin {
			return m, nil
		}
		m.logger.Info("session rejected by server, returning to login")
		return m.toLogin(NoticeExpired)

	case SessionMsg:
		return m.handleSession(msg.Change)

	case login.LoggedInMsg:
		m.logger.Info("logged in", zap.String("user", msg.User.Email))
		return m.toChat()

	case trainingui.BackMsg:
		if m.screen == ScreenTraining {
			m.screen = ScreenChat
		}
		return m, nil

	case tea.KeyMsg:
		if m.screen == ScreenChat && msg.String() == "ctrl+t" &&
			m.deps.Poller != nil && m.chat.Focus() == chatui.FocusInput {
			m.screen = ScreenTraining
			return m, nil
		}
		return m.updateActive(msg)
	}

	// Training updates must reach the training model whichever screen
	// is showing, or the subscription would stall.
	if m.deps.Poller != nil && m.screen != ScreenTraining && trainingui.Handles(msg) {
		next, cmd := m.training.Update(msg)
		m.training = next.(trainingui.Model)
		return m, cmd
	}
	return m.updateActive(msg)
}

func (m Model) handleSession(change session.Change) (tea.Model, tea.Cmd) {
	switch change {
	case session.Removed:
		if m.screen == ScreenLogin {
			return m, nil
		}
		m.logger.Info("session file removed, returning to login")
		return m.toLogin(NoticeLoggedOut)
	default:
		if m.screen != ScreenLogin || m.login.Busy() {
			return m, nil
		}
		m.logger.Info("session file written by another process")
		return m.toChat()
	}
}

func (m Model) toLogin(notice string) (tea.Model, tea.Cmd) {
	m.screen = ScreenLogin
	m.login = m.newLogin(notice)
	return m, tea.Batch(m.login.Init(), m.resize())
}

func (m Model) toChat() (tea.Model, tea.Cmd) {
	m.screen = ScreenChat
	m.chat = m.newChat()
	return m, tea.Batch(m.chat.Init(), m.resize())
}

// resize replays the last window size to a freshly built screen.
func (m Model) resize() tea.Cmd {
	if m.width == 0 {
		return nil
	}
	size := tea.WindowSizeMsg{Width: m.width, Height: m.height}
	return func() tea.Msg { return size }
}

func (m Model) broadcast(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch m.screen {
	case ScreenLogin:
		next, cmd := m.login.Update(msg)
		m.login = next.(login.Model)
		cmds = append(cmds, cmd)
	default:
		next, cmd := m.chat.Update(msg)
		m.chat = next.(chatui.Model)
		cmds = append(cmds, cmd)
	}
	if m.deps.Poller != nil {
		next, cmd := m.training.Update(msg)
		m.training = next.(trainingui.Model)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) updateActive(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.screen {
	case ScreenLogin:
		var next tea.Model
		next, cmd = m.login.Update(msg)
		m.login = next.(login.Model)
	case ScreenChat:
		var next tea.Model
		next, cmd = m.chat.Update(msg)
		m.chat = next.(chatui.Model)
	case ScreenTraining:
		var next tea.Model
		next, cmd = m.training.Update(msg)
		m.training = next.(trainingui.Model)
	}
	return m, cmd
}

// View renders the active screen.
func (m Model) View() string {
	switch m.screen {
	case ScreenChat:
		return m.chat.View()
	case ScreenTraining:
		return m.training.View()
	default:
		return m.login.View()
	}
}
