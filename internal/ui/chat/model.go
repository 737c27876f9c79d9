// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/approval"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/chat"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/styles"
)

// =============================================================================
// BACKEND
// =============================================================================

// Backend is everything the chat screen calls. *api.Client implements it.
type Backend interface {
	chat.Backend
	approval.Backend
	ListConversations(ctx context.Context, departmentID string, limit int) ([]model.ConversationSummary, error)
	ListDepartments(ctx context.Context) ([]model.Department, error)
}

// =============================================================================
// STATE
// =============================================================================

// Focus is the part of the screen receiving keys.
type Focus int

const (
	FocusInput   Focus = iota // Typing a question
	FocusReview               // Selecting answers to review
	FocusHistory              // Picking a past conversation
	FocusReason               // Typing a rejection reason
	FocusEdit                 // Editing an answer before approval
)

// Options configures the chat screen.
type Options struct {
	Theme        *styles.Theme
	Markdown     *Markdown
	Logger       *zap.Logger
	HistoryLimit int
	// Department is the id or slug to select once departments load.
	Department string
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx     context.Context
	backend Backend
	view    *chat.View
	theme   *styles.Theme
	md      *Markdown
	logger  *zap.Logger
	keys    KeyMap

	width  int
	height int

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	focus        Focus
	departments  []model.Department
	wantDept     string
	history      []model.ConversationSummary
	historyIdx   int
	historyLimit int

	// selected is the index into view.Messages() of the reviewed answer.
	selected    int
	showSources map[model.ID]bool
	controls    map[model.ID]*approval.Controls

	status string
}

// New creates the chat screen over view.
func New(ctx context.Context, backend Backend, view *chat.View, opts Options) Model {
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme(styles.ModeAuto)
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}

	input := textinput.New()
	input.Placeholder = "Ask a question..."
	input.Prompt = "> "
	input.PromptStyle = opts.Theme.InputPrompt
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = opts.Theme.Spinner

	return Model{
		ctx:          ctx,
		backend:      backend,
		view:         view,
		theme:        opts.Theme,
		md:           opts.Markdown,
		logger:       logging.OrNop(opts.Logger).Named("ui.chat"),
		keys:         DefaultKeyMap(),
		viewport:     viewport.New(80, 20),
		input:        input,
		spinner:      sp,
		wantDept:     opts.Department,
		historyLimit: opts.HistoryLimit,
		selected:     -1,
		showSources:  map[model.ID]bool{},
		controls:     map[model.ID]*approval.Controls{},
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

// answerMsg carries a resolved exchange.
type answerMsg struct{ out chat.Outcome }

// departmentsMsg carries the department list.
type departmentsMsg struct {
	list []model.Department
	err  error
}

// historyMsg carries the conversation list for the picker.
type historyMsg struct {
	list []model.ConversationSummary
	err  error
}

// openedMsg signals that a conversation finished loading.
type openedMsg struct{ id string }

// decisionMsg carries the result of an approve or reject.
type decisionMsg struct {
	messageID model.ID
	status    model.Status
	err       error
}

// =============================================================================
// BUBBLE TEA
// =============================================================================

// Init loads departments.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadDepartments())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case answerMsg:
		if msg.out.Stale {
			return m, nil
		}
		m.refresh(true)
		return m, nil

	case departmentsMsg:
		return m.handleDepartments(msg)

	case historyMsg:
		if msg.err != nil {
			m.status = "Could not load history: " + api.ErrorDetail(msg.err)
			m.focus = FocusInput
			return m, nil
		}
		m.history = msg.list
		m.historyIdx = 0
		return m, nil

	case openedMsg:
		m.status = ""
		m.selected = -1
		m.refresh(true)
		return m, nil

	case decisionMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %s", decisionVerb(msg.status), api.ErrorDetail(msg.err))
		} else {
			m.status = StatusText(msg.status)
		}
		m.refresh(false)
		return m, nil

	case spinner.TickMsg:
		if !m.view.Loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh(true)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.theme.SetSize(width, height)
	m.viewport.Width = width
	// header, input and status bar take one line each
	m.viewport.Height = max(height-3, 3)
	m.input.Width = max(width-4, 10)
	m.refresh(true)
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.focus {
	case FocusHistory:
		return m.handleHistoryKey(msg)
	case FocusReview:
		return m.handleReviewKey(msg)
	case FocusReason, FocusEdit:
		return m.handlePromptKey(msg)
	}

	switch msg.String() {
	case "enter":
		return m.submit()
	case "ctrl+n":
		m.view.NewChat()
		m.resetSelection()
		m.status = "New chat"
		m.refresh(true)
		return m, nil
	case "ctrl+h":
		m.focus = FocusHistory
		m.history = nil
		return m, m.loadHistory()
	case "ctrl+d":
		m.cycleDepartment()
		return m, nil
	case "tab":
		if len(m.view.Messages()) > 0 {
			m.focus = FocusReview
			m.input.Blur()
			if m.selected < 0 {
				m.selected = m.firstReviewable()
			}
			if m.selected < 0 {
				m.selected = m.lastAssistant()
			}
			m.refresh(false)
		}
		return m, nil
	case "pgup":
		m.viewport.HalfViewUp()
		return m, nil
	case "pgdown":
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	ex, err := m.view.Submit(m.input.Value(), nil)
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return m, nil
	case err != nil:
		m.status = err.Error()
		return m, nil
	}
	m.input.Reset()
	m.status = ""
	m.refresh(true)

	ctx := m.ctx
	resolve := func() tea.Msg {
		return answerMsg{out: ex.Resolve(ctx)}
	}
	return m, tea.Batch(resolve, m.spinner.Tick)
}

func (m Model) handleReviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	msgs := m.view.Messages()
	switch msg.String() {
	case "esc", "tab":
		m.focus = FocusInput
		m.input.Focus()
		m.refresh(false)
		return m, textinput.Blink
	case "up", "k":
		m.selected = m.stepAssistant(msgs, -1)
		m.refresh(false)
	case "down", "j":
		m.selected = m.stepAssistant(msgs, 1)
		m.refresh(false)
	case "s":
		if id, ok := m.selectedID(msgs); ok {
			m.showSources[id] = !m.showSources[id]
			m.refresh(false)
		}
	case "a":
		return m.decide(msgs, model.StatusApproved, "")
	case "e":
		if c, ok := m.selectedControls(msgs); ok && c.Offered() {
			m.focus = FocusEdit
			m.input.SetValue(msgs[m.selected].Content)
			m.input.Placeholder = "Edited answer"
			m.input.Focus()
			return m, textinput.Blink
		}
		m.status = "Nothing to review for this message"
	case "r":
		if c, ok := m.selectedControls(msgs); ok && c.Offered() {
			m.focus = FocusReason
			m.input.Reset()
			m.input.Placeholder = "Rejection reason"
			m.input.Focus()
			return m, textinput.Blink
		}
		m.status = "Nothing to review for this message"
	}
	return m, nil
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.endPrompt()
		return m, nil
	case "enter":
		text := m.input.Value()
		status := model.StatusApproved
		if m.focus == FocusReason {
			status = model.StatusRejected
			if strings.TrimSpace(text) == "" {
				m.status = approval.ErrReasonRequired.Error()
				return m, nil
			}
		}
		m.endPrompt()
		return m.decide(m.view.Messages(), status, text)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) endPrompt() {
	m.focus = FocusReview
	m.input.Reset()
	m.input.Placeholder = "Ask a question..."
	m.input.Blur()
}

func (m Model) decide(msgs []model.Message, status model.Status, text string) (tea.Model, tea.Cmd) {
	c, ok := m.selectedControls(msgs)
	if !ok || !c.Offered() {
		m.status = "Nothing to review for this message"
		return m, nil
	}
	if c.Busy() {
		m.status = approval.ErrBusy.Error()
		return m, nil
	}
	id := msgs[m.selected].ID
	m.status = decisionVerb(status) + "..."
	ctx := m.ctx
	return m, func() tea.Msg {
		var err error
		if status == model.StatusRejected {
			err = c.Reject(ctx, text)
		} else {
			err = c.Approve(ctx, text)
		}
		return decisionMsg{messageID: id, status: status, err: err}
	}
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+h":
		m.focus = FocusInput
		return m, nil
	case "up", "k":
		if m.historyIdx > 0 {
			m.historyIdx--
		}
	case "down", "j":
		if m.historyIdx < len(m.history)-1 {
			m.historyIdx++
		}
	case "enter":
		if len(m.history) == 0 {
			return m, nil
		}
		id := m.history[m.historyIdx].ID.String()
		m.focus = FocusInput
		m.resetSelection()
		m.status = "Loading conversation..."
		view, ctx := m.view, m.ctx
		return m, func() tea.Msg {
			view.Open(ctx, id)
			return openedMsg{id: id}
		}
	}
	return m, nil
}

// =============================================================================
// DEPARTMENTS AND HISTORY
// =============================================================================

func (m Model) loadDepartments() tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		list, err := backend.ListDepartments(ctx)
		return departmentsMsg{list: list, err: err}
	}
}

func (m Model) loadHistory() tea.Cmd {
	ctx, backend, dept, limit := m.ctx, m.backend, m.view.DepartmentID(), m.historyLimit
	return func() tea.Msg {
		list, err := backend.ListConversations(ctx, dept, limit)
		return historyMsg{list: list, err: err}
	}
}

func (m Model) handleDepartments(msg departmentsMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.logger.Warn("failed to load departments", zap.Error(msg.err))
		m.status = "Could not load departments: " + api.ErrorDetail(msg.err)
		return m, nil
	}
	m.departments = msg.list
	if m.view.DepartmentID() != "" || len(msg.list) == 0 {
		return m, nil
	}
	pick := msg.list[0]
	for _, d := range msg.list {
		if m.wantDept != "" && (d.ID.String() == m.wantDept || d.Slug == m.wantDept) {
			pick = d
			break
		}
	}
	m.view.SetDepartment(pick.ID.String())
	m.refresh(true)
	return m, nil
}

func (m *Model) cycleDepartment() {
	if len(m.departments) == 0 {
		m.status = "No departments"
		return
	}
	next := 0
	cur := m.view.DepartmentID()
	for i, d := range m.departments {
		if d.ID.String() == cur {
			next = (i + 1) % len(m.departments)
			break
		}
	}
	m.view.SetDepartment(m.departments[next].ID.String())
	m.resetSelection()
	m.status = "Department: " + m.departments[next].Name
	m.refresh(true)
}

// DepartmentName returns the display name of the active department.
func (m Model) DepartmentName() string {
	id := m.view.DepartmentID()
	for _, d := range m.departments {
		if d.ID.String() == id {
			return d.Name
		}
	}
	return id
}

// =============================================================================
// SELECTION
// =============================================================================

func (m *Model) resetSelection() {
	m.selected = -1
	m.controls = map[model.ID]*approval.Controls{}
	m.showSources = map[model.ID]bool{}
}

func (m Model) selectedID(msgs []model.Message) (model.ID, bool) {
	if m.selected < 0 || m.selected >= len(msgs) {
		return "", false
	}
	return msgs[m.selected].ID, true
}

func (m Model) selectedControls(msgs []model.Message) (*approval.Controls, bool) {
	id, ok := m.selectedID(msgs)
	if !ok || !msgs[m.selected].HasApproval() {
		return nil, false
	}
	c, ok := m.controls[id]
	if !ok {
		c = approval.NewControls(m.backend, m.view, id, m.logger)
		m.controls[id] = c
	}
	return c, true
}

func (m Model) lastAssistant() int {
	msgs := m.view.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			return i
		}
	}
	return -1
}

func (m Model) firstReviewable() int {
	for i, msg := range m.view.Messages() {
		if msg.HasApproval() && !msg.Status.IsTerminal() {
			return i
		}
	}
	return -1
}

func (m Model) stepAssistant(msgs []model.Message, dir int) int {
	for i := m.selected + dir; i >= 0 && i < len(msgs); i += dir {
		if msgs[i].Role == model.RoleAssistant {
			return i
		}
	}
	return m.selected
}

// Focus returns the part of the screen receiving keys.
func (m Model) Focus() Focus {
	return m.focus
}

// Status returns the flash line shown above the input.
func (m Model) Status() string {
	return m.status
}

func decisionVerb(s model.Status) string {
	if s == model.StatusRejected {
		return "Reject"
	}
	return "Approve"
}
