// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package training provides the fine-tuning screen of the kops TUI: a
// short form to start a job and a progress view that follows it.
package training

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/training"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/styles"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/util"
)

// BackMsg asks the parent to leave the training screen.
type BackMsg struct{}

// updateMsg carries a poller state change. ok is false once the poller
// was closed.
type updateMsg struct {
	job model.TrainingJob
	ok  bool
}

// startedMsg carries the result of submitting a job.
type startedMsg struct{ err error }

// ModelsMsg carries the trained model list reloaded after a job
// completed.
type ModelsMsg struct {
	Models []model.TrainedModel
	Err    error
}

// maxListedModels caps the trained model list under the job view.
const maxListedModels = 5

// Handles reports whether msg is addressed to the training screen. The
// parent forwards these even while another screen is showing.
func Handles(msg tea.Msg) bool {
	switch msg.(type) {
	case updateMsg, startedMsg, ModelsMsg:
		return true
	}
	return false
}

const (
	fieldMethod = iota
	fieldBaseModel
	fieldConfig
)

// Model is the Bubble Tea model for the training screen.
type Model struct {
	ctx    context.Context
	poller *training.Poller
	theme  *styles.Theme

	inputs   []textinput.Model
	focus    int
	bar      progress.Model
	job      model.TrainingJob
	err      string
	starting bool
	width    int

	models    []model.TrainedModel
	modelsErr string
}

// New creates the training screen over poller. The form is prefilled
// with the quick setup method and base model.
func New(ctx context.Context, poller *training.Poller, theme *styles.Theme) Model {
	if theme == nil {
		theme = styles.NewTheme(styles.ModeAuto)
	}
	method := textinput.New()
	method.Prompt = "Method      "
	method.SetValue(training.QuickSetupMethod.MethodKey)
	method.Focus()

	base := textinput.New()
	base.Prompt = "Base model  "
	base.SetValue(training.QuickSetupBaseModel.ModelName)

	cfg := textinput.New()
	cfg.Prompt = "Overrides   "
	cfg.Placeholder = `{"lora_r": 16}`

	return Model{
		ctx:    ctx,
		poller: poller,
		theme:  theme,
		inputs: []textinput.Model{method, base, cfg},
		bar:    progress.New(progress.WithDefaultGradient()),
		job:    poller.Snapshot(),
	}
}

// Init subscribes to poller updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForUpdate(m.poller))
}

func waitForUpdate(p *training.Poller) tea.Cmd {
	return func() tea.Msg {
		job, ok := <-p.Updates()
		return updateMsg{job: job, ok: ok}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-10, 10)
		return m, nil

	case updateMsg:
		if !msg.ok {
			return m, nil
		}
		m.job = msg.job
		return m, waitForUpdate(m.poller)

	case ModelsMsg:
		if msg.Err != nil {
			m.modelsErr = "Could not reload trained models: " + api.ErrorDetail(msg.Err)
			return m, nil
		}
		m.modelsErr = ""
		m.models = msg.Models
		return m, nil

	case startedMsg:
		m.starting = false
		if msg.err != nil {
			m.err = api.ErrorDetail(msg.err)
		}
		m.job = m.poller.Snapshot()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			return m, func() tea.Msg { return BackMsg{} }
		case "tab", "down":
			m.setFocus((m.focus + 1) % len(m.inputs))
			return m, textinput.Blink
		case "shift+tab", "up":
			m.setFocus((m.focus + len(m.inputs) - 1) % len(m.inputs))
			return m, textinput.Blink
		case "enter":
			return m.start()
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

// Active reports whether a job is queued or running.
func (m Model) Active() bool {
	return m.starting || m.job.Status == model.JobQueued || m.job.Status == model.JobRunning
}

func (m Model) start() (tea.Model, tea.Cmd) {
	if m.Active() {
		m.err = training.ErrJobActive.Error()
		return m, nil
	}
	overrides, err := training.ParseConfig(m.inputs[fieldConfig].Value())
	if err != nil {
		m.err = err.Error()
		return m, nil
	}
	req := model.TrainRequest{
		MethodKey:       strings.TrimSpace(m.inputs[fieldMethod].Value()),
		BaseModelName:   strings.TrimSpace(m.inputs[fieldBaseModel].Value()),
		ConfigOverrides: overrides,
	}
	if err := training.ValidateRequest(req); err != nil {
		m.err = err.Error()
		return m, nil
	}
	m.err = ""
	m.starting = true
	ctx, p := m.ctx, m.poller
	return m, func() tea.Msg {
		err := p.Start(ctx, req)
		if errors.Is(err, training.ErrClosed) {
			return nil
		}
		return startedMsg{err: err}
	}
}

// Job returns the job state last seen by the screen.
func (m Model) Job() model.TrainingJob {
	return m.job
}

// Models returns the trained model list last reloaded.
func (m Model) Models() []model.TrainedModel {
	return m.models
}

// Err returns the error shown on the form.
func (m Model) Err() string {
	return m.err
}

// View renders the training screen.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Fine-tune a model"))
	b.WriteString("\n\n")
	for _, in := range m.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.jobView())
	if list := m.modelsView(); list != "" {
		b.WriteString("\n\n")
		b.WriteString(list)
	}
	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.ErrorStyle.Render(m.err))
	}
	b.WriteString("\n\n")
	b.WriteString(m.theme.MutedStyle.Render("enter start · tab next field · esc back"))
	return m.theme.FormBox.Render(b.String())
}

func (m Model) jobView() string {
	job := m.job
	if m.starting {
		return m.theme.ThinkingText.Render("Submitting job...")
	}
	if job.Status == "" || job.Status == model.JobIdle {
		return m.theme.MutedStyle.Render("No job running")
	}

	var b strings.Builder
	label := util.Label(string(job.Status))
	switch job.Status {
	case model.JobCompleted:
		label = m.theme.SuccessStyle.Render(label)
	case model.JobFailed:
		label = m.theme.ErrorStyle.Render(label)
	default:
		label = m.theme.WarningStyle.Render(label)
	}
	if job.ID != "" {
		label += m.theme.Meta.Render("  job " + job.ID)
	}
	b.WriteString(label)
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(float64(job.Progress) / 100))
	if job.StatusMessage != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.Meta.Render(job.StatusMessage))
	}
	if job.Error != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.ErrorStyle.Render(job.Error))
	}
	if len(job.Metrics) > 0 {
		b.WriteString("\n")
		b.WriteString(formatMetrics(job.Metrics))
	}
	return b.String()
}

func (m Model) modelsView() string {
	if m.modelsErr != "" {
		return m.theme.WarningStyle.Render(m.modelsErr)
	}
	if len(m.models) == 0 {
		return ""
	}
	width := max(m.width-8, 20)
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Trained models"))
	for i, tm := range m.models {
		if i == maxListedModels {
			b.WriteString("\n")
			b.WriteString(m.theme.Meta.Render(fmt.Sprintf("and %d more (kops models)", len(m.models)-i)))
			break
		}
		line := fmt.Sprintf("%s  %s  %s", tm.Name, util.Label(tm.Status), tm.BaseModel)
		b.WriteString("\n")
		b.WriteString(util.TruncateWidth(line, width))
	}
	return b.String()
}

func formatMetrics(metrics map[string]any) string {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, metrics[k]))
	}
	return strings.Join(parts, "  ")
}
