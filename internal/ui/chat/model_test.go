// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/chat"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/styles"
)

type fakeBackend struct {
	mu        sync.Mutex
	queries   []model.QueryRequest
	approvals []string
	rejects   []string
	convs     []model.ConversationSummary
}

func (f *fakeBackend) Query(_ context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, req)
	return &model.QueryResponse{
		ConversationID: "c1",
		MessageID:      "2",
		Answer:         "Check the **VPN** guide.",
		Confidence:     ptr(0.85),
		NeedsApproval:  true,
		ApprovalID:     "ap-1",
		Sources:        model.Sources{{Title: "VPN guide", Chunk: "Install the client", Score: 0.9}},
	}, nil
}

func (f *fakeBackend) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	if id != "c7" {
		return nil, errors.New("not found")
	}
	return &model.Conversation{
		ConversationSummary: model.ConversationSummary{ID: "c7"},
		Messages:            []model.Message{{ID: "9", Role: model.RoleUser, Content: "old question"}},
	}, nil
}

func (f *fakeBackend) Approve(_ context.Context, id, _ string) (*model.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals = append(f.approvals, id)
	return &model.Approval{ID: model.ID(id), Status: model.ApprovalApproved}, nil
}

func (f *fakeBackend) Reject(_ context.Context, id, reason string) (*model.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects = append(f.rejects, id+":"+reason)
	return &model.Approval{ID: model.ID(id), Status: model.ApprovalRejected}, nil
}

func (f *fakeBackend) ListConversations(context.Context, string, int) ([]model.ConversationSummary, error) {
	return f.convs, nil
}

func (f *fakeBackend) ListDepartments(context.Context) ([]model.Department, error) {
	return []model.Department{{ID: "d1", Name: "IT", Slug: "it"}, {ID: "d2", Name: "HR", Slug: "hr"}}, nil
}

func ptr(f float64) *float64 { return &f }

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+n":
		return tea.KeyMsg{Type: tea.KeyCtrlN}
	case "ctrl+d":
		return tea.KeyMsg{Type: tea.KeyCtrlD}
	case "ctrl+h":
		return tea.KeyMsg{Type: tea.KeyCtrlH}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// runBatch executes cmd and returns the first message of type T it yields.
func runBatch[T tea.Msg](t *testing.T, cmd tea.Cmd) T {
	t.Helper()
	require.NotNil(t, cmd)
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			if out, ok := c().(T); ok {
				return out
			}
		}
		t.Fatalf("no %T in batch", *new(T))
	}
	out, ok := msg.(T)
	require.True(t, ok, "got %T", msg)
	return out
}

func newScreen(t *testing.T) (Model, *fakeBackend, *chat.View) {
	t.Helper()
	b := &fakeBackend{}
	view := chat.NewView(b, "")
	m := New(context.Background(), b, view, Options{Theme: styles.NewTheme(styles.ModeDark), Department: "hr"})
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = send(t, m, runBatch[departmentsMsg](t, m.loadDepartments()))
	return m, b, view
}

func TestScreenSelectsConfiguredDepartment(t *testing.T) {
	m, _, view := newScreen(t)
	assert.Equal(t, "d2", view.DepartmentID())
	assert.Equal(t, "HR", m.DepartmentName())

	m, _ = send(t, m, keyPress("ctrl+d"))
	assert.Equal(t, "d1", view.DepartmentID())
	assert.Equal(t, "Department: IT", m.Status())
}

func TestScreenSendShowsThinkingThenAnswer(t *testing.T) {
	m, b, view := newScreen(t)

	m = typeText(m, "How do I connect to VPN?")
	m, cmd := send(t, m, keyPress("enter"))

	require.Len(t, view.Messages(), 1, "user message shown before the answer")
	assert.True(t, view.Loading())
	assert.Contains(t, m.viewport.View(), "Thinking...")
	assert.Empty(t, m.input.Value())

	m, _ = send(t, m, runBatch[answerMsg](t, cmd))
	assert.False(t, view.Loading())
	require.Len(t, view.Messages(), 2)
	assert.Equal(t, "d2", b.queries[0].DepartmentID)

	out := m.viewport.View()
	assert.Contains(t, out, "Pending human review")
	assert.Contains(t, out, "85% confidence")
}

func TestScreenApproveSelectedAnswer(t *testing.T) {
	m, b, view := newScreen(t)
	m = typeText(m, "q")
	m, cmd := send(t, m, keyPress("enter"))
	m, _ = send(t, m, runBatch[answerMsg](t, cmd))

	m, _ = send(t, m, keyPress("tab"))
	assert.Equal(t, FocusReview, m.Focus())

	m, cmd = send(t, m, keyPress("a"))
	m, _ = send(t, m, runBatch[decisionMsg](t, cmd))

	assert.Equal(t, []string{"ap-1"}, b.approvals)
	msg, ok := view.Message("2")
	require.True(t, ok)
	assert.Equal(t, model.StatusApproved, msg.Status)
	assert.Equal(t, "Approved by reviewer", m.Status())
}

func TestScreenRejectPromptsForReason(t *testing.T) {
	m, b, view := newScreen(t)
	m = typeText(m, "q")
	m, cmd := send(t, m, keyPress("enter"))
	m, _ = send(t, m, runBatch[answerMsg](t, cmd))
	m, _ = send(t, m, keyPress("tab"))

	m, _ = send(t, m, keyPress("r"))
	assert.Equal(t, FocusReason, m.Focus())

	m, cmd = send(t, m, keyPress("enter"))
	assert.Nil(t, cmd, "blank reason sends nothing")
	assert.Equal(t, FocusReason, m.Focus())

	m = typeText(m, "outdated")
	m, cmd = send(t, m, keyPress("enter"))
	m, _ = send(t, m, runBatch[decisionMsg](t, cmd))

	assert.Equal(t, []string{"ap-1:outdated"}, b.rejects)
	msg, _ := view.Message("2")
	assert.Equal(t, model.StatusRejected, msg.Status)
	assert.Equal(t, FocusReview, m.Focus())
}

func TestScreenToggleSources(t *testing.T) {
	m, _, _ := newScreen(t)
	m = typeText(m, "q")
	m, cmd := send(t, m, keyPress("enter"))
	m, _ = send(t, m, runBatch[answerMsg](t, cmd))
	m, _ = send(t, m, keyPress("tab"))

	assert.NotContains(t, m.viewport.View(), "Install the client")
	m, _ = send(t, m, keyPress("s"))
	assert.Contains(t, m.viewport.View(), "Install the client")
}

func TestScreenHistoryOpensConversation(t *testing.T) {
	m, b, view := newScreen(t)
	b.convs = []model.ConversationSummary{{ID: "c5", Title: "Printers"}, {ID: "c7", Title: "Laptops"}}

	m, cmd := send(t, m, keyPress("ctrl+h"))
	assert.Equal(t, FocusHistory, m.Focus())
	m, _ = send(t, m, runBatch[historyMsg](t, cmd))
	assert.Contains(t, m.View(), "Laptops")

	m, _ = send(t, m, keyPress("down"))
	m, cmd = send(t, m, keyPress("enter"))
	m, _ = send(t, m, runBatch[openedMsg](t, cmd))

	assert.Equal(t, FocusInput, m.Focus())
	assert.Equal(t, "c7", view.ConversationID())
	assert.Contains(t, m.viewport.View(), "old question")
}

func TestScreenNewChatClears(t *testing.T) {
	m, _, view := newScreen(t)
	m = typeText(m, "q")
	m, cmd := send(t, m, keyPress("enter"))
	m, _ = send(t, m, runBatch[answerMsg](t, cmd))

	m, _ = send(t, m, keyPress("ctrl+n"))
	assert.Empty(t, view.Messages())
	assert.Empty(t, view.ConversationID())
	assert.True(t, strings.Contains(m.View(), "new chat"))
}

func TestScreenQuit(t *testing.T) {
	m, _, _ := newScreen(t)
	_, cmd := send(t, m, keyPress("ctrl+c"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestRenderMessageMeta(t *testing.T) {
	theme := styles.NewTheme(styles.ModeDark)
	msg := model.Message{
		Role:       model.RoleAssistant,
		Content:    "answer",
		Confidence: ptr(0.42),
		ModelUsed:  "llama3",
		LatencyMS:  ptr(1200),
		Status:     model.StatusCompleted,
	}
	out := RenderMessage(theme, nil, msg, RenderOptions{Width: 80})
	assert.Contains(t, out, "42% confidence")
	assert.Contains(t, out, "llama3")
	assert.Contains(t, out, "1200ms")
	assert.NotContains(t, out, "Pending human review")

	errMsg := model.Message{Role: model.RoleAssistant, Content: "Sorry", Status: model.StatusError, Confidence: ptr(1)}
	assert.Empty(t, MetaLine(theme, errMsg))
}
