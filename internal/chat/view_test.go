// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

type fakeBackend struct {
	mu       sync.Mutex
	requests []model.QueryRequest
	answer   func(req model.QueryRequest) (*model.QueryResponse, error)
	convs    map[string]*model.Conversation
	convErr  error

	// gate, when set, blocks Query until closed.
	gate chan struct{}
}

func (f *fakeBackend) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.answer(req)
}

func (f *fakeBackend) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	if f.convErr != nil {
		return nil, f.convErr
	}
	c, ok := f.convs[id]
	if !ok {
		return nil, api.ErrNotFound
	}
	return c, nil
}

func (f *fakeBackend) sent() []model.QueryRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.QueryRequest(nil), f.requests...)
}

func counterIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("local-%d", n)
	}
}

func ptr(f float64) *float64 { return &f }

func TestSubmitAppendsUserMessageSynchronously(t *testing.T) {
	b := &fakeBackend{answer: func(model.QueryRequest) (*model.QueryResponse, error) {
		return &model.QueryResponse{ConversationID: "c1", MessageID: "1", Answer: "ok"}, nil
	}}
	v := NewView(b, "d1", WithIDGenerator(counterIDs()))

	ex, err := v.Submit("  What is the VPN policy?  ", nil)
	require.NoError(t, err)

	msgs := v.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "What is the VPN policy?", msgs[0].Content)
	assert.Equal(t, model.StatusCompleted, msgs[0].Status)
	assert.True(t, v.Loading())
	assert.Empty(t, b.sent(), "no request before Resolve")

	ex.Resolve(context.Background())
	assert.False(t, v.Loading())
	assert.Equal(t, msgs[0], v.Messages()[0], "user message is never rewritten")
}

func TestFirstAnswerAdoptsConversationID(t *testing.T) {
	b := &fakeBackend{answer: func(model.QueryRequest) (*model.QueryResponse, error) {
		return &model.QueryResponse{ConversationID: "c1", MessageID: "42", Answer: "Use the portal."}, nil
	}}
	var created []string
	v := NewView(b, "d1", WithConversationCreated(func(id string) { created = append(created, id) }))

	out, err := v.SendMessage(context.Background(), "first", nil)
	require.NoError(t, err)
	assert.True(t, out.ConversationCreated)

	_, err = v.SendMessage(context.Background(), "second", nil)
	require.NoError(t, err)

	reqs := b.sent()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].ConversationID)
	assert.Equal(t, "d1", reqs[0].DepartmentID)
	assert.Equal(t, "c1", reqs[1].ConversationID)
	assert.Equal(t, []string{"c1"}, created, "callback fires once")
	assert.Equal(t, "c1", v.ConversationID())
}

func TestSendCompletedAnswer(t *testing.T) {
	b := &fakeBackend{answer: func(model.QueryRequest) (*model.QueryResponse, error) {
		return &model.QueryResponse{
			ConversationID: "c1",
			MessageID:      "7",
			Answer:         "Reset it from the self-service page.",
			Confidence:     ptr(0.91),
			ModelUsed:      "llama3",
			LatencyMS:      ptr(812),
			Sources:        model.Sources{{Title: "IT handbook", Score: 0.8}},
		}, nil
	}}
	v := NewView(b, "d1")

	out, err := v.SendMessage(context.Background(), "How do I reset my password?", nil)
	require.NoError(t, err)
	require.NoError(t, out.Err)

	msgs := v.Messages()
	require.Len(t, msgs, 2)
	a := msgs[1]
	assert.Equal(t, model.ID("7"), a.ID)
	assert.Equal(t, model.RoleAssistant, a.Role)
	assert.Equal(t, model.StatusCompleted, a.Status)
	assert.Equal(t, "llama3", a.ModelUsed)
	require.NotNil(t, a.Confidence)
	assert.InDelta(t, 0.91, *a.Confidence, 1e-9)
	assert.Len(t, a.Sources, 1)
	assert.False(t, a.HasApproval())
}

func TestSendAnswerNeedingApproval(t *testing.T) {
	b := &fakeBackend{answer: func(model.QueryRequest) (*model.QueryResponse, error) {
		return &model.QueryResponse{
			ConversationID: "c1",
			MessageID:      "8",
			Answer:         "Probably yes.",
			NeedsApproval:  true,
			ApprovalID:     "ap-1",
		}, nil
	}}
	v := NewView(b, "d1")

	out, err := v.SendMessage(context.Background(), "Can I expense this?", nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingApproval, out.Message.Status)
	assert.Equal(t, model.ID("ap-1"), out.Message.ApprovalID)
	assert.True(t, out.Message.HasApproval())
}

func TestSendTimeoutAppendsOneErrorMessage(t *testing.T) {
	b := &fakeBackend{answer: func(model.QueryRequest) (*model.QueryResponse, error) {
		return nil, fmt.Errorf("%w: POST /query after 2m0s", api.ErrTimeout)
	}}
	v := NewView(b, "d1")

	out, err := v.SendMessage(context.Background(), "slow question", nil)
	require.NoError(t, err)
	require.ErrorIs(t, out.Err, api.ErrTimeout)

	msgs := v.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.StatusError, msgs[1].Status)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Sorry, I encountered an error processing your request: ")
	assert.Contains(t, msgs[1].Content, "POST /query")
	assert.False(t, v.Loading())
}

func TestSendErrorUsesServerDetail(t *testing.T) {
	b := &fakeBackend{answer: func(model.QueryRequest) (*model.QueryResponse, error) {
		return nil, &api.APIError{Status: 500, Detail: "LLM unavailable"}
	}}
	v := NewView(b, "d1")

	out, _ := v.SendMessage(context.Background(), "q", nil)
	assert.Equal(t, "Sorry, I encountered an error processing your request: LLM unavailable", out.Message.Content)
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	b := &fakeBackend{}
	v := NewView(b, "d1")

	_, err := v.Submit("   ", nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, v.Messages())
	assert.False(t, v.Loading())
	assert.Empty(t, b.sent())
}

func TestSubmitAcceptsImageWithoutText(t *testing.T) {
	b := &fakeBackend{answer: func(model.QueryRequest) (*model.QueryResponse, error) {
		return &model.QueryResponse{ConversationID: "c1", Answer: "I cannot see images."}, nil
	}}
	v := NewView(b, "d1")

	out, err := v.SendMessage(context.Background(), "", &Attachment{Name: "shot.png", Data: []byte{1}})
	require.NoError(t, err)
	assert.False(t, out.Message.ID.IsZero(), "missing server id gets a local one")
	assert.Len(t, v.Messages(), 2)
}

func TestSubmitWhileLoadingIsBusy(t *testing.T) {
	b := &fakeBackend{}
	v := NewView(b, "d1")

	_, err := v.Submit("one", nil)
	require.NoError(t, err)
	_, err = v.Submit("two", nil)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Len(t, v.Messages(), 1)
}

func TestSubmitWithoutDepartment(t *testing.T) {
	v := NewView(&fakeBackend{}, "")
	_, err := v.Submit("hello", nil)
	assert.ErrorIs(t, err, ErrNoDepartment)
}

func TestStaleExchangeIsDiscarded(t *testing.T) {
	b := &fakeBackend{
		gate: make(chan struct{}),
		answer: func(model.QueryRequest) (*model.QueryResponse, error) {
			return &model.QueryResponse{ConversationID: "old", Answer: "late"}, nil
		},
	}
	var created int
	v := NewView(b, "d1", WithConversationCreated(func(string) { created++ }))

	ex, err := v.Submit("question", nil)
	require.NoError(t, err)

	done := make(chan Outcome, 1)
	go func() { done <- ex.Resolve(context.Background()) }()

	v.NewChat()
	assert.False(t, v.Loading(), "switch resets loading")
	close(b.gate)

	out := <-done
	assert.True(t, out.Stale)
	assert.Empty(t, v.Messages())
	assert.Empty(t, v.ConversationID())
	assert.Zero(t, created)
}

func TestOpenLoadsHistory(t *testing.T) {
	conv := &model.Conversation{
		ConversationSummary: model.ConversationSummary{ID: "c9", DepartmentID: "d2"},
		Messages: []model.Message{
			{ID: "1", Role: model.RoleUser, Content: "hi"},
			{ID: "2", Role: model.RoleAssistant, Content: "hello", Status: model.StatusPendingApproval, ApprovalID: "ap"},
		},
	}
	b := &fakeBackend{convs: map[string]*model.Conversation{"c9": conv}}
	v := NewView(b, "d1")

	v.Open(context.Background(), "c9")
	assert.Equal(t, "c9", v.ConversationID())
	assert.Equal(t, "d2", v.DepartmentID())
	assert.Len(t, v.Messages(), 2)
}

func TestOpenFailureLeavesEmptyConversation(t *testing.T) {
	b := &fakeBackend{convErr: errors.New("boom")}
	v := NewView(b, "d1")

	v.Open(context.Background(), "c9")
	assert.Empty(t, v.Messages())
	assert.Equal(t, "c9", v.ConversationID())
	assert.False(t, v.Loading())
}

func TestSetDepartmentStartsNewChat(t *testing.T) {
	b := &fakeBackend{answer: func(model.QueryRequest) (*model.QueryResponse, error) {
		return &model.QueryResponse{ConversationID: "c1", Answer: "a"}, nil
	}}
	v := NewView(b, "d1")
	_, err := v.SendMessage(context.Background(), "q", nil)
	require.NoError(t, err)

	v.SetDepartment("d2")
	assert.Empty(t, v.Messages())
	assert.Empty(t, v.ConversationID())
	assert.Equal(t, "d2", v.DepartmentID())
}

func TestSetStatus(t *testing.T) {
	b := &fakeBackend{answer: func(model.QueryRequest) (*model.QueryResponse, error) {
		return &model.QueryResponse{ConversationID: "c1", MessageID: "5", NeedsApproval: true, ApprovalID: "ap"}, nil
	}}
	v := NewView(b, "d1")
	_, err := v.SendMessage(context.Background(), "q", nil)
	require.NoError(t, err)

	assert.True(t, v.SetStatus("5", model.StatusApproved))
	m, ok := v.Message("5")
	require.True(t, ok)
	assert.Equal(t, model.StatusApproved, m.Status)
	assert.False(t, v.SetStatus("nope", model.StatusApproved))
}

func TestResolveTwiceIsNoop(t *testing.T) {
	b := &fakeBackend{answer: func(model.QueryRequest) (*model.QueryResponse, error) {
		return &model.QueryResponse{ConversationID: "c1", Answer: "a"}, nil
	}}
	v := NewView(b, "d1")
	ex, err := v.Submit("q", nil)
	require.NoError(t, err)

	ex.Resolve(context.Background())
	out := ex.Resolve(context.Background())
	assert.True(t, out.Stale)
	assert.Len(t, b.sent(), 1)
	assert.Len(t, v.Messages(), 2)
}
