// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package approval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/chat"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

// reviewServer answers /query with a pending answer and records decisions.
type reviewServer struct {
	decideStatus int
	approves     atomic.Int32
	rejects      atomic.Int32
	lastReason   atomic.Value
	lastEdited   atomic.Value
	release      chan struct{}
}

func (s *reviewServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/query":
		w.Write([]byte(`{"conversation_id":"c1","message_id":11,"answer":"Maybe.","needs_approval":true,"approval_id":"ap-1"}`))
	case "/api/v1/approvals/ap-1/approve":
		s.approves.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.lastEdited.Store(body["approved_answer"])
		if s.release != nil {
			<-s.release
		}
		s.respond(w, "approved")
	case "/api/v1/approvals/ap-1/reject":
		s.rejects.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.lastReason.Store(body["rejection_reason"])
		s.respond(w, "rejected")
	default:
		http.NotFound(w, r)
	}
}

func (s *reviewServer) respond(w http.ResponseWriter, status string) {
	if s.decideStatus != 0 {
		w.WriteHeader(s.decideStatus)
		w.Write([]byte(`{"detail":"Approval already resolved"}`))
		return
	}
	w.Write([]byte(`{"id":"ap-1","message_id":11,"status":"` + status + `"}`))
}

func setup(t *testing.T, srv *reviewServer) (*api.Client, *chat.View, *Controls) {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	tokens := api.NewTokenCache(api.TokenSourceFunc(func(context.Context) (string, error) { return "tok", nil }))
	client := api.NewClient(tokens, api.Options{BaseURL: ts.URL, HTTPClient: ts.Client()})

	view := chat.NewView(client, "d1")
	out, err := view.SendMessage(context.Background(), "Can I work remotely from abroad?", nil)
	require.NoError(t, err)
	require.Equal(t, model.StatusPendingApproval, out.Message.Status)

	return client, view, NewControls(client, view, out.Message.ID, nil)
}

func statusOf(t *testing.T, v *chat.View, id model.ID) model.Status {
	t.Helper()
	m, ok := v.Message(id)
	require.True(t, ok)
	return m.Status
}

func TestControlsApproveFlipsStatusAfterConfirmation(t *testing.T) {
	srv := &reviewServer{}
	_, view, ctl := setup(t, srv)

	require.True(t, ctl.Offered())
	require.NoError(t, ctl.Approve(context.Background(), "  Yes, with manager sign-off.  "))

	assert.Equal(t, model.StatusApproved, statusOf(t, view, "11"))
	assert.Equal(t, "Yes, with manager sign-off.", srv.lastEdited.Load())
	assert.False(t, ctl.Offered(), "controls hide once decided")

	assert.ErrorIs(t, ctl.Approve(context.Background(), ""), ErrNotOffered)
	assert.Equal(t, int32(1), srv.approves.Load())
}

func TestControlsRejectRequiresReason(t *testing.T) {
	srv := &reviewServer{}
	_, view, ctl := setup(t, srv)

	err := ctl.Reject(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrReasonRequired)
	assert.Zero(t, srv.rejects.Load(), "no request for a blank reason")
	assert.Equal(t, model.StatusPendingApproval, statusOf(t, view, "11"))

	require.NoError(t, ctl.Reject(context.Background(), "Policy forbids it"))
	assert.Equal(t, model.StatusRejected, statusOf(t, view, "11"))
	assert.Equal(t, "Policy forbids it", srv.lastReason.Load())
}

func TestControlsFailureLeavesStatus(t *testing.T) {
	srv := &reviewServer{decideStatus: http.StatusBadRequest}
	_, view, ctl := setup(t, srv)

	err := ctl.Approve(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, "Approval already resolved", api.ErrorDetail(err))
	assert.Equal(t, model.StatusPendingApproval, statusOf(t, view, "11"))
	assert.True(t, ctl.Offered())
	assert.False(t, ctl.Busy(), "controls re-enabled")
}

func TestControlsRejectDoubleSubmit(t *testing.T) {
	srv := &reviewServer{release: make(chan struct{})}
	_, view, ctl := setup(t, srv)

	done := make(chan error, 1)
	go func() { done <- ctl.Approve(context.Background(), "") }()

	require.Eventually(t, func() bool { return srv.approves.Load() == 1 }, testTimeout, testTick)
	assert.ErrorIs(t, ctl.Approve(context.Background(), ""), ErrBusy)

	close(srv.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), srv.approves.Load())
	assert.Equal(t, model.StatusApproved, statusOf(t, view, "11"))
}

// pausingSink holds the first status read until release is closed.
type pausingSink struct {
	*chat.View
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *pausingSink) Message(id model.ID) (model.Message, bool) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.View.Message(id)
}

func TestControlsStatusReadHoldsBusy(t *testing.T) {
	srv := &reviewServer{}
	client, view, first := setup(t, srv)

	sink := &pausingSink{View: view, entered: make(chan struct{}), release: make(chan struct{})}
	ctl := NewControls(client, sink, first.messageID, nil)

	done := make(chan error, 1)
	go func() { done <- ctl.Approve(context.Background(), "") }()
	<-sink.entered

	// A second press while the first is still reading the status.
	assert.ErrorIs(t, ctl.Approve(context.Background(), ""), ErrBusy)

	close(sink.release)
	require.NoError(t, <-done)
	assert.Equal(t, model.StatusApproved, statusOf(t, view, "11"))

	assert.ErrorIs(t, ctl.Approve(context.Background(), ""), ErrNotOffered)
	assert.Equal(t, int32(1), srv.approves.Load())
}

func TestControlsNotOfferedForPlainAnswer(t *testing.T) {
	view := chat.NewView(nil, "d1")
	ctl := NewControls(nil, view, "missing", nil)
	assert.False(t, ctl.Offered())
	assert.ErrorIs(t, ctl.Reject(context.Background(), "why"), ErrNotOffered)
}
