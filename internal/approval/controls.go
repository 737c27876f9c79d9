// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package approval

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

var (
	// ErrNotOffered is returned when the message has nothing to review.
	ErrNotOffered = errors.New("approval not offered for this message")

	// ErrBusy is returned while a decision is being submitted.
	ErrBusy = errors.New("approval decision already in progress")

	// ErrReasonRequired is returned for a rejection without a reason.
	ErrReasonRequired = errors.New("rejection reason is required")
)

// Backend is the part of the API client approvals need.
type Backend interface {
	Approve(ctx context.Context, id, editedAnswer string) (*model.Approval, error)
	Reject(ctx context.Context, id, reason string) (*model.Approval, error)
}

// StatusSink receives confirmed status changes. *chat.View implements it.
type StatusSink interface {
	Message(id model.ID) (model.Message, bool)
	SetStatus(id model.ID, status model.Status) bool
}

// Controls are the approve/reject actions for one assistant message.
type Controls struct {
	backend   Backend
	sink      StatusSink
	messageID model.ID
	logger    *zap.Logger

	mu   sync.Mutex
	busy bool
}

// NewControls binds controls to a message held by sink.
func NewControls(backend Backend, sink StatusSink, messageID model.ID, logger *zap.Logger) *Controls {
	return &Controls{
		backend:   backend,
		sink:      sink,
		messageID: messageID,
		logger:    logging.OrNop(logger).Named("approval"),
	}
}

// Offered reports whether the message can still be approved or rejected.
func (c *Controls) Offered() bool {
	_, ok := c.target()
	return ok
}

// Busy reports whether a decision is in flight.
func (c *Controls) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controls) target() (model.Message, bool) {
	m, ok := c.sink.Message(c.messageID)
	if !ok || !m.HasApproval() || m.Status.IsTerminal() {
		return model.Message{}, false
	}
	return m, true
}

// Approve confirms the answer, optionally replacing it with editedAnswer.
func (c *Controls) Approve(ctx context.Context, editedAnswer string) error {
	return c.decide(ctx, model.StatusApproved, func(approvalID string) error {
		_, err := c.backend.Approve(ctx, approvalID, strings.TrimSpace(editedAnswer))
		return err
	})
}

// Reject refuses the answer. A blank reason fails before any request.
func (c *Controls) Reject(ctx context.Context, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	return c.decide(ctx, model.StatusRejected, func(approvalID string) error {
		_, err := c.backend.Reject(ctx, approvalID, reason)
		return err
	})
}

func (c *Controls) decide(ctx context.Context, status model.Status, call func(approvalID string) error) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	// The status is read while busy is held, so a decision that finished
	// in the meantime is seen as terminal.
	m, ok := c.target()
	if !ok {
		return ErrNotOffered
	}

	if err := call(m.ApprovalID.String()); err != nil {
		c.logger.Warn("approval decision failed",
			zap.String("approval_id", m.ApprovalID.String()),
			zap.String("decision", string(status)),
			zap.Error(err))
		return err
	}
	c.sink.SetStatus(c.messageID, status)
	c.logger.Info("approval decision recorded",
		zap.String("approval_id", m.ApprovalID.String()),
		zap.String("decision", string(status)))
	return nil
}
