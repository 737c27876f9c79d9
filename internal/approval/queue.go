// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package approval

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

// QueueBackend lists and decides approvals.
type QueueBackend interface {
	Backend
	ListApprovals(ctx context.Context, status model.ApprovalStatus) ([]model.Approval, error)
}

// Queue is the reviewer's list of pending approvals.
type Queue struct {
	backend QueueBackend
	logger  *zap.Logger

	mu      sync.RWMutex
	pending []model.Approval
}

// NewQueue creates an empty queue. Call Refresh to populate it.
func NewQueue(backend QueueBackend, logger *zap.Logger) *Queue {
	return &Queue{backend: backend, logger: logging.OrNop(logger).Named("approval-queue")}
}

// Refresh reloads pending approvals. On failure the previous list is kept
// and the error is returned.
func (q *Queue) Refresh(ctx context.Context) error {
	list, err := q.backend.ListApprovals(ctx, model.ApprovalPending)
	if err != nil {
		q.logger.Warn("failed to load pending approvals", zap.Error(err))
		return err
	}
	q.mu.Lock()
	q.pending = list
	q.mu.Unlock()
	return nil
}

// Pending returns a copy of the last loaded list.
func (q *Queue) Pending() []model.Approval {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]model.Approval(nil), q.pending...)
}

// Find returns the pending approval with the given id.
func (q *Queue) Find(id string) (model.Approval, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, a := range q.pending {
		if a.ID.String() == id {
			return a, true
		}
	}
	return model.Approval{}, false
}

// Approve approves id and refreshes the list.
func (q *Queue) Approve(ctx context.Context, id, editedAnswer string) error {
	if _, err := q.backend.Approve(ctx, id, strings.TrimSpace(editedAnswer)); err != nil {
		return err
	}
	q.refreshAfter(ctx, id)
	return nil
}

// Reject rejects id with reason and refreshes the list.
func (q *Queue) Reject(ctx context.Context, id, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if _, err := q.backend.Reject(ctx, id, reason); err != nil {
		return err
	}
	q.refreshAfter(ctx, id)
	return nil
}

// refreshAfter drops the decided entry even if the reload fails.
func (q *Queue) refreshAfter(ctx context.Context, decided string) {
	q.mu.Lock()
	kept := q.pending[:0:0]
	for _, a := range q.pending {
		if a.ID.String() != decided {
			kept = append(kept, a)
		}
	}
	q.pending = kept
	q.mu.Unlock()
	if err := q.Refresh(ctx); err != nil {
		q.logger.Debug("reload after decision failed", zap.String("decided", decided), zap.Error(err))
	}
}
