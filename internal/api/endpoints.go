// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/patrickmn/go-cache"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

// =============================================================================
// AUTH
// =============================================================================

// Login exchanges credentials for a bearer token and installs it in the
// token cache. The caller persists the response through the session store.
func (c *Client) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   model.LoginRequest{Email: email, Password: password},
		NoAuth: true,
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.Detail == "" {
				apiErr.Detail = "Authentication failed"
			}
			return nil, fmt.Errorf("%w: %w", ErrLoginFailed, apiErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carried no access token", ErrLoginFailed)
	}

	c.tokens.Set(resp.AccessToken)
	c.departments.Flush()
	return &resp, nil
}

// =============================================================================
// DEPARTMENTS
// =============================================================================

// ListDepartments returns the tenant's departments. The list is memoised for
// a minute per login; mutations through this client invalidate it.
func (c *Client) ListDepartments(ctx context.Context) ([]model.Department, error) {
	key := "departments:" + strconv.FormatUint(c.tokens.Generation(), 10)
	if v, ok := c.departments.Get(key); ok {
		return v.([]model.Department), nil
	}
	depts, err := List[model.Department](ctx, c, "/departments", nil)
	if err != nil {
		return nil, err
	}
	c.departments.Set(key, depts, cache.DefaultExpiration)
	return depts, nil
}

// CreateDepartment creates a department.
func (c *Client) CreateDepartment(ctx context.Context, in model.DepartmentInput) (*model.Department, error) {
	d, err := Post[model.Department](ctx, c, "/departments", in)
	if err != nil {
		return nil, err
	}
	c.departments.Flush()
	return &d, nil
}

// UpdateDepartment applies the non-nil fields of in.
func (c *Client) UpdateDepartment(ctx context.Context, id string, in model.DepartmentInput) (*model.Department, error) {
	d, err := Put[model.Department](ctx, c, pathf("/departments/%s", id), in)
	if err != nil {
		return nil, err
	}
	c.departments.Flush()
	return &d, nil
}

// ArchiveDepartment archives a department. Destructive: callers confirm first.
func (c *Client) ArchiveDepartment(ctx context.Context, id string) error {
	if err := c.Delete(ctx, pathf("/departments/%s", id)); err != nil {
		return err
	}
	c.departments.Flush()
	return nil
}

// =============================================================================
// CONVERSATIONS & QUERY
// =============================================================================

// ListConversations returns recent conversations, optionally for one department.
func (c *Client) ListConversations(ctx context.Context, departmentID string, limit int) ([]model.ConversationSummary, error) {
	q := url.Values{}
	if departmentID != "" {
		q.Set("department_id", departmentID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return List[model.ConversationSummary](ctx, c, "/conversations", q)
}

// GetConversation loads a conversation with its messages.
func (c *Client) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := Get[model.Conversation](ctx, c, pathf("/conversations/%s", id), nil)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// DeleteConversation deletes a conversation. Destructive: callers confirm first.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.Delete(ctx, pathf("/conversations/%s", id))
}

// Query submits a question. It uses the extended query timeout.
func (c *Client) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	var resp model.QueryResponse
	err := c.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    "/query",
		Body:    req,
		Timeout: c.queryTimeout,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// =============================================================================
// APPROVALS
// =============================================================================

// ListApprovals returns approvals with the given status ("" = all).
func (c *Client) ListApprovals(ctx context.Context, status model.ApprovalStatus) ([]model.Approval, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	return List[model.Approval](ctx, c, "/approvals", q)
}

// Approve approves an answer, optionally replacing it with edited text.
func (c *Client) Approve(ctx context.Context, id, editedAnswer string) (*model.Approval, error) {
	a, err := Post[model.Approval](ctx, c, pathf("/approvals/%s/approve", id), model.ApproveRequest{ApprovedAnswer: editedAnswer})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Reject rejects an answer with a reason.
func (c *Client) Reject(ctx context.Context, id, reason string) (*model.Approval, error) {
	a, err := Post[model.Approval](ctx, c, pathf("/approvals/%s/reject", id), model.RejectRequest{RejectionReason: reason})
	if err != nil {
		return nil, err
	}
	return &a, nil
}
