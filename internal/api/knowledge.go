// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

// ListDocuments returns the documents in a department knowledge base.
func (c *Client) ListDocuments(ctx context.Context, departmentID string) ([]model.KnowledgeDoc, error) {
	return List[model.KnowledgeDoc](ctx, c, pathf("/knowledge/%s", departmentID), nil)
}

// UploadDocument ingests a file into a department knowledge base.
func (c *Client) UploadDocument(ctx context.Context, departmentID, title, fileName string, file io.Reader) (*model.KnowledgeDoc, error) {
	form, err := NewMultipart(map[string]string{"title": title}, "file", fileName, file)
	if err != nil {
		return nil, err
	}
	var doc model.KnowledgeDoc
	err = c.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    pathf("/knowledge/%s/upload", departmentID),
		Body:    form,
		Timeout: c.queryTimeout,
	}, &doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes a document. Destructive: callers confirm first.
func (c *Client) DeleteDocument(ctx context.Context, departmentID, docID string) error {
	return c.Delete(ctx, pathf("/knowledge/%s/%s", departmentID, docID))
}

// =============================================================================
// ANALYTICS
// =============================================================================

// Period bounds an analytics query. Zero times are omitted.
type Period struct {
	From time.Time
	To   time.Time
}

func (p Period) values() url.Values {
	q := url.Values{}
	if !p.From.IsZero() {
		q.Set("date_from", p.From.Format(time.DateOnly))
	}
	if !p.To.IsZero() {
		q.Set("date_to", p.To.Format(time.DateOnly))
	}
	return q
}

// UsageStats returns tenant usage for the period.
func (c *Client) UsageStats(ctx context.Context, p Period) (*model.UsageStats, error) {
	s, err := Get[model.UsageStats](ctx, c, "/analytics/usage", p.values())
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AIPerformance returns answer quality trends for the period.
func (c *Client) AIPerformance(ctx context.Context, p Period) (*model.AIPerformance, error) {
	s, err := Get[model.AIPerformance](ctx, c, "/analytics/ai-performance", p.values())
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// =============================================================================
// API KEYS & TEAM
// =============================================================================

// ListAPIKeys returns the tenant's API keys.
func (c *Client) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	return List[model.APIKey](ctx, c, "/api-keys", nil)
}

// CreateAPIKey creates a key. The raw key is only present in this response.
func (c *Client) CreateAPIKey(ctx context.Context, req model.APIKeyRequest) (*model.APIKey, error) {
	k, err := Post[model.APIKey](ctx, c, "/api-keys", req)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// RevokeAPIKey revokes a key. Destructive: callers confirm first.
func (c *Client) RevokeAPIKey(ctx context.Context, id string) error {
	return c.Delete(ctx, pathf("/api-keys/%s", id))
}

// ListUsers returns the tenant's users.
func (c *Client) ListUsers(ctx context.Context) ([]model.Member, error) {
	return List[model.Member](ctx, c, "/users", nil)
}

// InviteUser creates a user in the tenant.
func (c *Client) InviteUser(ctx context.Context, req model.InviteRequest) (*model.Member, error) {
	m, err := Post[model.Member](ctx, c, "/users", req)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
