// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// ConversationSummary is a row of the conversation history list.
type ConversationSummary struct {
	ID            ID         `json:"id"`
	DepartmentID  ID         `json:"department_id"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	MessageCount  int        `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DisplayTitle returns the title or a placeholder for untitled conversations.
func (c ConversationSummary) DisplayTitle() string {
	if c.Title == "" {
		return "Untitled conversation"
	}
	return c.Title
}

// Conversation is a conversation with its full message history.
type Conversation struct {
	ConversationSummary
	Messages []Message `json:"messages"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Text           string `json:"text"`
	DepartmentID   string `json:"department_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// QueryResponse is the answer to a query.
type QueryResponse struct {
	ConversationID ID       `json:"conversation_id"`
	MessageID      ID       `json:"message_id"`
	Answer         string   `json:"answer"`
	Confidence     *float64 `json:"confidence,omitempty"`
	Sources        Sources  `json:"sources,omitempty"`
	ModelUsed      string   `json:"model_used,omitempty"`
	LatencyMS      *float64 `json:"latency_ms,omitempty"`
	NeedsApproval  bool     `json:"needs_approval"`
	ApprovalID     ID       `json:"approval_id,omitempty"`
}
