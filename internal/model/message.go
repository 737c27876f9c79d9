// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status is the lifecycle state of a message.
type Status string

const (
	StatusCompleted       Status = "completed"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusError           Status = "error"
)

// IsTerminal reports whether no approval action may follow this status.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation.
type Message struct {
	ID             ID        `json:"id"`
	ConversationID ID        `json:"conversation_id,omitempty"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Status         Status    `json:"status,omitempty"`
	Confidence     *float64  `json:"confidence,omitempty"`
	Sources        Sources   `json:"sources,omitempty"`
	ModelUsed      string    `json:"model_used,omitempty"`
	LatencyMS      *float64  `json:"latency_ms,omitempty"`
	ApprovalID     ID        `json:"approval_id,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// HasApproval reports whether the message is linked to an approval request.
func (m Message) HasApproval() bool {
	return m.Role == RoleAssistant && !m.ApprovalID.IsZero()
}

// Source is a knowledge-base citation attached to an answer.
type Source struct {
	Title      string  `json:"title"`
	Chunk      string  `json:"chunk,omitempty"`
	Score      float64 `json:"score"`
	DocumentID string  `json:"document_id,omitempty"`
}

// Sources is a list of citations. Query responses send a bare array while
// stored messages wrap it as {"items": [...]}; both decode the same way.
type Sources []Source

// UnmarshalJSON accepts an array, an {"items": [...]} object, or null.
func (s *Sources) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if data[0] == '{' {
		var wrapped struct {
			Items []Source `json:"items"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		*s = wrapped.Items
		return nil
	}
	var list []Source
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = list
	return nil
}
