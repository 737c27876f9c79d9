// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// ApprovalStatus is the review state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending      ApprovalStatus = "pending"
	ApprovalApproved     ApprovalStatus = "approved"
	ApprovalRejected     ApprovalStatus = "rejected"
	ApprovalAutoApproved ApprovalStatus = "auto_approved"
)

// Approval is a human review request for an assistant answer.
type Approval struct {
	ID              ID             `json:"id"`
	MessageID       ID             `json:"message_id"`
	ConversationID  ID             `json:"conversation_id,omitempty"`
	DepartmentID    ID             `json:"department_id"`
	RequestedBy     ID             `json:"requested_by,omitempty"`
	ReviewedBy      ID             `json:"reviewed_by,omitempty"`
	Status          ApprovalStatus `json:"status"`
	OriginalAnswer  string         `json:"original_answer"`
	ApprovedAnswer  string         `json:"approved_answer,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	Priority        string         `json:"priority,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ApproveRequest is the body of POST /approvals/:id/approve.
type ApproveRequest struct {
	ApprovedAnswer string `json:"approved_answer,omitempty"`
}

// RejectRequest is the body of POST /approvals/:id/reject.
type RejectRequest struct {
	RejectionReason string `json:"rejection_reason"`
}
