// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the wire and domain types shared by the kops
// client, chat flow, approval flow and training poller.
//
// # Key Types
//
//   - Message: A single turn, with role, status and optional approval id
//   - Conversation: A server-side conversation and its loaded messages
//   - Approval: A human review request for an assistant answer
//   - TrainingJob: A polled fine-tuning job
//   - ID: An identifier that decodes from either a JSON string or number
//
// # Status Vocabulary
//
// Message statuses are completed, pending_approval, approved, rejected and
// error. Approved and rejected are terminal: no action is offered once a
// message reaches them.
package model
