// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package approval implements human review of assistant answers.
//
// Controls is attached to one assistant message in the chat view and flips
// its status only after the server confirms the decision. Queue is the
// reviewer's list of pending approvals across conversations.
package approval
