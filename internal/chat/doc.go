// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat holds the message list of the active conversation and runs
// the send flow against the query endpoint.
//
// Sending is split in two phases so the caller can render before the
// network round trip:
//
//	ex, err := view.Submit(text, nil) // user message appended, Loading() true
//	out := ex.Resolve(ctx)            // assistant or error message appended
//
// Switching conversation (Open, NewChat, SetDepartment) advances an epoch;
// an exchange that resolves after a switch is discarded instead of being
// appended to the wrong conversation.
package chat
