// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the kops CLI and TUI.
//
// # Key Functions
//
// String Utilities:
//   - TruncateWidth: display-width aware truncation with ellipsis
//   - PadWidth: pad a string to a display width for table columns
//   - Label: turn a wire status such as "pending_approval" into "Pending Approval"
//
// Output:
//   - HighlightJSON: colourise a JSON document for the terminal
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
package util
