// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the kops command tree.
//
// Running kops without a subcommand starts the terminal UI. Every other
// command is a one-shot call against the KnowledgeOps API that shares the
// TUI's session file, so a login made in one place is seen by the other.
//
// # Commands
//
//   - login, logout, whoami: session management
//   - ask, chat: one-shot question and line-mode REPL
//   - approvals: list, approve and reject pending answers
//   - train: start and follow fine-tuning jobs, manage the catalog
//   - models, knowledge, departments, analytics, keys, team, conversations
//   - config: show the effective configuration
//
// Destructive commands ask for confirmation unless --yes is given. With
// --json, results are printed as a JSON envelope and prompts are refused.
package cli
