// kops - a terminal client for the KnowledgeOps assistant.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/chanon-dev/knowledge-ops-poc-ai/internal/cli"

// Version information (set at build time with
// -ldflags "-X main.Version=... -X main.GitCommit=... -X main.BuildDate=...")
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
	cli.Execute()
}
