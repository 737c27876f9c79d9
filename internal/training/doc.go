// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package training drives fine-tuning jobs from the client side.
//
// Poller starts a job and follows it to a terminal state:
//
//	idle -> queued -> running -> completed
//	                          \-> failed
//
// Catalog manages the training methods, base models and deployment
// targets a job is assembled from. Method and target configurations are
// opaque maps; ValidateMethodConfig and ValidateTargetConfig check the
// keys the client knows about and pass everything else through.
package training
