// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session persists the result of `kops login` outside the process.
//
// The login response is stored as an HS256-signed JWT in ~/.kops/session.jwt
// so a tampered or expired file is rejected on load. The in-memory token
// cache in package api looks tokens up through Store, and Watch lets a
// running TUI notice when another kops process logs in or out.
//
// # Usage
//
//	store, err := session.NewStore(path, cfg.Session.Secret, cfg.SessionMaxAge(), logger)
//	sess, err := store.Save(loginResponse)
//	token, err := store.LookupToken(ctx)
package session
