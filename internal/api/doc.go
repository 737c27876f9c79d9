// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the authenticated client for the KnowledgeOps REST backend.
//
// Every request flows through Client.Do, which attaches the bearer token from
// the TokenCache and passes every response through one interception point:
//
//   - 401 clears the token cache and fires OnUnauthorized once per burst
//   - 403 and 500 are logged with the response body
//   - non-2xx responses are always returned to the caller as *APIError
//
// # Key Types
//
//   - TokenCache: single-flight, generation-stamped bearer token cache
//   - Client: HTTP wrapper plus typed endpoint helpers
//   - APIError: a non-2xx response, matchable with errors.Is
//   - Multipart: a form body whose content type carries its own boundary
//
// # Usage
//
//	tokens := api.NewTokenCache(store)
//	client := api.NewClient(tokens, api.Options{BaseURL: cfg.API.URL, Logger: logger})
//	client.SetOnUnauthorized(func() { program.Send(loginRequired{}) })
//	resp, err := client.Query(ctx, model.QueryRequest{Text: "hi", DepartmentID: dept})
package api
