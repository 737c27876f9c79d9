// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// KnowledgeDoc is an ingested document in a department knowledge base.
type KnowledgeDoc struct {
	ID           ID        `json:"id"`
	DepartmentID ID        `json:"department_id"`
	Title        string    `json:"title"`
	SourceType   string    `json:"source_type"`
	MimeType     string    `json:"mime_type,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	Status       string    `json:"status"`
	ChunkCount   int       `json:"chunk_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// APIKey is a tenant API key. RawKey is only populated on creation.
type APIKey struct {
	ID         ID         `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	RateLimit  int        `json:"rate_limit"`
	Status     string     `json:"status"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	RawKey     string     `json:"raw_key,omitempty"`
}

// APIKeyRequest is the body of POST /api-keys.
type APIKeyRequest struct {
	Name      string `json:"name"`
	RateLimit int    `json:"rate_limit,omitempty"`
}
