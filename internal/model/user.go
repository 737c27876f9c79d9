// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// User is the identity returned by login.
type User struct {
	ID          ID       `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	TenantID    ID       `json:"tenant_id"`
	TenantName  string   `json:"tenant_name"`
	Departments []string `json:"departments"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token and the user it belongs to.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	User        User   `json:"user"`
}

// Member is a tenant user as listed on the team page.
type Member struct {
	ID          ID         `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	Role        string     `json:"role"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// InviteRequest is the body of POST /users.
type InviteRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Password string `json:"password,omitempty"`
}

// Department scopes knowledge, conversations and approvals.
type Department struct {
	ID          ID             `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Icon        string         `json:"icon,omitempty"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Status      string         `json:"status,omitempty"`
	SortOrder   int            `json:"sort_order,omitempty"`
}

// DepartmentInput creates or updates a department. Nil fields are left
// unchanged on update.
type DepartmentInput struct {
	Name        *string        `json:"name,omitempty"`
	Slug        *string        `json:"slug,omitempty"`
	Icon        *string        `json:"icon,omitempty"`
	Description *string        `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Status      *string        `json:"status,omitempty"`
}
