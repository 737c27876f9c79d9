// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Error variables for the statuses callers branch on.
var (
	// ErrUnauthorized matches a 401 response.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden matches a 403 response.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound matches a 404 response.
	ErrNotFound = errors.New("not found")

	// ErrServer matches any 5xx response.
	ErrServer = errors.New("server error")

	// ErrTimeout indicates the request exceeded its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrLoginFailed wraps every failed login.
	ErrLoginFailed = errors.New("login failed")
)

// unknownError is the detail of last resort.
const unknownError = "Unknown error"

// APIError represents a non-2xx response from the backend.
type APIError struct {
	Status int
	Detail string
	Body   []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, http.StatusText(e.Status))
}

// Is lets errors.Is match the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrServer:
		return e.Status >= 500
	}
	return false
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{Status: status, Detail: detailFromBody(body), Body: body}
}

// detailFromBody extracts a human-readable message from an error body.
// FastAPI sends {"detail": "..."} or, for validation errors, a list of
// {"loc", "msg"} objects. Some routes send {"message": ...} or {"error": ...}.
func detailFromBody(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}

	detail := gjson.GetBytes(body, "detail")
	switch {
	case detail.Type == gjson.String:
		return strings.TrimSpace(detail.String())
	case detail.IsArray():
		var msgs []string
		detail.ForEach(func(_, item gjson.Result) bool {
			if msg := item.Get("msg"); msg.Exists() {
				msgs = append(msgs, msg.String())
			} else if item.Type == gjson.String {
				msgs = append(msgs, item.String())
			}
			return true
		})
		return strings.Join(msgs, "; ")
	case detail.IsObject():
		if msg := detail.Get("message"); msg.Type == gjson.String {
			return msg.String()
		}
		return detail.Raw
	}

	for _, key := range []string{"message", "error"} {
		if v := gjson.GetBytes(body, key); v.Type == gjson.String {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}

// ErrorDetail returns the best human-readable description of err: the
// server-supplied detail when there is one, else the error message, else
// "Unknown error".
func ErrorDetail(err error) string {
	if err == nil {
		return unknownError
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return unknownError
}
