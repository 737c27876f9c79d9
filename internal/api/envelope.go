// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// decodeList accepts a bare array, a {"data": [...]} envelope or an
// {"items": [...]} envelope.
func decodeList[T any](raw []byte) ([]T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid JSON in list response")
	}

	payload := raw
	root := gjson.ParseBytes(raw)
	if !root.IsArray() {
		found := false
		for _, key := range []string{"data", "items"} {
			if v := root.Get(key); v.IsArray() {
				payload = []byte(v.Raw)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("list response has no data array")
		}
	}

	var out []T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("failed to parse list response: %w", err)
	}
	return out, nil
}
