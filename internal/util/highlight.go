// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"bytes"
	"encoding/json"

	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// HighlightJSON pretty-prints v as JSON and colourises it with chroma for a
// 256-colour terminal. When colour is false, or highlighting fails, the plain
// indented JSON is returned.
func HighlightJSON(v any, colour bool) (string, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	if !colour {
		return string(raw), nil
	}

	lexer := lexers.Get("json")
	if lexer == nil {
		return string(raw), nil
	}
	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		return string(raw), nil
	}

	iterator, err := lexer.Tokenise(nil, string(raw))
	if err != nil {
		return string(raw), nil
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return string(raw), nil
	}
	return buf.String(), nil
}
