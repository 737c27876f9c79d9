// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
)

// Multipart is a multipart/form-data request body. The client sends its
// ContentType verbatim so the boundary is preserved.
type Multipart struct {
	body        []byte
	contentType string
}

// NewMultipart encodes fields plus one file part.
func NewMultipart(fields map[string]string, fileField, fileName string, file io.Reader) (*Multipart, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	if file != nil {
		part, err := w.CreateFormFile(fileField, fileName)
		if err != nil {
			return nil, fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, fmt.Errorf("failed to copy file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	return &Multipart{body: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}

// ContentType returns the boundary-bearing content type.
func (m *Multipart) ContentType() string {
	return m.contentType
}

// Len returns the encoded body size.
func (m *Multipart) Len() int {
	return len(m.body)
}
