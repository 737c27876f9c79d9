// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package training

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

func TestValidateMethodConfig(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		cfg     map[string]any
		wantErr string
	}{
		{name: "lora defaults", key: MethodLoRA, cfg: map[string]any{"lora_r": 16, "lora_alpha": 32.0, "lora_dropout": 0.05}},
		{name: "lora empty", key: MethodLoRA, cfg: nil},
		{name: "lora fractional rank", key: MethodLoRA, cfg: map[string]any{"lora_r": 8.5}, wantErr: "lora_r"},
		{name: "lora zero alpha", key: MethodLoRA, cfg: map[string]any{"lora_alpha": 0}, wantErr: "lora_alpha"},
		{name: "lora dropout one", key: MethodLoRA, cfg: map[string]any{"lora_dropout": 1.0}, wantErr: "lora_dropout"},
		{name: "lora dropout string", key: MethodLoRA, cfg: map[string]any{"lora_dropout": "0.1"}, wantErr: "lora_dropout"},
		{name: "lora unknown key", key: MethodLoRA, cfg: map[string]any{"epochs": "three"}},
		{name: "unknown method", key: "qlora", cfg: map[string]any{"lora_r": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMethodConfig(tt.key, tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateTargetConfig(t *testing.T) {
	assert.NoError(t, ValidateTargetConfig(TargetOllama, QuickSetupTarget.Config))
	assert.NoError(t, ValidateTargetConfig("vllm", map[string]any{"temperature": 9}))

	err := ValidateTargetConfig(TargetOllama, map[string]any{"temperature": 2.5, "top_p": 0, "num_ctx": 10.5})
	require.Error(t, err)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	for _, field := range []string{"temperature", "top_p", "num_ctx"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestValidateRequest(t *testing.T) {
	ok := model.TrainRequest{MethodKey: MethodLoRA, BaseModelName: "TinyLlama/TinyLlama-1.1B-Chat-v1.0"}
	assert.NoError(t, ValidateRequest(ok))

	both := ok
	both.BaseModelID = "bm-1"
	assert.ErrorIs(t, ValidateRequest(both), ErrInvalidConfig)

	neither := model.TrainRequest{MethodKey: MethodLoRA}
	assert.ErrorContains(t, ValidateRequest(neither), "base_model")

	noKey := ok
	noKey.MethodKey = ""
	assert.ErrorContains(t, ValidateRequest(noKey), "method_key")

	badTarget := ok
	badTarget.TargetKey = TargetOllama
	badTarget.TargetConfig = map[string]any{"top_p": 2}
	assert.ErrorContains(t, ValidateRequest(badTarget), "top_p")
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg)

	cfg, err = ParseConfig(`{"lora_r": 16}`)
	require.NoError(t, err)
	assert.Equal(t, 16.0, cfg["lora_r"])

	_, err = ParseConfig(`[1,2]`)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
