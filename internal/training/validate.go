// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

// ErrInvalidConfig matches every validation failure in this package.
var ErrInvalidConfig = errors.New("invalid training configuration")

// Known method and target keys.
const (
	MethodLoRA   = "lora"
	TargetOllama = "ollama"
)

// FieldError describes one invalid field.
type FieldError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidConfig) true.
func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// fieldErrors collects problems in field order.
type fieldErrors []error

func (f *fieldErrors) add(field, reason string) {
	*f = append(*f, &FieldError{Field: field, Reason: reason})
}

func (f fieldErrors) err() error {
	return errors.Join(f...)
}

// ValidateRequest checks a training request before it is sent.
func ValidateRequest(req model.TrainRequest) error {
	var errs fieldErrors
	if strings.TrimSpace(req.MethodKey) == "" {
		errs.add("method_key", "is required")
	}
	hasID := strings.TrimSpace(req.BaseModelID) != ""
	hasName := strings.TrimSpace(req.BaseModelName) != ""
	switch {
	case hasID && hasName:
		errs.add("base_model", "set either base_model_id or base_model_name, not both")
	case !hasID && !hasName:
		errs.add("base_model", "base_model_id or base_model_name is required")
	}
	if err := ValidateMethodConfig(req.MethodKey, req.ConfigOverrides); err != nil {
		errs = append(errs, err)
	}
	if req.TargetKey != "" {
		if err := ValidateTargetConfig(req.TargetKey, req.TargetConfig); err != nil {
			errs = append(errs, err)
		}
	}
	return errs.err()
}

// ValidateMethodConfig checks the known keys of a method configuration.
// Unknown methods and unknown keys are accepted.
func ValidateMethodConfig(methodKey string, cfg map[string]any) error {
	var errs fieldErrors
	switch methodKey {
	case MethodLoRA:
		for _, k := range []string{"lora_r", "lora_alpha"} {
			if v, ok := cfg[k]; ok && !isPositiveInt(v) {
				errs.add(k, "must be a positive integer")
			}
		}
		if v, ok := cfg["lora_dropout"]; ok {
			if f, isNum := number(v); !isNum || f < 0 || f >= 1 {
				errs.add("lora_dropout", "must be in [0, 1)")
			}
		}
	}
	return errs.err()
}

// ValidateTargetConfig checks the known keys of a deployment target
// configuration. Unknown targets and unknown keys are accepted.
func ValidateTargetConfig(targetKey string, cfg map[string]any) error {
	var errs fieldErrors
	switch targetKey {
	case TargetOllama:
		if v, ok := cfg["temperature"]; ok {
			if f, isNum := number(v); !isNum || f < 0 || f > 2 {
				errs.add("temperature", "must be in [0, 2]")
			}
		}
		if v, ok := cfg["top_p"]; ok {
			if f, isNum := number(v); !isNum || f <= 0 || f > 1 {
				errs.add("top_p", "must be in (0, 1]")
			}
		}
		if v, ok := cfg["num_ctx"]; ok && !isPositiveInt(v) {
			errs.add("num_ctx", "must be a positive integer")
		}
	}
	return errs.err()
}

// ParseConfig decodes a JSON object typed by a user. Blank input is an
// empty configuration.
func ParseConfig(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("%w: config must be a JSON object: %v", ErrInvalidConfig, err)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	return cfg, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func isPositiveInt(v any) bool {
	f, ok := number(v)
	return ok && f > 0 && f == math.Trunc(f)
}
