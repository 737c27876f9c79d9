// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package training

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

// CatalogBackend is the part of the API client the catalog needs.
type CatalogBackend interface {
	ListMethods(ctx context.Context) ([]model.TrainingMethod, error)
	CreateMethod(ctx context.Context, m model.TrainingMethod) (*model.TrainingMethod, error)
	UpdateMethod(ctx context.Context, id string, patch map[string]any) (*model.TrainingMethod, error)
	DeleteMethod(ctx context.Context, id string) error

	ListBaseModels(ctx context.Context) ([]model.BaseModel, error)
	CreateBaseModel(ctx context.Context, m model.BaseModel) (*model.BaseModel, error)
	UpdateBaseModel(ctx context.Context, id string, patch map[string]any) (*model.BaseModel, error)
	DeleteBaseModel(ctx context.Context, id string) error

	ListTargets(ctx context.Context) ([]model.DeploymentTarget, error)
	CreateTarget(ctx context.Context, t model.DeploymentTarget) (*model.DeploymentTarget, error)
	UpdateTarget(ctx context.Context, id string, patch map[string]any) (*model.DeploymentTarget, error)
	DeleteTarget(ctx context.Context, id string) error

	TrainingRegistry(ctx context.Context) (*model.Registry, error)
}

// Catalog validates and manages training catalog entries.
type Catalog struct {
	backend CatalogBackend
	logger  *zap.Logger
}

// NewCatalog creates a catalog over backend.
func NewCatalog(backend CatalogBackend, logger *zap.Logger) *Catalog {
	return &Catalog{backend: backend, logger: logging.OrNop(logger).Named("catalog")}
}

// Contents is everything the training settings screen shows.
type Contents struct {
	Methods    []model.TrainingMethod
	BaseModels []model.BaseModel
	Targets    []model.DeploymentTarget
	Registry   model.Registry
}

// Load fetches the three catalogs and the registry concurrently.
func (c *Catalog) Load(ctx context.Context) (*Contents, error) {
	var out Contents
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Methods, err = c.backend.ListMethods(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.BaseModels, err = c.backend.ListBaseModels(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.Targets, err = c.backend.ListTargets(ctx)
		return err
	})
	g.Go(func() error {
		r, err := c.backend.TrainingRegistry(ctx)
		if err == nil {
			out.Registry = *r
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// METHODS
// =============================================================================

// AddMethod validates and creates a training method.
func (c *Catalog) AddMethod(ctx context.Context, m model.TrainingMethod) (*model.TrainingMethod, error) {
	var errs fieldErrors
	if strings.TrimSpace(m.Name) == "" {
		errs.add("name", "is required")
	}
	if strings.TrimSpace(m.MethodKey) == "" {
		errs.add("method_key", "is required")
	}
	if err := ValidateMethodConfig(m.MethodKey, m.DefaultConfig); err != nil {
		errs = append(errs, err)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	if m.DefaultConfig == nil {
		m.DefaultConfig = map[string]any{}
	}
	return c.backend.CreateMethod(ctx, m)
}

// UpdateMethod applies patch to a method whose key is methodKey. A
// default_config in the patch is validated against that key.
func (c *Catalog) UpdateMethod(ctx context.Context, id, methodKey string, patch map[string]any) (*model.TrainingMethod, error) {
	if key, ok := patch["method_key"].(string); ok && key != "" {
		methodKey = key
	}
	if err := validatePatchConfig(patch, "default_config", func(cfg map[string]any) error {
		return ValidateMethodConfig(methodKey, cfg)
	}); err != nil {
		return nil, err
	}
	return c.backend.UpdateMethod(ctx, id, patch)
}

// RemoveMethod deletes a method.
func (c *Catalog) RemoveMethod(ctx context.Context, id string) error {
	return c.backend.DeleteMethod(ctx, id)
}

// =============================================================================
// BASE MODELS
// =============================================================================

// AddBaseModel validates and creates a base model.
func (c *Catalog) AddBaseModel(ctx context.Context, m model.BaseModel) (*model.BaseModel, error) {
	var errs fieldErrors
	if strings.TrimSpace(m.ModelName) == "" {
		errs.add("model_name", "is required")
	}
	if strings.TrimSpace(m.DisplayName) == "" {
		errs.add("display_name", "is required")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return c.backend.CreateBaseModel(ctx, m)
}

// UpdateBaseModel applies patch to a base model.
func (c *Catalog) UpdateBaseModel(ctx context.Context, id string, patch map[string]any) (*model.BaseModel, error) {
	return c.backend.UpdateBaseModel(ctx, id, patch)
}

// RemoveBaseModel deletes a base model.
func (c *Catalog) RemoveBaseModel(ctx context.Context, id string) error {
	return c.backend.DeleteBaseModel(ctx, id)
}

// =============================================================================
// TARGETS
// =============================================================================

// AddTarget validates and creates a deployment target.
func (c *Catalog) AddTarget(ctx context.Context, t model.DeploymentTarget) (*model.DeploymentTarget, error) {
	var errs fieldErrors
	if strings.TrimSpace(t.Name) == "" {
		errs.add("name", "is required")
	}
	if strings.TrimSpace(t.TargetKey) == "" {
		errs.add("target_key", "is required")
	}
	if err := ValidateTargetConfig(t.TargetKey, t.Config); err != nil {
		errs = append(errs, err)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	if t.Config == nil {
		t.Config = map[string]any{}
	}
	return c.backend.CreateTarget(ctx, t)
}

// UpdateTarget applies patch to a target whose key is targetKey.
func (c *Catalog) UpdateTarget(ctx context.Context, id, targetKey string, patch map[string]any) (*model.DeploymentTarget, error) {
	if key, ok := patch["target_key"].(string); ok && key != "" {
		targetKey = key
	}
	if err := validatePatchConfig(patch, "config", func(cfg map[string]any) error {
		return ValidateTargetConfig(targetKey, cfg)
	}); err != nil {
		return nil, err
	}
	return c.backend.UpdateTarget(ctx, id, patch)
}

// RemoveTarget deletes a deployment target.
func (c *Catalog) RemoveTarget(ctx context.Context, id string) error {
	return c.backend.DeleteTarget(ctx, id)
}

func validatePatchConfig(patch map[string]any, field string, validate func(map[string]any) error) error {
	raw, ok := patch[field]
	if !ok {
		return nil
	}
	cfg, ok := raw.(map[string]any)
	if !ok {
		return &FieldError{Field: field, Reason: "must be a JSON object"}
	}
	return validate(cfg)
}

// =============================================================================
// QUICK SETUP
// =============================================================================

// Quick setup defaults: a LoRA method, a small chat model and a local
// Ollama target.
var (
	QuickSetupMethod = model.TrainingMethod{
		Name:          "LoRA",
		MethodKey:     MethodLoRA,
		Description:   "Low-Rank Adaptation: fast fine-tuning with little RAM, suited to small and medium models",
		DefaultConfig: map[string]any{"lora_r": 16, "lora_alpha": 32, "lora_dropout": 0.05},
	}
	QuickSetupBaseModel = model.BaseModel{
		ModelName:            "TinyLlama/TinyLlama-1.1B-Chat-v1.0",
		DisplayName:          "TinyLlama 1.1B Chat",
		SizeBillion:          floatPtr(1.1),
		RecommendedRAMGB:     floatPtr(4),
		DefaultTargetModules: []string{"q_proj", "v_proj", "k_proj", "o_proj"},
	}
	QuickSetupTarget = model.DeploymentTarget{
		Name:      "Local Ollama",
		TargetKey: TargetOllama,
		Config:    map[string]any{"temperature": 0.7, "top_p": 0.9, "num_ctx": 4096},
	}
)

func floatPtr(f float64) *float64 { return &f }

// QuickSetupResult reports which default entries could not be created.
type QuickSetupResult struct {
	Created int
	Failed  map[string]error
	// Err is the first failure, nil when every entry was created.
	Err error
}

// QuickSetup creates the default method, base model and target
// concurrently. Each entry succeeds or fails on its own: the group has no
// shared context, so one failure does not cancel the others.
func (c *Catalog) QuickSetup(ctx context.Context) QuickSetupResult {
	var (
		mu  sync.Mutex
		res = QuickSetupResult{Failed: map[string]error{}}
		g   errgroup.Group
	)
	create := func(item string, add func() error) {
		g.Go(func() error {
			err := add()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Warn("quick setup item failed", zap.String("item", item), zap.Error(err))
				res.Failed[item] = err
				return fmt.Errorf("%s: %w", item, err)
			}
			res.Created++
			return nil
		})
	}

	create("method", func() error {
		_, err := c.AddMethod(ctx, QuickSetupMethod)
		return err
	})
	create("base_model", func() error {
		_, err := c.AddBaseModel(ctx, QuickSetupBaseModel)
		return err
	})
	create("target", func() error {
		_, err := c.AddTarget(ctx, QuickSetupTarget)
		return err
	})

	if res.Err = g.Wait(); res.Err != nil {
		c.logger.Warn("quick setup finished with failures", zap.Int("failed", len(res.Failed)), zap.Error(res.Err))
	}
	return res
}

// String summarises the result for display.
func (r QuickSetupResult) String() string {
	if len(r.Failed) == 0 {
		return fmt.Sprintf("created %d catalog entries", r.Created)
	}
	names := make([]string, 0, len(r.Failed))
	for _, item := range []string{"method", "base_model", "target"} {
		if _, ok := r.Failed[item]; ok {
			names = append(names, item)
		}
	}
	return fmt.Sprintf("created %d catalog entries, failed: %s", r.Created, strings.Join(names, ", "))
}
