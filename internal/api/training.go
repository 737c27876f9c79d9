// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

// ErrJobNotFound is returned when the backend does not know a job id.
var ErrJobNotFound = errors.New("training job not found")

// =============================================================================
// JOBS
// =============================================================================

// StartTraining starts a fine-tuning job.
func (c *Client) StartTraining(ctx context.Context, req model.TrainRequest) (*model.TrainResponse, error) {
	if req.ConfigOverrides == nil {
		req.ConfigOverrides = map[string]any{}
	}
	resp, err := Post[model.TrainResponse](ctx, c, "/models/train", req)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// TrainingStatus fetches the current state of a job. The status route
// answers an unknown id with 200 and {"error": ...}; that becomes
// ErrJobNotFound.
func (c *Client) TrainingStatus(ctx context.Context, jobID string) (*model.TrainingJob, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: pathf("/models/%s/status", jobID)}, &raw); err != nil {
		return nil, err
	}
	if !gjson.GetBytes(raw, "status").Exists() && gjson.GetBytes(raw, "error").Exists() {
		return nil, ErrJobNotFound
	}

	var job model.TrainingJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to parse training status: %w", err)
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return &job, nil
}

// ListTrainedModels returns models produced by completed jobs.
func (c *Client) ListTrainedModels(ctx context.Context) ([]model.TrainedModel, error) {
	return List[model.TrainedModel](ctx, c, "/models", nil)
}

// ListTrainingJobs returns job history, optionally filtered by status.
func (c *Client) ListTrainingJobs(ctx context.Context, status model.JobStatus) ([]model.TrainingJob, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	return List[model.TrainingJob](ctx, c, "/training/jobs", q)
}

// GetTrainingJob returns one job from the history.
func (c *Client) GetTrainingJob(ctx context.Context, id string) (*model.TrainingJob, error) {
	j, err := Get[model.TrainingJob](ctx, c, pathf("/training/jobs/%s", id), nil)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// TrainingRegistry lists the trainers and deployers the backend implements.
func (c *Client) TrainingRegistry(ctx context.Context) (*model.Registry, error) {
	r, err := Get[model.Registry](ctx, c, "/training/registry", nil)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// =============================================================================
// CATALOG
// =============================================================================

// ListMethods returns the training method catalog.
func (c *Client) ListMethods(ctx context.Context) ([]model.TrainingMethod, error) {
	return List[model.TrainingMethod](ctx, c, "/training/methods", nil)
}

// CreateMethod creates (or, for an existing name, updates) a method.
func (c *Client) CreateMethod(ctx context.Context, m model.TrainingMethod) (*model.TrainingMethod, error) {
	out, err := Post[model.TrainingMethod](ctx, c, "/training/methods", m)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMethod applies a partial update.
func (c *Client) UpdateMethod(ctx context.Context, id string, patch map[string]any) (*model.TrainingMethod, error) {
	out, err := Put[model.TrainingMethod](ctx, c, pathf("/training/methods/%s", id), patch)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMethod removes a method.
func (c *Client) DeleteMethod(ctx context.Context, id string) error {
	return c.Delete(ctx, pathf("/training/methods/%s", id))
}

// ListBaseModels returns the base model catalog.
func (c *Client) ListBaseModels(ctx context.Context) ([]model.BaseModel, error) {
	return List[model.BaseModel](ctx, c, "/training/base-models", nil)
}

// CreateBaseModel creates (or updates by model name) a base model.
func (c *Client) CreateBaseModel(ctx context.Context, m model.BaseModel) (*model.BaseModel, error) {
	out, err := Post[model.BaseModel](ctx, c, "/training/base-models", m)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBaseModel applies a partial update.
func (c *Client) UpdateBaseModel(ctx context.Context, id string, patch map[string]any) (*model.BaseModel, error) {
	out, err := Put[model.BaseModel](ctx, c, pathf("/training/base-models/%s", id), patch)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBaseModel removes a base model.
func (c *Client) DeleteBaseModel(ctx context.Context, id string) error {
	return c.Delete(ctx, pathf("/training/base-models/%s", id))
}

// ListTargets returns the deployment target catalog.
func (c *Client) ListTargets(ctx context.Context) ([]model.DeploymentTarget, error) {
	return List[model.DeploymentTarget](ctx, c, "/training/targets", nil)
}

// CreateTarget creates (or updates by name) a deployment target.
func (c *Client) CreateTarget(ctx context.Context, t model.DeploymentTarget) (*model.DeploymentTarget, error) {
	out, err := Post[model.DeploymentTarget](ctx, c, "/training/targets", t)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTarget applies a partial update.
func (c *Client) UpdateTarget(ctx context.Context, id string, patch map[string]any) (*model.DeploymentTarget, error) {
	out, err := Put[model.DeploymentTarget](ctx, c, pathf("/training/targets/%s", id), patch)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTarget removes a deployment target.
func (c *Client) DeleteTarget(ctx context.Context, id string) error {
	return c.Delete(ctx, pathf("/training/targets/%s", id))
}
