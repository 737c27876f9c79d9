// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// JobStatus is the state of a training job.
type JobStatus string

const (
	JobIdle      JobStatus = "idle"
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether polling must stop.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// TrainingJob is the client view of an asynchronous fine-tuning job.
type TrainingJob struct {
	ID            string         `json:"id,omitempty"`
	Status        JobStatus      `json:"status"`
	Progress      int            `json:"progress"`
	StatusMessage string         `json:"status_message,omitempty"`
	Metrics       map[string]any `json:"metrics,omitempty"`
	Error         string         `json:"error,omitempty"`
	ModelName     string         `json:"model_name,omitempty"`
	BaseModelName string         `json:"base_model_name,omitempty"`
	MethodKey     string         `json:"method_key,omitempty"`
	DeployedTo    string         `json:"deployed_to_target,omitempty"`
	CreatedAt     string         `json:"created_at,omitempty"`
}

// TrainRequest is the body of POST /models/train. Exactly one of
// BaseModelID and BaseModelName is set.
type TrainRequest struct {
	MethodKey          string         `json:"method_key"`
	MethodID           string         `json:"method_id,omitempty"`
	BaseModelID        string         `json:"base_model_id,omitempty"`
	BaseModelName      string         `json:"base_model_name,omitempty"`
	DeploymentTargetID string         `json:"deployment_target_id,omitempty"`
	ConfigOverrides    map[string]any `json:"config_overrides"`

	// TargetKey selects deployment target validation. Not sent.
	TargetKey string `json:"-"`
	// TargetConfig is validated against TargetKey. Not sent.
	TargetConfig map[string]any `json:"-"`
}

// TrainResponse acknowledges a started job.
type TrainResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status,omitempty"`
}

// TrainingMethod is a catalog entry for a fine-tuning technique.
type TrainingMethod struct {
	ID            ID             `json:"id,omitempty"`
	Name          string         `json:"name"`
	MethodKey     string         `json:"method_key"`
	Description   string         `json:"description,omitempty"`
	DefaultConfig map[string]any `json:"default_config"`
	IsActive      *bool          `json:"is_active,omitempty"`
}

// BaseModel is a catalog entry for a model that can be fine-tuned.
type BaseModel struct {
	ID                   ID       `json:"id,omitempty"`
	ModelName            string   `json:"model_name"`
	DisplayName          string   `json:"display_name"`
	SizeBillion          *float64 `json:"size_billion,omitempty"`
	RecommendedRAMGB     *float64 `json:"recommended_ram_gb,omitempty"`
	DefaultTargetModules []string `json:"default_target_modules,omitempty"`
	IsActive             *bool    `json:"is_active,omitempty"`
}

// DeploymentTarget is a catalog entry describing where a trained model goes.
type DeploymentTarget struct {
	ID        ID             `json:"id,omitempty"`
	Name      string         `json:"name"`
	TargetKey string         `json:"target_key"`
	Config    map[string]any `json:"config"`
	IsActive  *bool          `json:"is_active,omitempty"`
}

// Registry lists the trainer and deployer implementations the backend has.
type Registry struct {
	Trainers  []string `json:"trainers"`
	Deployers []string `json:"deployers"`
}

// TrainedModel is a model produced by a completed job.
type TrainedModel struct {
	ID           ID             `json:"id"`
	Name         string         `json:"name"`
	BaseModel    string         `json:"base_model"`
	DepartmentID ID             `json:"department_id,omitempty"`
	Status       string         `json:"status"`
	Metrics      map[string]any `json:"metrics,omitempty"`
	CreatedAt    string         `json:"created_at"`
}
