// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package training

import (
	"context"

	"go.uber.org/zap"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

// ModelLister lists the models produced by completed jobs.
type ModelLister interface {
	ListTrainedModels(ctx context.Context) ([]model.TrainedModel, error)
}

// ModelsReload is the trained model list fetched after a job completed.
type ModelsReload struct {
	Job    model.TrainingJob
	Models []model.TrainedModel
	Err    error
}

// ReloadModels returns an OnCompleted hook that fetches the trained model
// list and hands the result to deliver. deliver also receives failures so
// a waiting caller is never left blocked.
func ReloadModels(lister ModelLister, logger *zap.Logger, deliver func(ModelsReload)) func(context.Context, model.TrainingJob) {
	logger = logging.OrNop(logger).Named("training")
	return func(ctx context.Context, job model.TrainingJob) {
		models, err := lister.ListTrainedModels(ctx)
		if err != nil {
			logger.Warn("failed to reload trained models", zap.String("job_id", job.ID), zap.Error(err))
		} else {
			logger.Info("trained models reloaded",
				zap.String("job_id", job.ID),
				zap.String("model", job.ModelName),
				zap.Int("count", len(models)))
		}
		if deliver != nil {
			deliver(ModelsReload{Job: job, Models: models, Err: err})
		}
	}
}
