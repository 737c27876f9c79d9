// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package training

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

type fakeLister struct {
	calls  atomic.Int32
	models []model.TrainedModel
	err    error
}

func (l *fakeLister) ListTrainedModels(context.Context) ([]model.TrainedModel, error) {
	l.calls.Add(1)
	return l.models, l.err
}

func TestCompletedJobReloadsTrainedModels(t *testing.T) {
	b := &scriptedBackend{script: []statusStep{
		{job: model.TrainingJob{Status: model.JobCompleted, ModelName: "it-helper-v1"}},
	}}
	lister := &fakeLister{models: []model.TrainedModel{{ID: "m1", Name: "it-helper-v1", Status: "ready"}}}
	reloaded := make(chan ModelsReload, 1)

	clk := newClock()
	p := NewPoller(b, PollerOptions{
		Interval:    interval,
		Clock:       clk,
		OnCompleted: ReloadModels(lister, nil, func(r ModelsReload) { reloaded <- r }),
	})
	defer p.Close()

	require.NoError(t, p.Start(context.Background(), validRequest()))
	tick(t, clk, b, p, 1, func(j model.TrainingJob) bool { return j.Status == model.JobCompleted })

	var r ModelsReload
	require.Eventually(t, func() bool {
		select {
		case r = <-reloaded:
			return true
		default:
			return false
		}
	}, waitTimeout, waitTick)
	require.NoError(t, r.Err)
	assert.Equal(t, "job-1", r.Job.ID)
	require.Len(t, r.Models, 1)
	assert.Equal(t, "it-helper-v1", r.Models[0].Name)
	assert.Equal(t, int32(1), lister.calls.Load())
}

func TestFailedJobDoesNotReloadTrainedModels(t *testing.T) {
	b := &scriptedBackend{script: []statusStep{
		{job: model.TrainingJob{Status: model.JobFailed, Error: "CUDA out of memory"}},
	}}
	lister := &fakeLister{}
	clk := newClock()
	p := NewPoller(b, PollerOptions{Interval: interval, Clock: clk, OnCompleted: ReloadModels(lister, nil, nil)})

	require.NoError(t, p.Start(context.Background(), validRequest()))
	tick(t, clk, b, p, 1, func(j model.TrainingJob) bool { return j.Status == model.JobFailed })
	p.Close()
	assert.Zero(t, lister.calls.Load())
}

func TestReloadModelsDeliversFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("backend down")}
	var got ModelsReload
	hook := ReloadModels(lister, nil, func(r ModelsReload) { got = r })

	hook(context.Background(), model.TrainingJob{ID: "job-9", Status: model.JobCompleted})
	assert.EqualError(t, got.Err, "backend down")
	assert.Equal(t, "job-9", got.Job.ID)
	assert.Empty(t, got.Models)
}
