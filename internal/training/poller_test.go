// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package training

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

const (
	interval    = 3 * time.Second
	waitTimeout = 2 * time.Second
	waitTick    = 5 * time.Millisecond
)

// scriptedBackend returns statuses in order, repeating the last one.
type scriptedBackend struct {
	mu       sync.Mutex
	startErr error
	script   []statusStep
	polls    atomic.Int32
	starts   atomic.Int32
	lastReq  model.TrainRequest
}

type statusStep struct {
	job model.TrainingJob
	err error
}

func (b *scriptedBackend) StartTraining(_ context.Context, req model.TrainRequest) (*model.TrainResponse, error) {
	b.starts.Add(1)
	b.mu.Lock()
	b.lastReq = req
	b.mu.Unlock()
	if b.startErr != nil {
		return nil, b.startErr
	}
	return &model.TrainResponse{JobID: "job-1", Status: model.JobQueued}, nil
}

func (b *scriptedBackend) TrainingStatus(_ context.Context, jobID string) (*model.TrainingJob, error) {
	n := int(b.polls.Add(1)) - 1
	b.mu.Lock()
	defer b.mu.Unlock()
	if n >= len(b.script) {
		n = len(b.script) - 1
	}
	step := b.script[n]
	if step.err != nil {
		return nil, step.err
	}
	job := step.job
	job.ID = jobID
	return &job, nil
}

// countingClock records ticker stops.
type countingClock struct {
	*clocktesting.FakeClock
	stops atomic.Int32
}

type countingTicker struct {
	clock.Ticker
	c *countingClock
}

func (t countingTicker) Stop() {
	t.c.stops.Add(1)
	t.Ticker.Stop()
}

func (c *countingClock) NewTicker(d time.Duration) clock.Ticker {
	return countingTicker{Ticker: c.FakeClock.NewTicker(d), c: c}
}

func newClock() *countingClock {
	return &countingClock{FakeClock: clocktesting.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))}
}

func validRequest() model.TrainRequest {
	return model.TrainRequest{MethodKey: MethodLoRA, BaseModelName: "TinyLlama/TinyLlama-1.1B-Chat-v1.0"}
}

// tick advances the clock and waits for poll number n to be applied.
func tick(t *testing.T, clk *countingClock, b *scriptedBackend, p *Poller, n int32, want func(model.TrainingJob) bool) {
	t.Helper()
	clk.Step(interval)
	require.Eventually(t, func() bool {
		return b.polls.Load() >= n && want(p.Snapshot())
	}, waitTimeout, waitTick)
}

func TestPollerRunsJobToCompletion(t *testing.T) {
	b := &scriptedBackend{script: []statusStep{
		{job: model.TrainingJob{Status: model.JobQueued}},
		{job: model.TrainingJob{Status: model.JobRunning, Progress: 40, StatusMessage: "epoch 1/3"}},
		{job: model.TrainingJob{Status: model.JobRunning, Progress: 30}},
		{job: model.TrainingJob{Status: model.JobCompleted, Progress: 90, Metrics: map[string]any{"loss": 0.42}}},
	}}
	clk := newClock()
	var completed atomic.Int32
	p := NewPoller(b, PollerOptions{
		Interval: interval,
		Clock:    clk,
		OnCompleted: func(context.Context, model.TrainingJob) {
			completed.Add(1)
		},
	})
	defer p.Close()

	require.NoError(t, p.Start(context.Background(), validRequest()))
	snap := p.Snapshot()
	assert.Equal(t, "job-1", snap.ID)
	assert.Equal(t, model.JobQueued, snap.Status)
	assert.Zero(t, b.polls.Load(), "first poll waits for the first tick")

	tick(t, clk, b, p, 1, func(j model.TrainingJob) bool { return j.Status == model.JobQueued })
	tick(t, clk, b, p, 2, func(j model.TrainingJob) bool { return j.Progress == 40 })
	assert.Equal(t, "epoch 1/3", p.Snapshot().StatusMessage)

	tick(t, clk, b, p, 3, func(j model.TrainingJob) bool { return true })
	assert.Equal(t, 40, p.Snapshot().Progress, "progress never goes backwards")

	tick(t, clk, b, p, 4, func(j model.TrainingJob) bool { return j.Status == model.JobCompleted })
	final := p.Snapshot()
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, 0.42, final.Metrics["loss"])

	require.Eventually(t, func() bool { return completed.Load() == 1 }, waitTimeout, waitTick)
	require.Eventually(t, func() bool { return clk.stops.Load() >= 1 }, waitTimeout, waitTick)

	clk.Step(interval)
	clk.Step(interval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(4), b.polls.Load(), "no polls after a terminal status")
	assert.Equal(t, int32(1), completed.Load())
}

func TestPollerStopsTickerOnceOnFailure(t *testing.T) {
	b := &scriptedBackend{script: []statusStep{
		{job: model.TrainingJob{Status: model.JobFailed, Progress: 10, Error: "CUDA out of memory"}},
	}}
	clk := newClock()
	var completed atomic.Int32
	p := NewPoller(b, PollerOptions{Interval: interval, Clock: clk, OnCompleted: func(context.Context, model.TrainingJob) {
		completed.Add(1)
	}})

	require.NoError(t, p.Start(context.Background(), validRequest()))
	tick(t, clk, b, p, 1, func(j model.TrainingJob) bool { return j.Status == model.JobFailed })
	assert.Equal(t, "CUDA out of memory", p.Snapshot().Error)
	assert.Equal(t, 10, p.Snapshot().Progress)

	p.Close()
	p.Close()
	assert.Equal(t, int32(1), clk.stops.Load(), "ticker stopped exactly once")
	assert.Zero(t, completed.Load())
}

func TestPollerIgnoresTransientErrors(t *testing.T) {
	b := &scriptedBackend{script: []statusStep{
		{err: &api.APIError{Status: 502}},
		{job: model.TrainingJob{Status: model.JobRunning, Progress: 5}},
	}}
	clk := newClock()
	p := NewPoller(b, PollerOptions{Interval: interval, Clock: clk})
	defer p.Close()

	require.NoError(t, p.Start(context.Background(), validRequest()))
	tick(t, clk, b, p, 1, func(j model.TrainingJob) bool { return true })
	assert.Equal(t, model.JobQueued, p.Snapshot().Status)

	tick(t, clk, b, p, 2, func(j model.TrainingJob) bool { return j.Status == model.JobRunning })
	assert.Equal(t, 5, p.Snapshot().Progress)
}

func TestPollerUnknownJobFails(t *testing.T) {
	b := &scriptedBackend{script: []statusStep{{err: api.ErrJobNotFound}}}
	clk := newClock()
	p := NewPoller(b, PollerOptions{Interval: interval, Clock: clk})
	defer p.Close()

	require.NoError(t, p.Follow("job-9"))
	tick(t, clk, b, p, 1, func(j model.TrainingJob) bool { return j.Status == model.JobFailed })
	assert.Equal(t, "job-9", p.Snapshot().ID)
	assert.Equal(t, "Job not found", p.Snapshot().Error)
}

func TestPollerStartFailure(t *testing.T) {
	b := &scriptedBackend{startErr: &api.APIError{Status: 400, Detail: "Base model not found"}}
	clk := newClock()
	p := NewPoller(b, PollerOptions{Interval: interval, Clock: clk})
	defer p.Close()

	err := p.Start(context.Background(), validRequest())
	require.Error(t, err)

	snap := p.Snapshot()
	assert.Equal(t, model.JobFailed, snap.Status)
	assert.Empty(t, snap.ID)
	assert.Equal(t, "Base model not found", snap.Error)

	clk.Step(interval)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, b.polls.Load())
}

func TestPollerRejectsInvalidRequestWithoutIO(t *testing.T) {
	b := &scriptedBackend{}
	p := NewPoller(b, PollerOptions{Clock: newClock()})
	defer p.Close()

	req := validRequest()
	req.ConfigOverrides = map[string]any{"lora_r": 0}
	assert.ErrorIs(t, p.Start(context.Background(), req), ErrInvalidConfig)
	assert.Zero(t, b.starts.Load())
	assert.Equal(t, model.JobIdle, p.Snapshot().Status)
}

func TestPollerRejectsSecondActiveJob(t *testing.T) {
	b := &scriptedBackend{script: []statusStep{{job: model.TrainingJob{Status: model.JobRunning}}}}
	p := NewPoller(b, PollerOptions{Clock: newClock()})
	defer p.Close()

	require.NoError(t, p.Start(context.Background(), validRequest()))
	assert.ErrorIs(t, p.Start(context.Background(), validRequest()), ErrJobActive)
	assert.Equal(t, int32(1), b.starts.Load())
}

func TestPollerRestartsFromTerminalState(t *testing.T) {
	b := &scriptedBackend{script: []statusStep{
		{job: model.TrainingJob{Status: model.JobCompleted, Progress: 100}},
	}}
	clk := newClock()
	p := NewPoller(b, PollerOptions{Interval: interval, Clock: clk})
	defer p.Close()

	require.NoError(t, p.Start(context.Background(), validRequest()))
	tick(t, clk, b, p, 1, func(j model.TrainingJob) bool { return j.Status == model.JobCompleted })

	require.NoError(t, p.Start(context.Background(), validRequest()))
	snap := p.Snapshot()
	assert.Equal(t, model.JobQueued, snap.Status)
	assert.Zero(t, snap.Progress, "a new job starts from zero")
}

func TestPollerCloseStopsUpdates(t *testing.T) {
	b := &scriptedBackend{script: []statusStep{{job: model.TrainingJob{Status: model.JobRunning, Progress: 50}}}}
	clk := newClock()
	p := NewPoller(b, PollerOptions{Interval: interval, Clock: clk})

	require.NoError(t, p.Start(context.Background(), validRequest()))
	first, ok := <-p.Updates()
	require.True(t, ok)
	assert.Equal(t, model.JobQueued, first.Status)

	p.Close()
	before := p.Snapshot()
	clk.Step(interval)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, before, p.Snapshot())
	assert.Zero(t, b.polls.Load())
	_, ok = <-p.Updates()
	assert.False(t, ok, "updates closed")
	assert.ErrorIs(t, p.Start(context.Background(), validRequest()), ErrClosed)
}

func TestPollerUpdatesCarryLatestState(t *testing.T) {
	b := &scriptedBackend{script: []statusStep{
		{job: model.TrainingJob{Status: model.JobRunning, Progress: 20}},
		{job: model.TrainingJob{Status: model.JobCompleted}},
	}}
	clk := newClock()
	p := NewPoller(b, PollerOptions{Interval: interval, Clock: clk})
	defer p.Close()

	require.NoError(t, p.Start(context.Background(), validRequest()))
	tick(t, clk, b, p, 1, func(j model.TrainingJob) bool { return j.Progress == 20 })
	tick(t, clk, b, p, 2, func(j model.TrainingJob) bool { return j.Status.IsTerminal() })

	last := <-p.Updates()
	assert.Equal(t, model.JobCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
}

func TestPollerStartTimeoutIsReported(t *testing.T) {
	b := &scriptedBackend{startErr: errors.Join(api.ErrTimeout, errors.New("POST /models/train"))}
	p := NewPoller(b, PollerOptions{Clock: newClock()})
	defer p.Close()

	err := p.Start(context.Background(), validRequest())
	assert.ErrorIs(t, err, api.ErrTimeout)
	assert.Equal(t, model.JobFailed, p.Snapshot().Status)
	assert.NotEmpty(t, p.Snapshot().Error)
}
