// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package training

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

// DefaultPollInterval is how often job status is fetched.
const DefaultPollInterval = 3 * time.Second

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("training poller closed")

	// ErrJobActive is returned when a job is already queued or running.
	ErrJobActive = errors.New("a training job is already in progress")
)

// Backend is the part of the API client the poller needs.
type Backend interface {
	StartTraining(ctx context.Context, req model.TrainRequest) (*model.TrainResponse, error)
	TrainingStatus(ctx context.Context, jobID string) (*model.TrainingJob, error)
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	// Interval between status fetches. Defaults to DefaultPollInterval.
	Interval time.Duration
	// Clock drives the ticker. Defaults to the real clock.
	Clock clock.WithTicker
	// Logger receives transient poll errors.
	Logger *zap.Logger
	// OnCompleted runs once when a job completes, e.g. to reload the
	// trained model list.
	OnCompleted func(ctx context.Context, job model.TrainingJob)
}

// Poller starts a training job and follows it until it is terminal.
// One goroutine handles ticks sequentially, so status fetches never
// overlap.
type Poller struct {
	backend     Backend
	clock       clock.WithTicker
	interval    time.Duration
	logger      *zap.Logger
	onCompleted func(ctx context.Context, job model.TrainingJob)

	updates chan model.TrainingJob
	wg      sync.WaitGroup

	mu       sync.Mutex
	job      model.TrainingJob
	run      uint64
	starting bool
	closed   bool
	stop     func()
}

// NewPoller creates an idle poller.
func NewPoller(backend Backend, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Poller{
		backend:     backend,
		clock:       opts.Clock,
		interval:    opts.Interval,
		logger:      logging.OrNop(opts.Logger).Named("training"),
		onCompleted: opts.OnCompleted,
		updates:     make(chan model.TrainingJob, 1),
		job:         model.TrainingJob{Status: model.JobIdle},
	}
}

// Snapshot returns the current job state.
func (p *Poller) Snapshot() model.TrainingJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job
}

// Updates delivers the latest state after every change. Only the newest
// value is buffered. The channel is closed by Close.
func (p *Poller) Updates() <-chan model.TrainingJob {
	return p.updates
}

// Start validates req, submits it and begins polling. A submission error
// moves the poller to failed without a job id and is returned.
func (p *Poller) Start(ctx context.Context, req model.TrainRequest) error {
	if err := ValidateRequest(req); err != nil {
		return err
	}

	p.mu.Lock()
	if err := p.beginLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	resp, err := p.backend.StartTraining(ctx, req)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.starting = false
	if p.closed {
		return ErrClosed
	}
	if err != nil {
		p.logger.Warn("failed to start training", zap.String("method_key", req.MethodKey), zap.Error(err))
		p.setLocked(model.TrainingJob{Status: model.JobFailed, Error: api.ErrorDetail(err)})
		return err
	}

	p.logger.Info("training job started", zap.String("job_id", resp.JobID))
	p.followLocked(resp.JobID, req)
	return nil
}

// Follow polls an existing job without submitting anything.
func (p *Poller) Follow(jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.beginLocked(); err != nil {
		return err
	}
	p.starting = false
	p.followLocked(jobID, model.TrainRequest{})
	return nil
}

func (p *Poller) beginLocked() error {
	if p.closed {
		return ErrClosed
	}
	if p.starting || p.job.Status == model.JobQueued || p.job.Status == model.JobRunning {
		return ErrJobActive
	}
	p.starting = true
	return nil
}

func (p *Poller) followLocked(jobID string, req model.TrainRequest) {
	p.run++
	run := p.run

	ctx, cancel := context.WithCancel(context.Background())
	ticker := p.clock.NewTicker(p.interval)
	var once sync.Once
	p.stop = func() {
		once.Do(func() {
			ticker.Stop()
			cancel()
		})
	}

	p.setLocked(model.TrainingJob{
		ID:            jobID,
		Status:        model.JobQueued,
		MethodKey:     req.MethodKey,
		BaseModelName: req.BaseModelName,
	})

	p.wg.Add(1)
	go p.loop(ctx, run, jobID, ticker, p.stop)
}

func (p *Poller) loop(ctx context.Context, run uint64, jobID string, ticker clock.Ticker, stop func()) {
	defer p.wg.Done()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if p.poll(ctx, run, jobID) {
				return
			}
		}
	}
}

// poll fetches one status and reports whether polling is over.
func (p *Poller) poll(ctx context.Context, run uint64, jobID string) bool {
	job, err := p.backend.TrainingStatus(ctx, jobID)
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, api.ErrJobNotFound) {
		job = &model.TrainingJob{ID: jobID, Status: model.JobFailed, Error: "Job not found"}
	} else if err != nil {
		p.logger.Debug("training status poll failed", zap.String("job_id", jobID), zap.Error(err))
		return false
	}

	p.mu.Lock()
	if p.closed || p.run != run {
		p.mu.Unlock()
		return true
	}
	next := p.merge(*job)
	p.setLocked(next)
	p.mu.Unlock()

	if !next.Status.IsTerminal() {
		return false
	}
	p.logger.Info("training job finished",
		zap.String("job_id", jobID),
		zap.String("status", string(next.Status)),
		zap.String("error", next.Error))
	if next.Status == model.JobCompleted && p.onCompleted != nil {
		p.onCompleted(ctx, next)
	}
	return true
}

// merge applies a server report to the local state. Progress does not go
// backwards while the job is active, and a completed job is at 100.
func (p *Poller) merge(report model.TrainingJob) model.TrainingJob {
	cur := p.job
	if report.ID == "" {
		report.ID = cur.ID
	}
	switch report.Status {
	case model.JobQueued, model.JobRunning:
		if report.Progress < cur.Progress {
			p.logger.Debug("ignoring progress regression",
				zap.String("job_id", report.ID),
				zap.Int("reported", report.Progress),
				zap.Int("kept", cur.Progress))
			report.Progress = cur.Progress
		}
	case model.JobCompleted:
		report.Progress = 100
	}
	return report
}

func (p *Poller) setLocked(job model.TrainingJob) {
	p.job = job
	if p.closed {
		return
	}
	select {
	case <-p.updates:
	default:
	}
	p.updates <- job
}

// Close stops polling and closes Updates. It is safe to call more than once.
func (p *Poller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	stop := p.stop
	close(p.updates)
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
	p.wg.Wait()
}
