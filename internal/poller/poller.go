// Package poller drains due jobs from the registry through the dispatcher.
package poller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"scheduler/internal/domain"
	"scheduler/internal/events"
	"scheduler/internal/metrics"
)

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("poller: already running")

// Registry is the part of jobs.Registry the poller drives.
type Registry interface {
	DueJobs(now time.Time) []domain.Job
	StartJob(ctx context.Context, id domain.JobID) bool
	CompleteJob(ctx context.Context, id domain.JobID, result domain.Result) bool
	FailJob(ctx context.Context, id domain.JobID, cause error) bool
	GetJob(id domain.JobID) (domain.Job, bool)
}

// Invoker runs the handler for a job type.
type Invoker interface {
	Invoke(ctx context.Context, jobType domain.JobType, params domain.Params) (domain.Result, error)
}

// Poller executes due jobs. Ticks on one Poller never overlap.
type Poller struct {
	registry  Registry
	invoker   Invoker
	logger    zerolog.Logger
	metrics   *metrics.Collector
	publisher events.Publisher
	now       func() time.Time

	tickMu  sync.Mutex
	running atomic.Bool
}

// Option configures a Poller.
type Option func(*Poller)

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(p *Poller) { p.metrics = c }
}

// WithPublisher announces every job that reaches a terminal status.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Poller) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithClock sets the clock Run uses to pick the tick time.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

func New(registry Registry, invoker Invoker, opts ...Option) *Poller {
	p := &Poller{
		registry:  registry,
		invoker:   invoker,
		logger:    zerolog.Nop(),
		publisher: events.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunDueJobs executes every job due at now and returns them, in execution
// order, as they stand after their terminal transition. Handler failures are
// recorded on the job and never returned. If ctx is cancelled the remaining
// due jobs stay SCHEDULED for a later tick.
func (p *Poller) RunDueJobs(ctx context.Context, now time.Time) []domain.Job {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	due := p.registry.DueJobs(now)
	processed := make([]domain.Job, 0, len(due))
	var completed, failed int

	for i, job := range due {
		if ctx.Err() != nil {
			p.logger.Warn().Int("remaining", len(due)-i).Msg("poller: tick interrupted")
			break
		}
		if !p.registry.StartJob(ctx, job.ID) {
			p.logger.Debug().Str("job_id", string(job.ID)).Msg("poller: job no longer scheduled, skipping")
			continue
		}

		done := p.execute(ctx, job)
		switch done.Status {
		case domain.JobStatusCompleted:
			completed++
		case domain.JobStatusFailed:
			failed++
		}
		processed = append(processed, done)
	}

	p.metrics.ObserveTick(len(due))
	if len(due) > 0 {
		p.logger.Info().
			Int("due", len(due)).
			Int("completed", completed).
			Int("failed", failed).
			Msg("poller: tick finished")
	}
	return processed
}

func (p *Poller) execute(ctx context.Context, job domain.Job) domain.Job {
	started := time.Now()
	result, err := p.invoke(ctx, job)
	elapsed := time.Since(started)

	status := domain.JobStatusCompleted
	if err != nil {
		status = domain.JobStatusFailed
		p.registry.FailJob(ctx, job.ID, err)
		p.logger.Debug().
			Err(err).
			Str("job_id", string(job.ID)).
			Str("job_type", string(job.Type)).
			Msg("poller: job failed")
	} else {
		p.registry.CompleteJob(ctx, job.ID, result)
		p.logger.Debug().
			Str("job_id", string(job.ID)).
			Str("job_type", string(job.Type)).
			Dur("elapsed", elapsed).
			Msg("poller: job completed")
	}

	current, ok := p.registry.GetJob(job.ID)
	if !ok {
		current = job
		current.Status = status
	}
	p.metrics.ObserveJob(current.Type, current.Status, elapsed)
	if err := p.publisher.Publish(ctx, events.NewJobEvent(current, p.now())); err != nil {
		p.logger.Warn().Err(err).Str("job_id", string(job.ID)).Msg("poller: publish job event failed")
	}
	return current
}

// invoke shields the tick from invokers that panic.
func (p *Poller) invoke(ctx context.Context, job domain.Job) (result domain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("job_id", string(job.ID)).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("poller: invoke panicked")
			result, err = nil, fmt.Errorf("%w: panic invoking %s: %v", domain.ErrHandler, job.Type, r)
		}
	}()
	return p.invoker.Invoke(ctx, job.Type, job.Params)
}

// Run fires RunDueJobs on every trigger tick until ctx is cancelled, then
// returns ctx.Err(). Only one Run may be active per Poller.
func (p *Poller) Run(ctx context.Context, trigger Trigger) error {
	if trigger == nil {
		return errors.New("poller: trigger is required")
	}
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	p.logger.Info().Str("trigger", trigger.String()).Msg("poller: started")
	defer p.logger.Info().Msg("poller: stopped")

	for {
		now := p.now()
		next := trigger.Next(now)
		if next.IsZero() {
			return errors.New("poller: trigger produced no next tick")
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		p.tick(ctx)
	}
}

// Running reports whether Run is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

func (p *Poller) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("poller: tick panicked")
		}
	}()
	p.RunDueJobs(ctx, p.now())
}
