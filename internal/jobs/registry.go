// Package jobs owns job identity and lifecycle state.
package jobs

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"scheduler/internal/domain"
)

// requiredSource maps each target status to the only status it may be entered from.
var requiredSource = map[domain.JobStatus]domain.JobStatus{
	domain.JobStatusScheduled: domain.JobStatusDraft,
	domain.JobStatusRunning:   domain.JobStatusScheduled,
	domain.JobStatusCompleted: domain.JobStatusRunning,
	domain.JobStatusFailed:    domain.JobStatusRunning,
}

// DefaultMirrorTimeout bounds a single store write.
const DefaultMirrorTimeout = 10 * time.Second

// Registry is the authoritative in-memory set of jobs. It is the only
// component that changes a job's status and mirrors every change to its store.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[domain.JobID]*domain.Job
	order []domain.JobID

	// mirrorMu keeps store writes in transition order.
	mirrorMu sync.Mutex

	store         domain.JobStore
	mirrorTimeout time.Duration
	seq           Sequence
	logger        zerolog.Logger
	now           func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore mirrors jobs to store. A nil store keeps the registry in memory only.
func WithStore(store domain.JobStore) Option {
	return func(r *Registry) {
		if store != nil {
			r.store = store
		}
	}
}

// WithSequence replaces the identifier source used when the store issues none.
func WithSequence(seq Sequence) Option {
	return func(r *Registry) {
		if seq != nil {
			r.seq = seq
		}
	}
}

// WithMirrorTimeout bounds each status write to the store. Non-positive values are ignored.
func WithMirrorTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.mirrorTimeout = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithClock sets the clock used for CreatedAt/UpdatedAt bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty registry. Without options it behaves as a pure
// in-memory scheduler numbering jobs 1, 2, 3...
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		jobs:          make(map[domain.JobID]*domain.Job),
		store:         NopStore{},
		mirrorTimeout: DefaultMirrorTimeout,
		seq:           NewCounter(0),
		logger:        zerolog.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateJob registers a new job in DRAFT. It fails only on invalid input or
// when the store rejects the record, in which case no job exists.
func (r *Registry) CreateJob(ctx context.Context, jobType domain.JobType, runAt time.Time, params domain.Params) (domain.Job, error) {
	jobType = domain.ParseJobType(string(jobType))
	if jobType == "" {
		return domain.Job{}, fmt.Errorf("%w: job type is required", domain.ErrValidation)
	}
	if runAt.IsZero() {
		return domain.Job{}, fmt.Errorf("%w: run_at is required", domain.ErrValidation)
	}
	params = maps.Clone(params)
	if params == nil {
		params = domain.Params{}
	}

	id, err := r.store.CreateJob(ctx, jobType, runAt, domain.JobStatusDraft, params)
	if err != nil {
		return domain.Job{}, fmt.Errorf("%w: create job: %v", domain.ErrStore, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" {
		id = r.seq.Next()
	}
	if _, exists := r.jobs[id]; exists {
		r.logger.Error().
			Str("job_id", string(id)).
			Str("job_type", string(jobType)).
			Msg("registry: store issued a duplicate id, its DRAFT record is orphaned")
		return domain.Job{}, fmt.Errorf("%w: duplicate job id %q", domain.ErrStore, id)
	}
	now := r.now()
	job := &domain.Job{
		ID:        id,
		Type:      jobType,
		RunAt:     runAt,
		Status:    domain.JobStatusDraft,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[id] = job
	r.order = append(r.order, id)

	r.logger.Debug().Str("job_id", string(id)).Str("job_type", string(jobType)).Time("run_at", runAt).Msg("registry: job created")
	return job.Clone(), nil
}

// ScheduleJob moves a DRAFT job to SCHEDULED.
func (r *Registry) ScheduleJob(ctx context.Context, id domain.JobID) bool {
	return r.transition(ctx, id, domain.JobStatusScheduled, nil)
}

// StartJob moves a SCHEDULED job to RUNNING.
func (r *Registry) StartJob(ctx context.Context, id domain.JobID) bool {
	return r.transition(ctx, id, domain.JobStatusRunning, nil)
}

// CompleteJob moves a RUNNING job to COMPLETED and records result.
func (r *Registry) CompleteJob(ctx context.Context, id domain.JobID, result domain.Result) bool {
	if result == nil {
		result = domain.Result{}
	}
	return r.transition(ctx, id, domain.JobStatusCompleted, result)
}

// FailJob moves a RUNNING job to FAILED and records the error message.
func (r *Registry) FailJob(ctx context.Context, id domain.JobID, cause error) bool {
	return r.transition(ctx, id, domain.JobStatusFailed, domain.ErrorResult(cause))
}

// GetJob returns a copy of the job with the given id.
func (r *Registry) GetJob(id domain.JobID) (domain.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return job.Clone(), true
}

// ListJobs returns a snapshot of every job in insertion order.
func (r *Registry) ListJobs() []domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Job, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.jobs[id].Clone())
	}
	return out
}

// DueJobs returns the SCHEDULED jobs whose run time is at or before now,
// earliest first with ties broken by ascending id.
func (r *Registry) DueJobs(now time.Time) []domain.Job {
	r.mu.RLock()
	var due []domain.Job
	for _, id := range r.order {
		if job := r.jobs[id]; job.Due(now) {
			due = append(due, job.Clone())
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].RunAt.Equal(due[j].RunAt) {
			return due[i].RunAt.Before(due[j].RunAt)
		}
		return lessID(due[i].ID, due[j].ID)
	})
	return due
}

func (r *Registry) transition(ctx context.Context, id domain.JobID, to domain.JobStatus, result domain.Result) bool {
	from := requiredSource[to]

	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug().Str("job_id", string(id)).Str("status", string(to)).Err(domain.ErrNotFound).Msg("registry: transition rejected")
		return false
	}
	if job.Status != from {
		current := job.Status
		r.mu.Unlock()
		r.logger.Debug().
			Str("job_id", string(id)).
			Str("status", string(to)).
			Str("current", string(current)).
			Err(domain.ErrInvalidState).
			Msg("registry: transition rejected")
		return false
	}
	job.Status = to
	job.Result = maps.Clone(result)
	job.UpdatedAt = r.now()

	r.mirrorMu.Lock()
	r.mu.Unlock()
	defer r.mirrorMu.Unlock()

	// Memory has already moved on; the mirror write survives caller cancellation.
	mirrorCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.mirrorTimeout)
	defer cancel()
	if err := r.store.UpdateJobStatus(mirrorCtx, id, to, result); err != nil {
		r.logger.Error().
			Err(fmt.Errorf("%w: %v", domain.ErrStore, err)).
			Str("job_id", string(id)).
			Str("status", string(to)).
			Msg("registry: mirror status update failed")
	}
	return true
}

// lessID orders numeric ids numerically and falls back to string order.
func lessID(a, b domain.JobID) bool {
	an, aErr := strconv.ParseUint(string(a), 10, 64)
	bn, bErr := strconv.ParseUint(string(b), 10, 64)
	if aErr == nil && bErr == nil {
		return an < bn
	}
	return a < b
}
