package domain

import (
	"context"
	"time"
)

// JobStore mirrors job creation and status changes to durable storage.
// The registry owns job state; a store never writes back into it.
type JobStore interface {
	// CreateJob persists a new record and returns the identifier to use for it.
	// An empty identifier asks the caller to assign one itself.
	CreateJob(ctx context.Context, jobType JobType, runAt time.Time, status JobStatus, params Params) (JobID, error)
	// UpdateJobStatus persists a transition and, for terminal states, its result.
	UpdateJobStatus(ctx context.Context, id JobID, status JobStatus, result Result) error
}

