package jobs

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"scheduler/internal/domain"
)

// NopStore is the store used when durability is not configured. It issues no
// identifiers and drops status updates.
type NopStore struct{}

func (NopStore) CreateJob(context.Context, domain.JobType, time.Time, domain.JobStatus, domain.Params) (domain.JobID, error) {
	return "", nil
}

func (NopStore) UpdateJobStatus(context.Context, domain.JobID, domain.JobStatus, domain.Result) error {
	return nil
}

var _ domain.JobStore = NopStore{}

// Sequence issues identifiers for jobs the store did not number.
type Sequence interface {
	Next() domain.JobID
}

// Counter is a monotonically increasing Sequence. Each Registry owns its own.
type Counter struct {
	n atomic.Uint64
}

// NewCounter returns a counter whose first identifier is start+1.
func NewCounter(start uint64) *Counter {
	c := &Counter{}
	c.n.Store(start)
	return c
}

func (c *Counter) Next() domain.JobID {
	return domain.JobID(strconv.FormatUint(c.n.Add(1), 10))
}
