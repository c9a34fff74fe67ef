package domain

import (
	"maps"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// JobID identifies a job for the lifetime of its registry.
type JobID string

// JobType names a category of deferred work. Handlers are registered per type.
type JobType string

const (
	JobTypeReportEmail JobType = "REPORT_EMAIL"
)

var upper = cases.Upper(language.Und)

// ParseJobType canonicalizes a job type so "report_email " and "REPORT_EMAIL" match.
func ParseJobType(raw string) JobType {
	return JobType(upper.String(strings.TrimSpace(raw)))
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusDraft     JobStatus = "DRAFT"
	JobStatusScheduled JobStatus = "SCHEDULED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further transition can leave the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusDraft, JobStatusScheduled, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Params carries the named inputs of a job. Only the matching handler interprets it.
type Params map[string]any

// Result holds handler output once a job is terminal. Failed jobs carry at least ResultErrorKey.
type Result map[string]any

// ResultErrorKey is the result entry recording why a job failed.
const ResultErrorKey = "error"

// ErrorResult builds the result recorded for a failed job.
func ErrorResult(err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{ResultErrorKey: msg}
}

// Job is a unit of deferred work.
type Job struct {
	ID        JobID     `json:"id"`
	Type      JobType   `json:"job_type"`
	RunAt     time.Time `json:"run_at"`
	Status    JobStatus `json:"status"`
	Params    Params    `json:"params"`
	Result    Result    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Due reports whether the job is scheduled and its run time has passed at now.
func (j Job) Due(now time.Time) bool {
	return j.Status == JobStatusScheduled && !j.RunAt.After(now)
}

// Clone returns a copy whose maps can be modified without affecting j.
// Nested values inside the maps are shared.
func (j Job) Clone() Job {
	out := j
	if j.Params != nil {
		out.Params = maps.Clone(j.Params)
	}
	if j.Result != nil {
		out.Result = maps.Clone(j.Result)
	}
	return out
}
