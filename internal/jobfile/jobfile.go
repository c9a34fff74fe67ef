// Package jobfile reads job definitions from YAML and registers them.
//
//	jobs:
//	  - type: REPORT_EMAIL
//	    run_in: 10m
//	    params:
//	      recipients: [ops@example.com]
//	      subject: Weekly emissions
//	      body: "<html>...</html>"
package jobfile

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"scheduler/internal/domain"
)

// Definition is one job entry. Exactly one of RunAt and RunIn must be set.
type Definition struct {
	Type     string         `yaml:"type"`
	RunAt    *time.Time     `yaml:"run_at"`
	RunIn    string         `yaml:"run_in"`
	Params   map[string]any `yaml:"params"`
	Schedule *bool          `yaml:"schedule"`
}

type File struct {
	Jobs []Definition `yaml:"jobs"`
}

// Load reads and validates path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jobfile: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("jobfile: %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", domain.ErrValidation, err)
	}
	for i, def := range f.Jobs {
		if err := def.validate(); err != nil {
			return nil, fmt.Errorf("jobs[%d]: %w", i, err)
		}
	}
	return &f, nil
}

func (d Definition) validate() error {
	if domain.ParseJobType(d.Type) == "" {
		return fmt.Errorf("%w: type is required", domain.ErrValidation)
	}
	hasRunIn := strings.TrimSpace(d.RunIn) != ""
	switch {
	case d.RunAt != nil && hasRunIn:
		return fmt.Errorf("%w: run_at and run_in are mutually exclusive", domain.ErrValidation)
	case d.RunAt == nil && !hasRunIn:
		return fmt.Errorf("%w: one of run_at or run_in is required", domain.ErrValidation)
	case hasRunIn:
		dur, err := time.ParseDuration(strings.TrimSpace(d.RunIn))
		if err != nil {
			return fmt.Errorf("%w: run_in: %v", domain.ErrValidation, err)
		}
		if dur < 0 {
			return fmt.Errorf("%w: run_in must not be negative", domain.ErrValidation)
		}
	}
	return nil
}

// RunTime resolves the absolute run time relative to now.
func (d Definition) RunTime(now time.Time) time.Time {
	if d.RunAt != nil {
		return *d.RunAt
	}
	dur, _ := time.ParseDuration(strings.TrimSpace(d.RunIn))
	return now.Add(dur)
}

// ShouldSchedule reports whether the job moves to SCHEDULED after creation. Defaults to true.
func (d Definition) ShouldSchedule() bool {
	return d.Schedule == nil || *d.Schedule
}

// Registrar is the part of jobs.Registry used to seed jobs.
type Registrar interface {
	CreateJob(ctx context.Context, jobType domain.JobType, runAt time.Time, params domain.Params) (domain.Job, error)
	ScheduleJob(ctx context.Context, id domain.JobID) bool
	GetJob(id domain.JobID) (domain.Job, bool)
}

// Apply creates every definition in order, scheduling those that ask for it,
// and returns the jobs as registered. It stops at the first creation error.
func Apply(ctx context.Context, reg Registrar, f *File, now time.Time) ([]domain.Job, error) {
	if f == nil {
		return nil, nil
	}
	out := make([]domain.Job, 0, len(f.Jobs))
	for i, def := range f.Jobs {
		job, err := reg.CreateJob(ctx, domain.JobType(def.Type), def.RunTime(now), domain.Params(def.Params))
		if err != nil {
			return out, fmt.Errorf("jobfile: jobs[%d]: %w", i, err)
		}
		if def.ShouldSchedule() && reg.ScheduleJob(ctx, job.ID) {
			if current, ok := reg.GetJob(job.ID); ok {
				job = current
			}
		}
		out = append(out, job)
	}
	return out, nil
}
