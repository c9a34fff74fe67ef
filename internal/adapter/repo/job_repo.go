package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"scheduler/internal/domain"
	"scheduler/internal/infra"
	"scheduler/internal/sqlinline"
)

// JobRepositoryPG mirrors jobs into the scheduled_jobs table.
type JobRepositoryPG struct {
	exec infra.SQLExecutor
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(exec infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{exec: exec}
}

// CreateJob inserts the job and returns the id issued by the bigserial column.
func (r *JobRepositoryPG) CreateJob(ctx context.Context, jobType domain.JobType, runAt time.Time, status domain.JobStatus, params domain.Params) (domain.JobID, error) {
	if params == nil {
		params = domain.Params{}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	var id string
	if err := r.exec.QueryRow(ctx, sqlinline.QInsertScheduledJob, string(jobType), runAt.UTC(), string(status), string(payload)).Scan(&id); err != nil {
		return "", fmt.Errorf("insert scheduled job: %w", err)
	}
	return domain.JobID(id), nil
}

// UpdateJobStatus records a status change. A nil result is stored as NULL.
func (r *JobRepositoryPG) UpdateJobStatus(ctx context.Context, id domain.JobID, status domain.JobStatus, result domain.Result) error {
	encoded, err := nullableJSON(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	tag, err := r.exec.Exec(ctx, sqlinline.QUpdateScheduledJobStatus, string(id), string(status), encoded)
	if err != nil {
		return fmt.Errorf("update scheduled job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update scheduled job %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent returns up to limit mirrored jobs, newest first.
func (r *JobRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.exec.Query(ctx, sqlinline.QListRecentScheduledJobs, limit)
	if err != nil {
		return nil, fmt.Errorf("list scheduled jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		var (
			job                 domain.Job
			id, jobType, status string
			params, result      []byte
		)
		if err := rows.Scan(&id, &jobType, &job.RunAt, &status, &params, &result, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan scheduled job: %w", err)
		}
		job.ID = domain.JobID(id)
		job.Type = domain.JobType(jobType)
		job.Status = domain.JobStatus(status)
		if len(params) > 0 {
			if err := json.Unmarshal(params, &job.Params); err != nil {
				return nil, fmt.Errorf("decode params of job %s: %w", id, err)
			}
		}
		if len(result) > 0 {
			if err := json.Unmarshal(result, &job.Result); err != nil {
				return nil, fmt.Errorf("decode result of job %s: %w", id, err)
			}
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scheduled jobs: %w", err)
	}
	return out, nil
}

// CountByStatus returns how many mirrored jobs sit in each status.
func (r *JobRepositoryPG) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	rows, err := r.exec.Query(ctx, sqlinline.QCountScheduledJobsByStatus)
	if err != nil {
		return nil, fmt.Errorf("count scheduled jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func nullableJSON(result domain.Result) (any, error) {
	if result == nil {
		return nil, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
