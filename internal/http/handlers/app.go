package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"scheduler/internal/domain"
)

// JobRegistry is the registry surface exposed over HTTP.
type JobRegistry interface {
	CreateJob(ctx context.Context, jobType domain.JobType, runAt time.Time, params domain.Params) (domain.Job, error)
	ScheduleJob(ctx context.Context, id domain.JobID) bool
	StartJob(ctx context.Context, id domain.JobID) bool
	CompleteJob(ctx context.Context, id domain.JobID, result domain.Result) bool
	FailJob(ctx context.Context, id domain.JobID, cause error) bool
	GetJob(id domain.JobID) (domain.Job, bool)
	ListJobs() []domain.Job
}

// DueJobRunner executes due jobs on demand.
type DueJobRunner interface {
	RunDueJobs(ctx context.Context, now time.Time) []domain.Job
}

// App carries the dependencies of the control API handlers.
type App struct {
	Registry JobRegistry
	Poller   DueJobRunner
	Logger   zerolog.Logger
	Now      func() time.Time
}

func NewApp(registry JobRegistry, poller DueJobRunner, logger zerolog.Logger) *App {
	return &App{Registry: registry, Poller: poller, Logger: logger, Now: time.Now}
}

type errorResponse struct {
	Error string `json:"error"`
}

type listResponse struct {
	Items []domain.Job `json:"items"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, errorResponse{Error: msg})
}

// decode reads an optional JSON body. An empty body leaves v untouched.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
