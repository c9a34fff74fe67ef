package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"scheduler/internal/domain"
)

type createJobRequest struct {
	JobType string        `json:"job_type"`
	RunAt   time.Time     `json:"run_at"`
	Params  domain.Params `json:"params"`
}

type completeJobRequest struct {
	Result domain.Result `json:"result"`
}

type failJobRequest struct {
	Error string `json:"error"`
}

type pollRequest struct {
	Now *time.Time `json:"now"`
}

// CreateJob registers a DRAFT job.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	job, err := a.Registry.CreateJob(r.Context(), domain.JobType(req.JobType), req.RunAt, req.Params)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			a.error(w, http.StatusBadRequest, err.Error())
		default:
			a.Logger.Error().Err(err).Str("job_type", req.JobType).Msg("http: create job failed")
			a.error(w, http.StatusInternalServerError, "could not create job")
		}
		return
	}
	a.json(w, http.StatusCreated, job)
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, listResponse{Items: a.Registry.ListJobs()})
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := a.Registry.GetJob(jobIDParam(r))
	if !ok {
		a.error(w, http.StatusNotFound, "job not found")
		return
	}
	a.json(w, http.StatusOK, job)
}

func (a *App) ScheduleJob(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, func(id domain.JobID) bool {
		return a.Registry.ScheduleJob(r.Context(), id)
	})
}

func (a *App) StartJob(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, func(id domain.JobID) bool {
		return a.Registry.StartJob(r.Context(), id)
	})
}

func (a *App) CompleteJob(w http.ResponseWriter, r *http.Request) {
	var req completeJobRequest
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	a.transition(w, r, func(id domain.JobID) bool {
		return a.Registry.CompleteJob(r.Context(), id, req.Result)
	})
}

func (a *App) FailJob(w http.ResponseWriter, r *http.Request) {
	var req failJobRequest
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	msg := strings.TrimSpace(req.Error)
	if msg == "" {
		msg = "failed by operator"
	}
	a.transition(w, r, func(id domain.JobID) bool {
		return a.Registry.FailJob(r.Context(), id, errors.New(msg))
	})
}

// transition maps a rejected transition to 404 when the job is unknown and 409 otherwise.
func (a *App) transition(w http.ResponseWriter, r *http.Request, apply func(domain.JobID) bool) {
	id := jobIDParam(r)
	if _, ok := a.Registry.GetJob(id); !ok {
		a.error(w, http.StatusNotFound, "job not found")
		return
	}
	if !apply(id) {
		current, _ := a.Registry.GetJob(id)
		a.error(w, http.StatusConflict, "transition not allowed from status "+string(current.Status))
		return
	}
	job, _ := a.Registry.GetJob(id)
	a.json(w, http.StatusOK, job)
}

// Poll runs every job due at the given time, or now when none is given.
func (a *App) Poll(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	now := a.now()
	if req.Now != nil {
		now = *req.Now
	}
	items := a.Poller.RunDueJobs(r.Context(), now)
	if items == nil {
		items = []domain.Job{}
	}
	a.json(w, http.StatusOK, listResponse{Items: items})
}

func jobIDParam(r *http.Request) domain.JobID {
	return domain.JobID(strings.TrimSpace(chi.URLParam(r, "id")))
}
