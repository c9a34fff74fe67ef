package handlers

import (
	"net/http"

	"scheduler/internal/domain"
)

type healthResponse struct {
	Status string                   `json:"status"`
	Jobs   map[domain.JobStatus]int `json:"jobs"`
}

// Health reports liveness with a count of registered jobs per status.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	counts := make(map[domain.JobStatus]int)
	for _, job := range a.Registry.ListJobs() {
		counts[job.Status]++
	}
	a.json(w, http.StatusOK, healthResponse{Status: "ok", Jobs: counts})
}
