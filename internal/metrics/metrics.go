// Package metrics exposes Prometheus collectors for poll ticks and job outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"scheduler/internal/domain"
)

// Collector records poller activity. A nil *Collector is valid and records nothing.
type Collector struct {
	ticks       prometheus.Counter
	dueJobs     prometheus.Histogram
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// New builds the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "poll_ticks_total",
			Help:      "Number of poll ticks executed.",
		}),
		dueJobs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scheduler",
			Name:      "poll_due_jobs",
			Help:      "Due jobs found per poll tick.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "jobs_total",
			Help:      "Jobs executed by type and terminal status.",
		}, []string{"job_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Handler execution time in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job_type"}),
	}
	if reg != nil {
		reg.MustRegister(c.ticks, c.dueJobs, c.jobsTotal, c.jobDuration)
	}
	return c
}

// ObserveTick records one poll tick that found due jobs.
func (c *Collector) ObserveTick(due int) {
	if c == nil {
		return
	}
	c.ticks.Inc()
	c.dueJobs.Observe(float64(due))
}

// ObserveJob records a job that reached status after running for elapsed.
func (c *Collector) ObserveJob(jobType domain.JobType, status domain.JobStatus, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.jobsTotal.WithLabelValues(string(jobType), string(status)).Inc()
	c.jobDuration.WithLabelValues(string(jobType)).Observe(elapsed.Seconds())
}
