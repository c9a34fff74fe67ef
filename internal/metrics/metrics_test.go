package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"scheduler/internal/domain"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.ObserveTick(2)
	c.ObserveJob(domain.JobTypeReportEmail, domain.JobStatusCompleted, 10*time.Millisecond)
	c.ObserveJob(domain.JobTypeReportEmail, domain.JobStatusFailed, 5*time.Millisecond)
	c.ObserveJob(domain.JobTypeReportEmail, domain.JobStatusFailed, 5*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "scheduler_jobs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			counts[labelValue(m, "status")] = m.GetCounter().GetValue()
		}
	}
	if counts["COMPLETED"] != 1 || counts["FAILED"] != 2 {
		t.Fatalf("unexpected job counts: %v", counts)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveTick(1)
	c.ObserveJob(domain.JobTypeReportEmail, domain.JobStatusCompleted, time.Second)
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
