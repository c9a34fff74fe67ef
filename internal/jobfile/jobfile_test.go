package jobfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scheduler/internal/domain"
	"scheduler/internal/jobs"
)

const sample = `
jobs:
  - type: report_email
    run_in: 10m
    params:
      recipients: [ops@example.com, cfo@example.com]
      subject: Weekly emissions
      body: "<html><body>ok</body></html>"
  - type: REPORT_EMAIL
    run_at: 2024-06-01T08:00:00Z
    schedule: false
    params:
      recipients: [audit@example.com]
      subject: Draft
      body: plain
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(f.Jobs) != 2 {
		t.Fatalf("got %d jobs", len(f.Jobs))
	}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if got := f.Jobs[0].RunTime(now); !got.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("run_in resolved to %s", got)
	}
	if got := f.Jobs[1].RunTime(now); !got.Equal(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("run_at resolved to %s", got)
	}
	if !f.Jobs[0].ShouldSchedule() || f.Jobs[1].ShouldSchedule() {
		t.Fatal("schedule defaults not honored")
	}
	recipients, ok := f.Jobs[0].Params["recipients"].([]any)
	if !ok || len(recipients) != 2 {
		t.Fatalf("recipients = %#v", f.Jobs[0].Params["recipients"])
	}
}

func TestParseRejectsInvalidDefinitions(t *testing.T) {
	tests := map[string]string{
		"missing type":   "jobs:\n  - run_in: 1m\n",
		"missing time":   "jobs:\n  - type: X\n",
		"both times":     "jobs:\n  - type: X\n    run_in: 1m\n    run_at: 2024-01-01T00:00:00Z\n",
		"bad duration":   "jobs:\n  - type: X\n    run_in: soon\n",
		"negative delay": "jobs:\n  - type: X\n    run_in: -5m\n",
		"not yaml":       "jobs: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	reg := jobs.NewRegistry()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	created, err := Apply(context.Background(), reg, f, now)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d jobs", len(created))
	}
	if created[0].Status != domain.JobStatusScheduled || created[0].Type != domain.JobTypeReportEmail {
		t.Fatalf("first job = %+v", created[0])
	}
	if created[1].Status != domain.JobStatusDraft {
		t.Fatalf("second job status = %s, want DRAFT", created[1].Status)
	}
	if len(reg.ListJobs()) != 2 {
		t.Fatal("jobs not registered")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
