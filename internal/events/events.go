// Package events announces finished jobs to interested subscribers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"scheduler/internal/domain"
)

// DefaultSubjectPrefix is prepended to the lower-cased terminal status.
const DefaultSubjectPrefix = "jobs"

// JobEvent describes a job that reached a terminal status.
type JobEvent struct {
	EventID    string           `json:"event_id"`
	JobID      domain.JobID     `json:"job_id"`
	JobType    domain.JobType   `json:"job_type"`
	Status     domain.JobStatus `json:"status"`
	Result     domain.Result    `json:"result,omitempty"`
	RunAt      time.Time        `json:"run_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// NewJobEvent builds the event for a terminal job.
func NewJobEvent(job domain.Job, finishedAt time.Time) JobEvent {
	return JobEvent{
		EventID:    uuid.NewString(),
		JobID:      job.ID,
		JobType:    job.Type,
		Status:     job.Status,
		Result:     job.Result,
		RunAt:      job.RunAt,
		FinishedAt: finishedAt,
	}
}

// Publisher delivers job events.
type Publisher interface {
	Publish(ctx context.Context, evt JobEvent) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, JobEvent) error { return nil }

type natsConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSPublisher publishes events as JSON on "<prefix>.completed" and "<prefix>.failed".
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// ConnectNATS dials the server at url.
func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("events: nats url is required")
	}
	nc, err := nats.Connect(url, nats.Name("scheduler"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("events: connect nats: %w", err)
	}
	return newNATSPublisher(nc, prefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject an event with status is published on.
func (p *NATSPublisher) Subject(status domain.JobStatus) string {
	return p.prefix + "." + strings.ToLower(string(status))
}

func (p *NATSPublisher) Publish(ctx context.Context, evt JobEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: encode job event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(evt.Status), data); err != nil {
		return fmt.Errorf("events: publish job event: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*NATSPublisher)(nil)
)
