package redisstore

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"scheduler/internal/domain"
)

func TestKeys(t *testing.T) {
	if got := jobKey("17"); got != "jobs:job:17" {
		t.Fatalf("jobKey = %q", got)
	}
	if seqKey != "jobs:seq" || jobIDsKey != "jobs:ids" || expiringKey != "jobs:expiring" {
		t.Fatalf("seqKey=%q jobIDsKey=%q expiringKey=%q", seqKey, jobIDsKey, expiringKey)
	}
}

func TestCreateFields(t *testing.T) {
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	runAt := time.Date(2024, 2, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	fields, err := createFields(domain.JobTypeReportEmail, runAt, domain.JobStatusDraft, nil, now)
	if err != nil {
		t.Fatalf("createFields error: %v", err)
	}
	if fields["run_at"] != "2024-02-01T11:00:00Z" {
		t.Fatalf("run_at = %v", fields["run_at"])
	}
	if fields["params"] != "{}" || fields["result"] != "" || fields["status"] != "DRAFT" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestStatusFields(t *testing.T) {
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	fields, err := statusFields(domain.JobStatusFailed, domain.Result{"error": "boom"}, now)
	if err != nil {
		t.Fatalf("statusFields error: %v", err)
	}
	if fields["result"] != `{"error":"boom"}` {
		t.Fatalf("result = %v", fields["result"])
	}

	fields, err = statusFields(domain.JobStatusRunning, nil, now)
	if err != nil {
		t.Fatalf("statusFields error: %v", err)
	}
	if fields["result"] != "" {
		t.Fatalf("running job result = %v, want empty", fields["result"])
	}

	if _, err := statusFields(domain.JobStatusCompleted, domain.Result{"bad": make(chan int)}, now); err == nil {
		t.Fatal("expected encode error")
	}
}

func TestOptions(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(nil, WithRetention(48*time.Hour), WithClock(func() time.Time { return fixed }))
	if s.retention != 48*time.Hour || !s.now().Equal(fixed) {
		t.Fatalf("retention=%s now=%s", s.retention, s.now())
	}
	if New(nil, WithRetention(-time.Hour)).retention != 0 {
		t.Fatal("negative retention should keep records")
	}
}

func TestUnreachableServer(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	s := New(client)
	ctx := context.Background()

	if _, err := s.CreateJob(ctx, domain.JobTypeReportEmail, time.Now(), domain.JobStatusDraft, nil); err == nil {
		t.Fatal("CreateJob should fail without a server")
	}
	err := s.UpdateJobStatus(ctx, "1", domain.JobStatusScheduled, nil)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateJobStatus error = %v, want connection error", err)
	}
}

// pruneClient answers the commands Prune issues. Anything else panics on the
// nil embedded Cmdable.
type pruneClient struct {
	goredis.Cmdable
	expiring map[string]float64
	ids      map[string]bool
	maxSeen  string
}

func (c *pruneClient) ZRangeByScore(ctx context.Context, key string, opt *goredis.ZRangeBy) *goredis.StringSliceCmd {
	c.maxSeen = opt.Max
	limit, err := strconv.ParseFloat(opt.Max, 64)
	if err != nil || key != expiringKey {
		return goredis.NewStringSliceResult(nil, errors.New("unexpected query"))
	}
	var out []string
	for id, score := range c.expiring {
		if score <= limit {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return goredis.NewStringSliceResult(out, nil)
}

func (c *pruneClient) SRem(ctx context.Context, key string, members ...interface{}) *goredis.IntCmd {
	for _, m := range members {
		delete(c.ids, m.(string))
	}
	return goredis.NewIntResult(int64(len(members)), nil)
}

func (c *pruneClient) ZRem(ctx context.Context, key string, members ...interface{}) *goredis.IntCmd {
	for _, m := range members {
		delete(c.expiring, m.(string))
	}
	return goredis.NewIntResult(int64(len(members)), nil)
}

func TestPruneDropsExpiredIDs(t *testing.T) {
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	client := &pruneClient{
		expiring: map[string]float64{
			"1": float64(now.Add(-time.Hour).Unix()),
			"2": float64(now.Unix()),
			"3": float64(now.Add(time.Hour).Unix()),
		},
		ids: map[string]bool{"1": true, "2": true, "3": true, "4": true},
	}
	s := New(client, WithRetention(24*time.Hour), WithClock(func() time.Time { return now }))

	n, err := s.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune error: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned %d, want 2", n)
	}
	if client.ids["1"] || client.ids["2"] || !client.ids["3"] || !client.ids["4"] {
		t.Fatalf("ids = %v", client.ids)
	}
	if _, ok := client.expiring["3"]; !ok || len(client.expiring) != 1 {
		t.Fatalf("expiring = %v", client.expiring)
	}
	if client.maxSeen != strconv.FormatInt(now.Unix(), 10) {
		t.Fatalf("cutoff = %s", client.maxSeen)
	}

	if n, err := s.Prune(context.Background()); err != nil || n != 0 {
		t.Fatalf("second Prune = %d, %v", n, err)
	}
}

func TestPruneWithoutRetentionIsNoop(t *testing.T) {
	if n, err := New(nil).Prune(context.Background()); err != nil || n != 0 {
		t.Fatalf("Prune = %d, %v", n, err)
	}
}
