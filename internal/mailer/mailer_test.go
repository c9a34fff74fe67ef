package mailer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"scheduler/internal/storage"
)

type dialRecorder struct {
	msgs []*mail.Msg
	err  error
}

func (d *dialRecorder) dial(_ context.Context, msg *mail.Msg) error {
	d.msgs = append(d.msgs, msg)
	return d.err
}

func newTestSender(t *testing.T, cfg Config) (*Sender, *dialRecorder, *storage.FileStore) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	if cfg.SenderEmail == "" {
		cfg.SenderEmail = "system@example.com"
		cfg.SenderName = "Reports"
	}
	rec := &dialRecorder{}
	s := New(cfg, store, zerolog.Nop())
	s.dial = rec.dial
	return s, rec, store
}

func render(t *testing.T, msg *mail.Msg) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo error: %v", err)
	}
	return buf.String()
}

func TestSendReportDisabled(t *testing.T) {
	s, rec, _ := newTestSender(t, Config{Enabled: false})
	ok, err := s.SendReport(context.Background(), []string{"a@b.com"}, "S", "B", nil)
	if ok || err != nil {
		t.Fatalf("SendReport = %v, %v; want false, nil", ok, err)
	}
	if len(rec.msgs) != 0 {
		t.Fatal("disabled sender must not dial")
	}
}

func TestSendReportTestModeWritesOutbox(t *testing.T) {
	s, rec, store := newTestSender(t, Config{Enabled: false, TestMode: true})
	ok, err := s.SendReport(context.Background(), []string{"a@b.com"}, "Monthly", "plain body", nil)
	if !ok || err != nil {
		t.Fatalf("SendReport = %v, %v; want true, nil", ok, err)
	}
	if len(rec.msgs) != 0 {
		t.Fatal("test mode must not dial")
	}
	entries, err := os.ReadDir(filepath.Join(store.BasePath(), "outbox"))
	if err != nil {
		t.Fatalf("read outbox: %v", err)
	}
	if len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), ".eml") {
		t.Fatalf("outbox entries = %v", entries)
	}
}

func TestSendReportDeliversHTML(t *testing.T) {
	s, rec, _ := newTestSender(t, Config{Enabled: true})
	ok, err := s.SendReport(context.Background(), []string{"a@b.com", "c@d.com"}, "Q1", "  <!DOCTYPE html><html><body>hi</body></html>", nil)
	if !ok || err != nil {
		t.Fatalf("SendReport = %v, %v", ok, err)
	}
	if len(rec.msgs) != 1 {
		t.Fatalf("dialed %d messages, want 1", len(rec.msgs))
	}
	raw := render(t, rec.msgs[0])
	if !strings.Contains(raw, "text/html") {
		t.Fatalf("html body not sent as text/html:\n%s", raw)
	}
	if !strings.Contains(raw, "c@d.com") {
		t.Fatalf("second recipient missing:\n%s", raw)
	}
}

func TestSendReportPropagatesDialError(t *testing.T) {
	s, rec, _ := newTestSender(t, Config{Enabled: true})
	rec.err = errors.New("535 authentication failed")
	ok, err := s.SendReport(context.Background(), []string{"a@b.com"}, "S", "B", nil)
	if ok || err == nil || !strings.Contains(err.Error(), "535") {
		t.Fatalf("SendReport = %v, %v", ok, err)
	}
}

func TestSendReportRejectsBadRecipient(t *testing.T) {
	s, rec, _ := newTestSender(t, Config{Enabled: true})
	if _, err := s.SendReport(context.Background(), []string{"not an address"}, "S", "B", nil); err == nil {
		t.Fatal("expected address error")
	}
	if len(rec.msgs) != 0 {
		t.Fatal("invalid message must not be dialed")
	}
}

func TestSendReportAttachments(t *testing.T) {
	s, rec, store := newTestSender(t, Config{Enabled: true})
	if _, err := store.Write(context.Background(), "reports/q1.csv", []byte("a,b\n")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	ok, err := s.SendReport(context.Background(), []string{"a@b.com"}, "S", "B", []string{"reports/q1.csv", "reports/missing.pdf"})
	if !ok || err != nil {
		t.Fatalf("SendReport = %v, %v", ok, err)
	}
	raw := render(t, rec.msgs[0])
	if !strings.Contains(raw, "q1.csv") {
		t.Fatalf("attachment missing:\n%s", raw)
	}
	if strings.Contains(raw, "missing.pdf") {
		t.Fatalf("missing attachment should be skipped:\n%s", raw)
	}
}

func TestSendReportBundlesAttachments(t *testing.T) {
	s, rec, store := newTestSender(t, Config{Enabled: true, BundleAttachments: true})
	for _, key := range []string{"a/report.pdf", "b/report.pdf"} {
		if _, err := store.Write(context.Background(), key, []byte(key)); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	if _, err := s.SendReport(context.Background(), []string{"a@b.com"}, "S", "B", []string{"a/report.pdf", "b/report.pdf"}); err != nil {
		t.Fatalf("SendReport error: %v", err)
	}
	raw := render(t, rec.msgs[0])
	if !strings.Contains(raw, BundleName) {
		t.Fatalf("bundle missing:\n%s", raw)
	}
}

func TestIsHTML(t *testing.T) {
	tests := map[string]bool{
		"<!DOCTYPE html><html></html>": true,
		"\n  <html lang=\"en\">":       true,
		"Hello <b>there</b>":           false,
		"":                             false,
	}
	for body, want := range tests {
		if got := IsHTML(body); got != want {
			t.Fatalf("IsHTML(%q) = %v, want %v", body, got, want)
		}
	}
}
