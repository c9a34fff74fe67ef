package reportemail

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"scheduler/internal/domain"
)

type stubSender struct {
	ok          bool
	err         error
	called      bool
	recipients  []string
	subject     string
	body        string
	attachments []string
}

func (s *stubSender) SendReport(_ context.Context, recipients []string, subject, body string, attachments []string) (bool, error) {
	s.called = true
	s.recipients = recipients
	s.subject = subject
	s.body = body
	s.attachments = attachments
	return s.ok, s.err
}

func TestHandleDelivers(t *testing.T) {
	sender := &stubSender{ok: true}
	out := New(sender).Handle(context.Background(), domain.Params{
		"recipients":  []any{"a@b.com", " c@d.com "},
		"subject":     "Q1 emissions",
		"body":        "<html><body>report</body></html>",
		"attachments": []string{"reports/q1.pdf"},
	})
	if out.Err != nil {
		t.Fatalf("unexpected failure: %v", out.Err)
	}
	if out.Result["delivered"] != true || out.Result["recipients"] != 2 {
		t.Fatalf("result = %v", out.Result)
	}
	if !reflect.DeepEqual(sender.recipients, []string{"a@b.com", "c@d.com"}) {
		t.Fatalf("recipients = %v", sender.recipients)
	}
	if sender.subject != "Q1 emissions" || !reflect.DeepEqual(sender.attachments, []string{"reports/q1.pdf"}) {
		t.Fatalf("sender saw subject=%q attachments=%v", sender.subject, sender.attachments)
	}
}

func TestHandleSenderOutcomes(t *testing.T) {
	params := domain.Params{"recipients": []string{"a@b.com"}, "subject": "S", "body": "B"}
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name    string
		sender  *stubSender
		wantErr error
	}{
		{name: "declined", sender: &stubSender{ok: false}, wantErr: ErrNotDelivered},
		{name: "error", sender: &stubSender{err: cause}, wantErr: cause},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := New(tt.sender).Handle(context.Background(), params)
			if !errors.Is(out.Err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", out.Err, tt.wantErr)
			}
			if out.Result != nil {
				t.Fatalf("failed outcome should carry no result, got %v", out.Result)
			}
		})
	}
}

func TestHandleRejectsMalformedParams(t *testing.T) {
	tests := []struct {
		name   string
		params domain.Params
	}{
		{name: "missing recipients", params: domain.Params{"subject": "S", "body": "B"}},
		{name: "empty recipients", params: domain.Params{"recipients": []any{}, "subject": "S", "body": "B"}},
		{name: "recipient not string", params: domain.Params{"recipients": []any{42}, "subject": "S", "body": "B"}},
		{name: "recipients not list", params: domain.Params{"recipients": "a@b.com", "subject": "S", "body": "B"}},
		{name: "missing subject", params: domain.Params{"recipients": []any{"a@b.com"}, "body": "B"}},
		{name: "body not string", params: domain.Params{"recipients": []any{"a@b.com"}, "subject": "S", "body": 1}},
		{name: "bad attachments", params: domain.Params{"recipients": []any{"a@b.com"}, "subject": "S", "body": "B", "attachments": "x.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &stubSender{ok: true}
			out := New(sender).Handle(context.Background(), tt.params)
			if !errors.Is(out.Err, domain.ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", out.Err)
			}
			if sender.called {
				t.Fatal("sender must not be called for malformed params")
			}
		})
	}
}

func TestHandleWithoutSender(t *testing.T) {
	out := New(nil).Handle(context.Background(), domain.Params{"recipients": []any{"a@b.com"}, "subject": "S", "body": "B"})
	if out.Err == nil {
		t.Fatal("expected failure without sender")
	}
}
