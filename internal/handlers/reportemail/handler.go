// Package reportemail implements the REPORT_EMAIL job: deliver a rendered
// report to a list of recipients through the email collaborator.
package reportemail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"scheduler/internal/dispatch"
	"scheduler/internal/domain"
)

// ErrNotDelivered is reported when the sender declines the message without an error.
var ErrNotDelivered = errors.New("report email was not delivered")

// Sender is the email collaborator.
type Sender interface {
	SendReport(ctx context.Context, recipients []string, subject, body string, attachments []string) (bool, error)
}

// Request is the decoded REPORT_EMAIL params.
type Request struct {
	Recipients  []string
	Subject     string
	Body        string
	Attachments []string
}

type Handler struct {
	sender Sender
}

func New(sender Sender) *Handler {
	return &Handler{sender: sender}
}

func (h *Handler) Handle(ctx context.Context, params domain.Params) dispatch.Outcome {
	req, err := DecodeParams(params)
	if err != nil {
		return dispatch.Fail(err)
	}
	if h.sender == nil {
		return dispatch.Fail(errors.New("report email sender is not configured"))
	}

	ok, err := h.sender.SendReport(ctx, req.Recipients, req.Subject, req.Body, req.Attachments)
	if err != nil {
		return dispatch.Fail(fmt.Errorf("send report email: %w", err))
	}
	if !ok {
		return dispatch.Fail(ErrNotDelivered)
	}
	return dispatch.Succeed(domain.Result{
		"delivered":  true,
		"recipients": len(req.Recipients),
	})
}

// DecodeParams validates params before any work is attempted.
func DecodeParams(params domain.Params) (Request, error) {
	var req Request
	recipients, err := stringList(params, "recipients")
	if err != nil {
		return Request{}, err
	}
	if len(recipients) == 0 {
		return Request{}, fmt.Errorf("%w: recipients must not be empty", domain.ErrValidation)
	}
	req.Recipients = recipients

	if req.Subject, err = stringField(params, "subject"); err != nil {
		return Request{}, err
	}
	if req.Body, err = stringField(params, "body"); err != nil {
		return Request{}, err
	}
	if _, present := params["attachments"]; present {
		if req.Attachments, err = stringList(params, "attachments"); err != nil {
			return Request{}, err
		}
	}
	return req, nil
}

func stringField(params domain.Params, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", domain.ErrValidation, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", domain.ErrValidation, key)
	}
	return s, nil
}

func stringList(params domain.Params, key string) ([]string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, fmt.Errorf("%w: %s is required", domain.ErrValidation, key)
	}
	var items []any
	switch v := raw.(type) {
	case []string:
		items = make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
	case []any:
		items = v
	default:
		return nil, fmt.Errorf("%w: %s must be a list of strings", domain.ErrValidation, key)
	}

	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] must be a string", domain.ErrValidation, key, i)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("%w: %s[%d] is empty", domain.ErrValidation, key, i)
		}
		out = append(out, s)
	}
	return out, nil
}

var _ dispatch.Handler = (*Handler)(nil)
