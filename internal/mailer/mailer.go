// Package mailer delivers report emails over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"scheduler/internal/storage"
	"scheduler/pkg/zip"
)

// BundleName is the attachment name used when attachments are zipped together.
const BundleName = "attachments.zip"

// Config holds SMTP settings.
type Config struct {
	Server            string
	Port              int
	UseTLS            bool
	SenderEmail       string
	SenderPassword    string
	SenderName        string
	Enabled           bool
	TestMode          bool
	BundleAttachments bool
	Timeout           time.Duration
}

type dialFunc func(ctx context.Context, msg *mail.Msg) error

// Sender sends reports. In test mode messages are logged and, when a store is
// configured, written to outbox/ instead of being sent.
type Sender struct {
	cfg    Config
	store  *storage.FileStore
	logger zerolog.Logger
	dial   dialFunc
}

// New creates a Sender. store resolves attachment keys and may be nil when
// reports are sent without attachments.
func New(cfg Config, store *storage.FileStore, logger zerolog.Logger) *Sender {
	s := &Sender{cfg: cfg, store: store, logger: logger}
	s.dial = s.dialSMTP
	return s
}

// SendReport sends one message to every recipient. It returns false without an
// error when email is disabled.
func (s *Sender) SendReport(ctx context.Context, recipients []string, subject, body string, attachments []string) (bool, error) {
	if !s.cfg.Enabled && !s.cfg.TestMode {
		s.logger.Info().Strs("recipients", recipients).Msg("mailer: email disabled, message not sent")
		return false, nil
	}

	msg, err := s.buildMessage(ctx, recipients, subject, body, attachments)
	if err != nil {
		return false, err
	}

	if s.cfg.TestMode {
		s.logger.Info().
			Strs("recipients", recipients).
			Str("subject", subject).
			Int("attachments", len(attachments)).
			Msg("mailer: test mode, message not sent")
		s.captureOutbox(ctx, msg)
		return true, nil
	}

	if err := s.dial(ctx, msg); err != nil {
		s.logger.Error().Err(err).Strs("recipients", recipients).Msg("mailer: send failed")
		return false, fmt.Errorf("mailer: send: %w", err)
	}
	s.logger.Info().Strs("recipients", recipients).Str("subject", subject).Msg("mailer: message sent")
	return true, nil
}

func (s *Sender) buildMessage(ctx context.Context, recipients []string, subject, body string, attachments []string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.SenderName, s.cfg.SenderEmail); err != nil {
		return nil, fmt.Errorf("mailer: sender address: %w", err)
	}
	if err := msg.To(recipients...); err != nil {
		return nil, fmt.Errorf("mailer: recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()

	if IsHTML(body) {
		msg.SetBodyString(mail.TypeTextHTML, body)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, body)
	}

	if len(attachments) == 0 {
		return msg, nil
	}
	if s.store == nil {
		s.logger.Error().Strs("attachments", attachments).Msg("mailer: no report storage configured, attachments skipped")
		return msg, nil
	}
	if s.cfg.BundleAttachments {
		if err := s.attachBundle(ctx, msg, attachments); err != nil {
			return nil, err
		}
		return msg, nil
	}
	for _, key := range attachments {
		fullPath, err := s.store.Resolve(key)
		if err != nil {
			s.logger.Error().Err(err).Str("attachment", key).Msg("mailer: attachment skipped")
			continue
		}
		msg.AttachFile(fullPath, mail.WithFileName(path.Base(strings.ReplaceAll(key, "\\", "/"))))
	}
	return msg, nil
}

func (s *Sender) attachBundle(ctx context.Context, msg *mail.Msg, attachments []string) error {
	files := make([]zip.File, 0, len(attachments))
	for _, key := range attachments {
		data, err := s.store.Read(ctx, key)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.logger.Error().Err(err).Str("attachment", key).Msg("mailer: attachment skipped")
			continue
		}
		files = append(files, zip.File{Name: key, Data: data, ModTime: time.Now()})
	}
	if len(files) == 0 {
		return nil
	}
	archive, err := zip.Archive(files)
	if err != nil {
		return fmt.Errorf("mailer: bundle attachments: %w", err)
	}
	if err := msg.AttachReader(BundleName, bytes.NewReader(archive), mail.WithFileContentType(mail.ContentType("application/zip"))); err != nil {
		return fmt.Errorf("mailer: attach bundle: %w", err)
	}
	return nil
}

func (s *Sender) captureOutbox(ctx context.Context, msg *mail.Msg) {
	if s.store == nil {
		return
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		s.logger.Warn().Err(err).Msg("mailer: render outbox copy failed")
		return
	}
	key, err := s.store.Write(ctx, "outbox/"+uuid.NewString()+".eml", buf.Bytes())
	if err != nil {
		s.logger.Warn().Err(err).Msg("mailer: write outbox copy failed")
		return
	}
	s.logger.Debug().Str("key", key).Msg("mailer: outbox copy written")
}

func (s *Sender) dialSMTP(ctx context.Context, msg *mail.Msg) error {
	if strings.TrimSpace(s.cfg.Server) == "" {
		return errors.New("mailer: smtp server is not configured")
	}
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.NoTLS),
	}
	if s.cfg.UseTLS {
		opts[1] = mail.WithTLSPolicy(mail.TLSMandatory)
	}
	if s.cfg.SenderPassword != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.SenderEmail),
			mail.WithPassword(s.cfg.SenderPassword),
		)
	}
	if s.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.cfg.Timeout))
	}
	client, err := mail.NewClient(s.cfg.Server, opts...)
	if err != nil {
		return fmt.Errorf("mailer: configure client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// IsHTML reports whether body is a full HTML document.
func IsHTML(body string) bool {
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "<!DOCTYPE html>") || strings.HasPrefix(trimmed, "<html")
}
