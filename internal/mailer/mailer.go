// Package mailer is the outbound-email collaborator. The auth flows
// only trigger sends; delivery mechanics stay behind the interface.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/avdeevsm/blogger-backend/internal/config"
)

type Mailer interface {
	SendConfirmationCode(ctx context.Context, email, code string) error
	SendRecoveryCode(ctx context.Context, email, code string) error
}

// FromConfig returns an SMTP mailer when a host is configured, and a
// log-only mailer otherwise (local development).
func FromConfig(cfg *config.Config) Mailer {
	if cfg.SMTPHost == "" {
		return &LogMailer{}
	}
	return &SMTPMailer{
		addr: cfg.SMTPHost + ":" + cfg.SMTPPort,
		auth: smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost),
		from: cfg.SMTPFrom,
	}
}

type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

func (m *SMTPMailer) SendConfirmationCode(ctx context.Context, email, code string) error {
	body := fmt.Sprintf("To confirm registration follow the link:\r\nhttps://blogger.local/confirm-email?code=%s", code)
	return m.send(email, "Finish registration", body)
}

func (m *SMTPMailer) SendRecoveryCode(ctx context.Context, email, code string) error {
	body := fmt.Sprintf("To set a new password follow the link:\r\nhttps://blogger.local/password-recovery?recoveryCode=%s", code)
	return m.send(email, "Password recovery", body)
}

func (m *SMTPMailer) send(to, subject, body string) error {
	msg := []byte("From: " + m.from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" + body + "\r\n")
	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogMailer writes the codes to the log instead of sending mail.
type LogMailer struct{}

func (m *LogMailer) SendConfirmationCode(_ context.Context, email, code string) error {
	slog.Info("confirmation code issued", "email", email, "code", code)
	return nil
}

func (m *LogMailer) SendRecoveryCode(_ context.Context, email, code string) error {
	slog.Info("recovery code issued", "email", email, "code", code)
	return nil
}
