// Package sender implements the outbound channel transports behind the
// dispatcher's Send contract. Each sender is agnostic to notification
// semantics; it takes an address and a rendered payload.
package sender

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/harune/notify/internal/domain"
)

// SMTPConfig configures the email sender.
type SMTPConfig struct {
	Addr     string
	User     string
	Password string
	From     string
}

// EmailSender delivers over SMTP. Plain SMTP reports acceptance by the
// relay, not receipt, so a successful send resolves to sent, never delivered.
type EmailSender struct {
	addr string
	auth smtp.Auth
	from string
}

// NewEmailSender creates a new EmailSender.
func NewEmailSender(cfg SMTPConfig) *EmailSender {
	var auth smtp.Auth
	if cfg.User != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, smtpHost(cfg.Addr))
	}
	return &EmailSender{addr: cfg.Addr, auth: auth, from: cfg.From}
}

// Send sends one email to the given address.
func (s *EmailSender) Send(_ context.Context, address, subject, body string) (domain.DeliveryStatus, error) {
	msg := []byte(
		"From: " + s.from + "\r\n" +
			"To: " + address + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" + body + "\r\n")

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{address}, msg); err != nil {
		return domain.DeliveryFailed, fmt.Errorf("sendmail to %s: %w", address, err)
	}
	return domain.DeliverySent, nil
}

func smtpHost(addr string) string {
	if i := strings.Index(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}
