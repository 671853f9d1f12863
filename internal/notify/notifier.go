// Package notify sends alert bodies assembled by internal/alert out to a
// human, the way the teacher's internal/notification package does for
// its own alerter.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/andrewchi/mercury/internal/config"
)

// Notifier delivers a subject/body pair to whatever channel is
// configured. internal/alert depends only on this interface, not on any
// particular transport.
type Notifier interface {
	Send(subject, body string) error
}

// EmailNotifier implements Notifier over SMTP.
type EmailNotifier struct {
	cfg  config.SMTPConfig
	auth smtp.Auth
}

// NewEmailNotifier builds an EmailNotifier from the alerter's SMTP
// config. PlainAuth withholds credentials until the server identifies
// itself as trusted, matching net/smtp's own documented contract.
func NewEmailNotifier(cfg config.SMTPConfig) *EmailNotifier {
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	return &EmailNotifier{cfg: cfg, auth: auth}
}

// Send emails subject/body (body is HTML) to every configured recipient.
func (n *EmailNotifier) Send(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	msg := []byte("To: " + strings.Join(n.cfg.To, ", ") + "\r\n" +
		"From: " + n.cfg.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"\r\n" +
		body)

	if err := smtp.SendMail(addr, n.auth, n.cfg.From, n.cfg.To, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
