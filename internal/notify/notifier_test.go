package notify

import (
	"testing"

	"github.com/andrewchi/mercury/internal/config"
)

func TestNewEmailNotifierUsesConfiguredHost(t *testing.T) {
	cfg := config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "alerts",
		Password: "secret",
		From:     "alerts@example.com",
		To:       []string{"soc@example.com"},
	}
	n := NewEmailNotifier(cfg)
	if n.cfg.Host != "smtp.example.com" {
		t.Fatalf("unexpected host: %q", n.cfg.Host)
	}
	if n.auth == nil {
		t.Fatalf("expected PlainAuth to be constructed")
	}
}

// TestSendFailsWithoutAServer confirms Send surfaces a wrapped error
// rather than panicking when no SMTP server is reachable, matching
// spec.md 7's "construction/runtime failures return a Go error" rule.
func TestSendFailsWithoutAServer(t *testing.T) {
	cfg := config.SMTPConfig{
		Host: "127.0.0.1",
		Port: 1, // nothing listens here
		From: "alerts@example.com",
		To:   []string{"soc@example.com"},
	}
	n := NewEmailNotifier(cfg)
	if err := n.Send("subject", "body"); err == nil {
		t.Fatalf("expected Send to fail against an unreachable server")
	}
}
