// Package smtp delivers rendered notifications over plain SMTP.
package smtp

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/neolearn/subsync/internal/domain"
)

// Compile-time check: Messenger implements domain.Messenger.
var _ domain.Messenger = (*Messenger)(nil)

// Config holds SMTP transport settings.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

// Messenger sends plain-text mail through a single SMTP relay.
type Messenger struct {
	cfg  Config
	auth smtp.Auth
	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates a messenger for the given relay configuration.
func New(cfg Config) *Messenger {
	if cfg.Sender == "" {
		cfg.Sender = "no-reply@localhost"
	}

	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &Messenger{cfg: cfg, auth: auth, send: smtp.SendMail}
}

// Send delivers one message. The context is checked before dialing;
// net/smtp does not support cancellation mid-send.
func (m *Messenger) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)
	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.cfg.Sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := m.send(addr, m.auth, m.cfg.Sender, []string{to}, msg); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}
